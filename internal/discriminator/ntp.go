// Package discriminator supplies an external reference clock used to
// sanity-check candidate PTP masters: a master whose time is far from
// the reference is rejected regardless of its advertised quality.
package discriminator

import (
	"sync"
	"time"

	"github.com/beevik/ntp"

	"example.com/ptpport/internal/common"
)

// Config tunes the NTP reference poller.
type Config struct {
	Host     string
	Interval time.Duration
	Timeout  time.Duration
	// MaxAge bounds how stale a cached sample may be before
	// ReferenceOffset reports no sample.
	MaxAge time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 3 * c.Interval
	}
}

// NTP polls one NTP server and caches the local clock offset for the
// selection logic to consult.
type NTP struct {
	cfg  Config
	done chan struct{}

	mu      sync.Mutex
	offset  time.Duration
	sampled time.Time
	valid   bool
}

// New starts the poller. It queries immediately and then at the
// configured interval until Close.
func New(cfg Config) *NTP {
	cfg.applyDefaults()
	d := &NTP{cfg: cfg, done: make(chan struct{})}
	go d.pollLoop()
	return d
}

func (d *NTP) pollLoop() {
	d.poll()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.poll()
		case <-d.done:
			return
		}
	}
}

func (d *NTP) poll() {
	resp, err := ntp.QueryWithOptions(d.cfg.Host, ntp.QueryOptions{
		Timeout: d.cfg.Timeout,
	})
	if err != nil {
		common.Logf("discriminator: query %s: %v", d.cfg.Host, err)
		return
	}
	if err := resp.Validate(); err != nil {
		common.Logf("discriminator: reject sample from %s: %v", d.cfg.Host, err)
		return
	}
	d.mu.Lock()
	d.offset = resp.ClockOffset
	d.sampled = time.Now()
	d.valid = true
	d.mu.Unlock()
}

// ReferenceOffset returns the latest reference-vs-local offset. The
// second return is false when no acceptably fresh sample exists.
func (d *NTP) ReferenceOffset() (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.valid || time.Since(d.sampled) > d.cfg.MaxAge {
		return 0, false
	}
	return d.offset, true
}

// Close stops the poller.
func (d *NTP) Close() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}
