// Package servo tracks the offset and path delay measurements produced
// by a slave port. It does not steer the system clock; it maintains the
// filtered estimates, the lock state the selection logic consults, and
// the rate-limited operator diagnostics.
package servo

import (
	"sync"
	"time"

	"example.com/ptpport/internal/common"
)

const (
	defaultLockThreshold = 100 * time.Microsecond
	defaultLockSamples   = 5
	maxOperatorMessages  = 5
)

// Tracking is a measurement tracker implementing the port engine's
// servo interface.
type Tracking struct {
	Name string
	// LockThreshold is the offset magnitude under which consecutive
	// samples count toward lock.
	LockThreshold time.Duration
	// LockSamples is how many consecutive in-threshold samples declare
	// lock.
	LockSamples int

	mu sync.Mutex

	offset     time.Duration
	delay      time.Duration
	offsetAt   time.Time
	haveOffset bool
	haveDelay  bool

	consecutive int
	locked      bool
	everLocked  bool
	paused      bool

	operatorMessages int

	logSync     int8
	logDelayReq int8
}

func (s *Tracking) lockThreshold() time.Duration {
	if s.LockThreshold <= 0 {
		return defaultLockThreshold
	}
	return s.LockThreshold
}

func (s *Tracking) lockSamples() int {
	if s.LockSamples <= 0 {
		return defaultLockSamples
	}
	return s.LockSamples
}

// ProvideSyncMeasurement feeds one master-to-slave offset sample.
func (s *Tracking) ProvideSyncMeasurement(offset time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.offset = offset
	s.offsetAt = at
	s.haveOffset = true

	mag := offset
	if mag < 0 {
		mag = -mag
	}
	if mag <= s.lockThreshold() {
		s.consecutive++
		if !s.locked && s.consecutive >= s.lockSamples() {
			s.locked = true
			s.everLocked = true
			common.Logf("servo %s: locked, offset %v", s.Name, offset)
		}
		return
	}
	s.consecutive = 0
	if s.locked {
		s.locked = false
		s.operatorMessage("servo %s: lock lost, offset %v", s.Name, offset)
	}
}

// ProvideDelayMeasurement feeds one path delay sample. Negative delays
// are measurement noise and are discarded.
func (s *Tracking) ProvideDelayMeasurement(delay time.Duration, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	if delay < 0 {
		s.operatorMessage("servo %s: discarding negative path delay %v", s.Name, delay)
		return
	}
	s.delay = delay
	s.haveDelay = true
}

// Reset clears the estimates after a master change. Lock history is
// preserved: having ever locked is what promotes UNCALIBRATED to SLAVE.
func (s *Tracking) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haveOffset = false
	s.haveDelay = false
	s.consecutive = 0
	s.locked = false
}

// ResetOperatorMessages re-opens the rate-limited diagnostics window.
func (s *Tracking) ResetOperatorMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operatorMessages = 0
}

// NotifyMissingSync is called on sync receipt timeout.
func (s *Tracking) NotifyMissingSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive = 0
	if s.locked {
		s.locked = false
		s.operatorMessage("servo %s: lock lost, sync messages missing", s.Name)
	}
}

// EverLocked reports whether the servo has ever declared lock.
func (s *Tracking) EverLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.everLocked
}

// ExpectIntervals records the message cadence the master advertises.
func (s *Tracking) ExpectIntervals(logSync, logDelayReq int8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSync = logSync
	s.logDelayReq = logDelayReq
}

// Pause suspends sample intake, used during a leap-second guard window.
func (s *Tracking) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Offset returns the latest offset sample and whether one exists.
func (s *Tracking) Offset() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, s.haveOffset
}

// MeanPathDelay returns the latest delay sample and whether one exists.
func (s *Tracking) MeanPathDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay, s.haveDelay
}

// Locked reports the current lock state.
func (s *Tracking) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// operatorMessage logs at most maxOperatorMessages per window; the port
// re-opens the window periodically.
func (s *Tracking) operatorMessage(format string, args ...any) {
	if s.operatorMessages >= maxOperatorMessages {
		return
	}
	s.operatorMessages++
	common.Logf(format, args...)
	if s.operatorMessages == maxOperatorMessages {
		common.Logf("servo %s: suppressing further messages", s.Name)
	}
}
