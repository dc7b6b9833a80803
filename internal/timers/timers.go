// Package timers implements the tick-driven countdown timers that pace a
// PTP port: one external scheduling quantum decrements every armed timer,
// and expiry is a sticky flag consumed with a test-and-clear.
package timers

import "math/rand"

// ID names one of the per-port protocol timers.
type ID int

const (
	PDelayReqInterval ID = iota
	PDelayRespReceipt
	DelayReqInterval
	DelayRespReceipt
	SyncReceipt
	SyncInterval
	AnnounceReceipt
	AnnounceInterval
	OperatorMessages
	FaultRestart
	ForeignMasterCheck
	TimestampCheck

	numTimers
)

func (id ID) String() string {
	switch id {
	case PDelayReqInterval:
		return "pdelay-req-interval"
	case PDelayRespReceipt:
		return "pdelay-resp-receipt"
	case DelayReqInterval:
		return "delay-req-interval"
	case DelayRespReceipt:
		return "delay-resp-receipt"
	case SyncReceipt:
		return "sync-receipt"
	case SyncInterval:
		return "sync-interval"
	case AnnounceReceipt:
		return "announce-receipt"
	case AnnounceInterval:
		return "announce-interval"
	case OperatorMessages:
		return "operator-messages"
	case FaultRestart:
		return "fault-restart"
	case ForeignMasterCheck:
		return "foreign-master-check"
	case TimestampCheck:
		return "timestamp-check"
	}
	return "unknown-timer"
}

type timer struct {
	left     int32
	interval int32
	expired  bool
}

// Set owns the countdown timers of a single port. It is not safe for
// concurrent use; the owning port drives it from its event loop.
type Set struct {
	tickSeconds float64
	timers      [numTimers]timer
	rng         *rand.Rand
}

// NewSet creates a timer set with the given tick quantum in seconds. The
// random source drives randomized restarts; it may be nil, in which case
// a fixed-seed source is used.
func NewSet(tickSeconds float64, rng *rand.Rand) *Set {
	if tickSeconds <= 0 {
		tickSeconds = 1.0 / 16.0
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Set{tickSeconds: tickSeconds, rng: rng}
}

// Start arms the timer to fire after the given interval in seconds,
// clamped to a minimum of one tick so a timer always eventually fires.
func (s *Set) Start(id ID, seconds float64) {
	ticks := int32(seconds / s.tickSeconds)
	if ticks < 1 {
		ticks = 1
	}
	t := &s.timers[id]
	t.interval = ticks
	t.left = ticks
	t.expired = false
}

// StartRandom arms the timer with an interval drawn uniformly from
// (0, 2×mean), decorrelating retransmissions across peers.
func (s *Set) StartRandom(id ID, meanSeconds float64) {
	s.Start(id, s.rng.Float64()*meanSeconds*2.0)
}

// Stop disarms the timer and clears any pending expiry.
func (s *Set) Stop(id ID) {
	t := &s.timers[id]
	t.interval = 0
	t.left = 0
	t.expired = false
}

// Tick advances every armed timer by one quantum. A timer reaching zero
// re-arms at its original interval and latches the expired flag.
func (s *Set) Tick() {
	for i := range s.timers {
		t := &s.timers[i]
		if t.interval == 0 {
			continue
		}
		t.left--
		if t.left <= 0 {
			t.left = t.interval
			t.expired = true
		}
	}
}

// Expired tests and clears the sticky expiry flag.
func (s *Set) Expired(id ID) bool {
	t := &s.timers[id]
	if !t.expired {
		return false
	}
	t.expired = false
	return true
}

// Running reports whether the timer is armed with no pending expiry.
func (s *Set) Running(id ID) bool {
	t := &s.timers[id]
	return t.interval != 0 && !t.expired
}

// Stopped reports whether the timer is disarmed.
func (s *Set) Stopped(id ID) bool {
	return s.timers[id].interval == 0
}

// StopAll disarms every timer, as done on every state entry.
func (s *Set) StopAll() {
	for i := ID(0); i < numTimers; i++ {
		s.Stop(i)
	}
}

// StopAllExcept disarms every timer not listed. The peer-delay pair
// survives ordinary state transitions this way.
func (s *Set) StopAllExcept(keep ...ID) {
	for i := ID(0); i < numTimers; i++ {
		kept := false
		for _, k := range keep {
			if i == k {
				kept = true
				break
			}
		}
		if !kept {
			s.Stop(i)
		}
	}
}
