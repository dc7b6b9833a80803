package servo

import (
	"testing"
	"time"
)

func feed(s *Tracking, offset time.Duration, n int) {
	at := time.Now()
	for i := 0; i < n; i++ {
		s.ProvideSyncMeasurement(offset, at)
	}
}

func TestLockAfterConsecutiveSamples(t *testing.T) {
	s := &Tracking{Name: "test"}
	feed(s, 50*time.Microsecond, defaultLockSamples-1)
	if s.Locked() {
		t.Fatal("locked too early")
	}
	feed(s, 50*time.Microsecond, 1)
	if !s.Locked() || !s.EverLocked() {
		t.Fatal("not locked after enough in-threshold samples")
	}
}

func TestLargeOffsetBreaksLock(t *testing.T) {
	s := &Tracking{Name: "test"}
	feed(s, 10*time.Microsecond, defaultLockSamples)
	feed(s, 5*time.Millisecond, 1)
	if s.Locked() {
		t.Fatal("still locked after a large offset")
	}
	if !s.EverLocked() {
		t.Fatal("ever-locked history lost")
	}
}

func TestResetPreservesEverLocked(t *testing.T) {
	s := &Tracking{Name: "test"}
	feed(s, 10*time.Microsecond, defaultLockSamples)
	s.Reset()
	if s.Locked() {
		t.Fatal("locked survived reset")
	}
	if !s.EverLocked() {
		t.Fatal("ever-locked should survive a master change")
	}
	if _, ok := s.Offset(); ok {
		t.Fatal("offset estimate survived reset")
	}
}

func TestNegativeDelayDiscarded(t *testing.T) {
	s := &Tracking{Name: "test"}
	s.ProvideDelayMeasurement(-time.Microsecond, time.Now())
	if _, ok := s.MeanPathDelay(); ok {
		t.Fatal("negative delay accepted")
	}
	s.ProvideDelayMeasurement(30*time.Microsecond, time.Now())
	d, ok := s.MeanPathDelay()
	if !ok || d != 30*time.Microsecond {
		t.Fatalf("delay = %v ok=%v, want 30us", d, ok)
	}
}

func TestPauseSuspendsIntake(t *testing.T) {
	s := &Tracking{Name: "test"}
	s.Pause(true)
	feed(s, 10*time.Microsecond, defaultLockSamples)
	if s.Locked() {
		t.Fatal("locked while paused")
	}
	if _, ok := s.Offset(); ok {
		t.Fatal("sample accepted while paused")
	}
	s.Pause(false)
	feed(s, 10*time.Microsecond, defaultLockSamples)
	if !s.Locked() {
		t.Fatal("not locked after resume")
	}
}

func TestMissingSyncBreaksLock(t *testing.T) {
	s := &Tracking{Name: "test"}
	feed(s, 10*time.Microsecond, defaultLockSamples)
	s.NotifyMissingSync()
	if s.Locked() {
		t.Fatal("still locked with syncs missing")
	}
}
