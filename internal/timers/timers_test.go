package timers

import (
	"math/rand"
	"testing"
)

func TestStartClampsToOneTick(t *testing.T) {
	s := NewSet(0.0625, nil)
	s.Start(SyncInterval, 0.001) // well below one quantum
	s.Tick()
	if !s.Expired(SyncInterval) {
		t.Fatal("timer below one tick did not expire on the next tick")
	}
}

func TestTickCountdownAndRearm(t *testing.T) {
	s := NewSet(1.0, nil)
	s.Start(AnnounceInterval, 3)
	for i := 0; i < 2; i++ {
		s.Tick()
		if s.Expired(AnnounceInterval) {
			t.Fatalf("expired after %d of 3 ticks", i+1)
		}
	}
	s.Tick()
	if !s.Expired(AnnounceInterval) {
		t.Fatal("did not expire after 3 ticks")
	}
	// re-armed at the original interval
	for i := 0; i < 2; i++ {
		s.Tick()
		if s.Expired(AnnounceInterval) {
			t.Fatalf("re-armed timer expired after %d of 3 ticks", i+1)
		}
	}
	s.Tick()
	if !s.Expired(AnnounceInterval) {
		t.Fatal("re-armed timer did not expire after 3 more ticks")
	}
}

func TestExpiredIsTestAndClear(t *testing.T) {
	s := NewSet(1.0, nil)
	s.Start(SyncReceipt, 1)
	s.Tick()
	if !s.Expired(SyncReceipt) {
		t.Fatal("expected expiry")
	}
	if s.Expired(SyncReceipt) {
		t.Fatal("expiry flag not cleared by read")
	}
}

func TestStopClearsPendingExpiry(t *testing.T) {
	s := NewSet(1.0, nil)
	s.Start(DelayReqInterval, 1)
	s.Tick()
	s.Stop(DelayReqInterval)
	if s.Expired(DelayReqInterval) {
		t.Fatal("stop left a pending expiry")
	}
	if !s.Stopped(DelayReqInterval) {
		t.Fatal("timer not stopped")
	}
	s.Tick()
	if s.Expired(DelayReqInterval) {
		t.Fatal("stopped timer expired")
	}
}

func TestRunningStates(t *testing.T) {
	s := NewSet(1.0, nil)
	if s.Running(FaultRestart) || !s.Stopped(FaultRestart) {
		t.Fatal("fresh timer should be stopped")
	}
	s.Start(FaultRestart, 5)
	if !s.Running(FaultRestart) || s.Stopped(FaultRestart) {
		t.Fatal("armed timer should be running")
	}
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	// expiry pending: armed but not running until consumed
	if s.Running(FaultRestart) {
		t.Fatal("timer with pending expiry reported running")
	}
	if !s.Expired(FaultRestart) {
		t.Fatal("expected expiry")
	}
	if !s.Running(FaultRestart) {
		t.Fatal("timer should run again once expiry is consumed")
	}
}

func TestStartRandomBounds(t *testing.T) {
	s := NewSet(1.0, rand.New(rand.NewSource(7)))
	for i := 0; i < 100; i++ {
		s.StartRandom(DelayReqInterval, 8)
		ticks := s.timers[DelayReqInterval].interval
		if ticks < 1 || ticks > 16 {
			t.Fatalf("randomized interval %d ticks outside (0, 2*mean]", ticks)
		}
	}
}

func TestStopAll(t *testing.T) {
	s := NewSet(1.0, nil)
	for id := ID(0); id < numTimers; id++ {
		s.Start(id, 1)
	}
	s.Tick()
	s.StopAll()
	for id := ID(0); id < numTimers; id++ {
		if !s.Stopped(id) || s.Expired(id) {
			t.Fatalf("timer %v not fully stopped", id)
		}
	}
}
