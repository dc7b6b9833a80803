package bmc

import (
	"errors"
	"testing"
	"time"

	"example.com/ptpport/internal/foreign"
	"example.com/ptpport/internal/wire"
)

func dataset(gm byte, prio1 uint8, class uint8, steps uint16, src byte) Dataset {
	return Dataset{
		Priority1:           prio1,
		GrandmasterIdentity: wire.ClockIdentity{gm},
		Quality: wire.ClockQuality{
			ClockClass:              class,
			ClockAccuracy:           wire.Accuracy100ns,
			OffsetScaledLogVariance: 0x4E5D,
		},
		Priority2:          128,
		StepsRemoved:       steps,
		SourcePortIdentity: wire.PortIdentity{ClockIdentity: wire.ClockIdentity{src}, PortNumber: 1},
	}
}

func TestCompareDistinctGrandmasters(t *testing.T) {
	tests := []struct {
		name string
		a, b Dataset
		want int
	}{
		{
			name: "priority1 decides",
			a:    dataset(1, 10, 248, 0, 1),
			b:    dataset(2, 20, 6, 0, 2), // far better class loses to priority1
			want: -1,
		},
		{
			name: "clock class decides",
			a:    dataset(1, 128, 6, 0, 1),
			b:    dataset(2, 128, 248, 0, 2),
			want: -1,
		},
		{
			name: "accuracy decides",
			a: func() Dataset {
				d := dataset(1, 128, 248, 0, 1)
				d.Quality.ClockAccuracy = wire.Accuracy25ns
				return d
			}(),
			b:    dataset(2, 128, 248, 0, 2),
			want: -1,
		},
		{
			name: "variance decides",
			a: func() Dataset {
				d := dataset(1, 128, 248, 0, 1)
				d.Quality.OffsetScaledLogVariance = 0x1000
				return d
			}(),
			b:    dataset(2, 128, 248, 0, 2),
			want: -1,
		},
		{
			name: "priority2 decides",
			a: func() Dataset {
				d := dataset(1, 128, 248, 0, 1)
				d.Priority2 = 10
				return d
			}(),
			b:    dataset(2, 128, 248, 0, 2),
			want: -1,
		},
		{
			name: "identity is the final tie break",
			a:    dataset(1, 128, 248, 0, 1),
			b:    dataset(2, 128, 248, 0, 2),
			want: -1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compare(&tc.a, &tc.b, Options{})
			if err != nil {
				t.Fatalf("Compare: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Compare = %d, want %d", got, tc.want)
			}
			rev, err := Compare(&tc.b, &tc.a, Options{})
			if err != nil {
				t.Fatalf("reverse Compare: %v", err)
			}
			if rev != -tc.want {
				t.Fatalf("reverse Compare = %d, want %d", rev, -tc.want)
			}
		})
	}
}

func TestComparePreferUTCValid(t *testing.T) {
	a := dataset(1, 128, 248, 0, 1)
	b := dataset(2, 128, 6, 0, 2)
	a.UTCOffsetValid = true

	got, err := Compare(&a, &b, Options{PreferUTCValid: true})
	if err != nil || got != -1 {
		t.Fatalf("Compare = %d, %v; want -1 (utc-valid outranks class)", got, err)
	}
	got, err = Compare(&a, &b, Options{})
	if err != nil || got != 1 {
		t.Fatalf("Compare without extension = %d, %v; want 1", got, err)
	}
}

func TestCompareSameGrandmasterStepsRule(t *testing.T) {
	// a difference above one decides regardless of any other field
	a := dataset(1, 0, 6, 5, 1)
	b := dataset(1, 255, 255, 2, 2)
	got, err := Compare(&a, &b, Options{})
	if err != nil || got != 1 {
		t.Fatalf("Compare = %d, %v; want 1 (higher steps loses outright)", got, err)
	}
	got, err = Compare(&b, &a, Options{})
	if err != nil || got != -1 {
		t.Fatalf("Compare = %d, %v; want -1", got, err)
	}
}

func TestCompareSameGrandmasterParentRule(t *testing.T) {
	parent := wire.PortIdentity{ClockIdentity: wire.ClockIdentity{5}, PortNumber: 1}
	// a is one step further away; ordering follows a's sender vs our parent
	a := dataset(1, 128, 248, 3, 2)
	b := dataset(1, 128, 248, 2, 9)

	got, err := Compare(&a, &b, Options{ParentPortIdentity: parent})
	if err != nil || got != -1 {
		t.Fatalf("Compare = %d, %v; want -1 (sender below parent identity)", got, err)
	}

	a.SourcePortIdentity.ClockIdentity = wire.ClockIdentity{7}
	got, err = Compare(&a, &b, Options{ParentPortIdentity: parent})
	if err != nil || got != 1 {
		t.Fatalf("Compare = %d, %v; want 1 (sender above parent identity)", got, err)
	}
}

func TestCompareSameGrandmasterEqualSteps(t *testing.T) {
	a := dataset(1, 128, 248, 2, 2)
	b := dataset(1, 128, 248, 2, 9)
	got, err := Compare(&a, &b, Options{})
	if err != nil || got != -1 {
		t.Fatalf("Compare = %d, %v; want -1 by sender identity", got, err)
	}

	b.SourcePortIdentity = a.SourcePortIdentity
	b.SourcePortIdentity.PortNumber = 4
	got, err = Compare(&a, &b, Options{})
	if err != nil || got != -1 {
		t.Fatalf("Compare = %d, %v; want -1 by sender port number", got, err)
	}

	b.SourcePortIdentity = a.SourcePortIdentity
	if _, err = Compare(&a, &b, Options{}); !errors.Is(err, ErrIdenticalDatasets) {
		t.Fatalf("err = %v, want ErrIdenticalDatasets", err)
	}
}

func qualifiedRecord(ds *foreign.Dataset, now time.Time, gm byte, prio1 uint8, class uint8, steps uint16, src byte) *foreign.Record {
	h := &wire.Header{
		MessageType:        wire.MsgAnnounce,
		SourcePortIdentity: wire.PortIdentity{ClockIdentity: wire.ClockIdentity{src}, PortNumber: 1},
		LogMessageInterval: 0,
	}
	a := &wire.Announce{
		GrandmasterPriority1: prio1,
		GrandmasterClockQuality: wire.ClockQuality{
			ClockClass:              class,
			ClockAccuracy:           wire.Accuracy100ns,
			OffsetScaledLogVariance: 0x4E5D,
		},
		GrandmasterPriority2: 128,
		GrandmasterIdentity:  wire.ClockIdentity{gm},
		StepsRemoved:         steps,
	}
	ds.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, now.Add(-time.Second))
	return ds.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, now)
}

func slaveEligibleLocal() *Local {
	return &Local{
		ClockIdentity: wire.ClockIdentity{0xEE},
		PortNumber:    1,
		Priority1:     128,
		Priority2:     128,
		Quality: wire.ClockQuality{
			ClockClass:              248,
			ClockAccuracy:           wire.AccuracyUnknown,
			OffsetScaledLogVariance: 0xFFFF,
		},
	}
}

func TestRunNoRecordsPreservesState(t *testing.T) {
	ds := foreign.NewDataset(4)
	local := slaveEligibleLocal()
	rec := Run(ds, local, time.Now())
	if rec.Outcome != OutcomePreserve || rec.Update != UpdateNone {
		t.Fatalf("rec = %+v, want preserve", rec)
	}

	local.IsMaster = true
	rec = Run(ds, local, time.Now())
	if rec.Outcome != OutcomePreserve || rec.Update != UpdateM1 {
		t.Fatalf("rec = %+v, want preserve with m1 refresh", rec)
	}
}

func TestRunAdoptsBetterMaster(t *testing.T) {
	ds := foreign.NewDataset(4)
	now := time.Now()
	qualifiedRecord(ds, now, 1, 10, 6, 0, 1)
	local := slaveEligibleLocal()

	rec := Run(ds, local, now)
	if rec.Outcome != OutcomeUncalibrated || rec.Update != UpdateS1 {
		t.Fatalf("rec = %+v, want uncalibrated/s1", rec)
	}
	if rec.Best == nil || rec.Best.Announce.GrandmasterIdentity != (wire.ClockIdentity{1}) {
		t.Fatalf("best = %+v", rec.Best)
	}
	if !rec.NewMaster {
		t.Fatal("expected a master change")
	}

	local.ServoLocked = true
	rec = Run(ds, local, now)
	if rec.Outcome != OutcomeSlave {
		t.Fatalf("rec = %+v, want slave once servo has locked", rec)
	}
}

func TestRunLocalWinsBecomesMaster(t *testing.T) {
	ds := foreign.NewDataset(4)
	now := time.Now()
	qualifiedRecord(ds, now, 1, 200, 248, 0, 1)
	local := slaveEligibleLocal()
	local.Priority1 = 10

	rec := Run(ds, local, now)
	if rec.Outcome != OutcomeMaster || rec.Update != UpdateM1 {
		t.Fatalf("rec = %+v, want master/m1", rec)
	}
}

func TestRunMasterEligibleLosingGoesPassive(t *testing.T) {
	ds := foreign.NewDataset(4)
	now := time.Now()
	qualifiedRecord(ds, now, 1, 10, 6, 0, 1)
	local := slaveEligibleLocal()
	local.Quality.ClockClass = 13 // master-eligible

	rec := Run(ds, local, now)
	if rec.Outcome != OutcomePassive || rec.Update != UpdateP1 {
		t.Fatalf("rec = %+v, want passive/p1", rec)
	}
}

func TestRunSlaveOnlyAlwaysS1(t *testing.T) {
	ds := foreign.NewDataset(4)
	now := time.Now()
	qualifiedRecord(ds, now, 1, 255, 255, 0, 1)
	local := slaveEligibleLocal()
	local.SlaveOnly = true
	local.Priority1 = 0 // would win the comparison, but slave-only never masters

	rec := Run(ds, local, now)
	if rec.Outcome != OutcomeUncalibrated || rec.Update != UpdateS1 {
		t.Fatalf("rec = %+v, want uncalibrated/s1 for slave-only", rec)
	}
}

func TestRunEvictsDisqualifiedNonBest(t *testing.T) {
	ds := foreign.NewDataset(8)
	now := time.Now()
	qualifiedRecord(ds, now, 1, 10, 6, 0, 1)
	qualifiedRecord(ds, now, 2, 20, 6, 0, 2)   // qualified alternate, kept
	qualifiedRecord(ds, now, 3, 30, 6, 255, 3) // disqualified by steps, evicted

	local := slaveEligibleLocal()
	rec := Run(ds, local, now)
	if rec.Outcome != OutcomeUncalibrated {
		t.Fatalf("rec = %+v", rec)
	}
	if ds.Len() != 2 {
		t.Fatalf("len = %d after eviction, want 2", ds.Len())
	}
	if ds.Best() == nil || ds.Best().Announce.GrandmasterIdentity != (wire.ClockIdentity{1}) {
		t.Fatalf("best = %+v", ds.Best())
	}
	if ds.Find(wire.PortIdentity{ClockIdentity: wire.ClockIdentity{2}, PortNumber: 1}) < 0 {
		t.Fatal("qualified alternate was evicted")
	}
	if ds.Find(wire.PortIdentity{ClockIdentity: wire.ClockIdentity{3}, PortNumber: 1}) >= 0 {
		t.Fatal("disqualified record survived eviction")
	}
}

type rejectingDiscriminator struct{}

func (rejectingDiscriminator) ReferenceOffset() (time.Duration, bool) { return 0, true }

func TestRunDiscriminatorOnlyDisqualificationForcesListening(t *testing.T) {
	ds := foreign.NewDataset(4)
	now := time.Now()
	r := qualifiedRecord(ds, now, 1, 10, 6, 0, 1)
	// sample far outside any threshold
	r.RecordSync(1, now.Add(time.Hour), wire.TimestampFromTime(now), 0, false)

	local := slaveEligibleLocal()
	local.Discriminator = rejectingDiscriminator{}
	local.DiscriminatorThreshold = time.Millisecond
	local.IsSlaveOrUncalibrated = true

	rec := Run(ds, local, now)
	if rec.Outcome != OutcomeListening {
		t.Fatalf("rec = %+v, want listening", rec)
	}
	if !rec.DiscriminatorDisqualified {
		t.Fatal("discriminator disqualification not reported")
	}
}

func TestLongestAnnouncedInterval(t *testing.T) {
	ds := foreign.NewDataset(4)
	now := time.Now()
	r1 := qualifiedRecord(ds, now, 1, 10, 6, 0, 1)
	r2 := qualifiedRecord(ds, now, 2, 20, 6, 0, 2)
	r1.Header.LogMessageInterval = 1
	r2.Header.LogMessageInterval = 3
	qual := func(r *foreign.Record) foreign.Qualification {
		return ds.Qualification(r, now, 0, nil, 0)
	}

	got, clamped := LongestAnnouncedInterval(ds, 1, qual)
	if got != 3 || clamped {
		t.Fatalf("interval = %d clamped=%v, want 3 unclamped", got, clamped)
	}

	// an unqualified record must not drive the hint
	r3 := qualifiedRecord(ds, now, 3, 30, 6, 255, 3) // steps-removed disqualifies
	r3.Header.LogMessageInterval = 4
	got, clamped = LongestAnnouncedInterval(ds, 1, qual)
	if got != 3 || clamped {
		t.Fatalf("interval = %d clamped=%v, want unqualified record skipped", got, clamped)
	}

	r2.Header.LogMessageInterval = 9
	got, clamped = LongestAnnouncedInterval(ds, 1, qual)
	if got != AnnounceIntervalMax || !clamped {
		t.Fatalf("interval = %d clamped=%v, want clamp to %d", got, clamped, AnnounceIntervalMax)
	}

	empty := foreign.NewDataset(4)
	got, clamped = LongestAnnouncedInterval(empty, 1, nil)
	if got != 1 || clamped {
		t.Fatalf("interval = %d clamped=%v, want default", got, clamped)
	}
}
