package foreign

import (
	"testing"
	"time"

	"example.com/ptpport/internal/wire"
)

func announceFrom(id byte, steps uint16) (*wire.Header, *wire.Announce) {
	h := &wire.Header{
		MessageType:        wire.MsgAnnounce,
		Version:            2,
		SourcePortIdentity: wire.PortIdentity{ClockIdentity: wire.ClockIdentity{id}, PortNumber: 1},
		LogMessageInterval: 1,
	}
	a := &wire.Announce{
		GrandmasterIdentity: wire.ClockIdentity{id},
		StepsRemoved:        steps,
	}
	return h, a
}

type fixedDiscriminator struct {
	offset time.Duration
	ok     bool
}

func (f fixedDiscriminator) ReferenceOffset() (time.Duration, bool) { return f.offset, f.ok }

func TestSingleArrivalNeverQualifies(t *testing.T) {
	d := NewDataset(4)
	now := time.Now()
	h, a := announceFrom(1, 0)
	a.GrandmasterClockQuality = wire.ClockQuality{ClockClass: 6, ClockAccuracy: wire.Accuracy25ns}
	r := d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, now)
	if q := d.Qualification(r, now, 0, nil, 0); q != UnqualifiedByAnnounceExpiry {
		t.Fatalf("qualification = %v, want announce-expiry with one arrival", q)
	}
}

func TestTwoCloseArrivalsQualify(t *testing.T) {
	d := NewDataset(4)
	base := time.Now()
	h, a := announceFrom(1, 1)
	d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base)
	r := d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base.Add(time.Millisecond))
	if q := d.Qualification(r, base.Add(10*time.Millisecond), 0, nil, 0); q != Qualified {
		t.Fatalf("qualification = %v, want Qualified", q)
	}
}

func TestBurstThenSilenceDisqualifies(t *testing.T) {
	d := NewDataset(4)
	base := time.Now()
	h, a := announceFrom(1, 0)
	d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base)
	r := d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base.Add(time.Second))
	// window at log interval 0 is 4s; both arrivals are long past
	if q := d.Qualification(r, base.Add(10*time.Second), 0, nil, 0); q != UnqualifiedByAnnounceExpiry {
		t.Fatalf("qualification = %v, want announce-expiry after silence", q)
	}
}

func TestStepsRemovedDisqualifies(t *testing.T) {
	d := NewDataset(4)
	base := time.Now()
	h, a := announceFrom(1, 255)
	d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base)
	r := d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base.Add(time.Second))
	if q := d.Qualification(r, base.Add(2*time.Second), 0, nil, 0); q != UnqualifiedBySteps {
		t.Fatalf("qualification = %v, want steps-removed", q)
	}
}

func TestDiscriminatorQualification(t *testing.T) {
	base := time.Now()
	tests := []struct {
		name   string
		disc   Discriminator
		sample bool
		offset time.Duration
		want   Qualification
	}{
		{"within threshold", fixedDiscriminator{offset: 0, ok: true}, true, 5 * time.Millisecond, Qualified},
		{"exactly at threshold", fixedDiscriminator{offset: 0, ok: true}, true, 10 * time.Millisecond, UnqualifiedByDiscriminator},
		{"beyond threshold", fixedDiscriminator{offset: 0, ok: true}, true, 50 * time.Millisecond, UnqualifiedByDiscriminator},
		{"no sample yet", fixedDiscriminator{offset: 0, ok: true}, false, 0, UnqualifiedByDiscriminator},
		{"reference unavailable", fixedDiscriminator{ok: false}, true, 0, UnqualifiedByDiscriminator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDataset(4)
			h, a := announceFrom(1, 0)
			d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base)
			r := d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base.Add(time.Second))
			if tc.sample {
				r.RecordSync(9, base.Add(time.Second).Add(tc.offset), wire.TimestampFromTime(base.Add(time.Second)), 0, false)
			}
			got := d.Qualification(r, base.Add(2*time.Second), 0, tc.disc, 10*time.Millisecond)
			if got != tc.want {
				t.Fatalf("qualification = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInsertNeverEvictsBest(t *testing.T) {
	d := NewDataset(2)
	now := time.Now()
	for i := byte(1); i <= 2; i++ {
		h, a := announceFrom(i, 0)
		d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, now)
	}
	d.SetBest(0)
	best := d.Record(0).SourcePortIdentity()

	h, a := announceFrom(3, 0)
	d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, now)
	if d.Len() != 2 {
		t.Fatalf("len = %d, want 2", d.Len())
	}
	if j := d.Find(best); j != 0 {
		t.Fatalf("best record evicted (find = %d)", j)
	}
	if j := d.Find(h.SourcePortIdentity); j < 0 {
		t.Fatal("new record not inserted")
	}
}

func TestFindScansFromBest(t *testing.T) {
	d := NewDataset(4)
	now := time.Now()
	for i := byte(1); i <= 3; i++ {
		h, a := announceFrom(i, 0)
		d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, now)
	}
	d.SetBest(2)
	id := wire.PortIdentity{ClockIdentity: wire.ClockIdentity{3}, PortNumber: 1}
	if j := d.Find(id); j != 2 {
		t.Fatalf("find = %d, want 2", j)
	}
}

func TestExpireCompactsAndAdjustsIndices(t *testing.T) {
	d := NewDataset(4)
	base := time.Now()
	for i := byte(1); i <= 3; i++ {
		h, a := announceFrom(i, 0)
		when := base
		if i == 1 {
			when = base.Add(-time.Hour) // stale
		}
		d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, when)
		d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, when.Add(time.Second))
	}
	d.SetBest(2)

	removed := d.Expire(base.Add(2*time.Second), 0)
	if len(removed) != 1 || removed[0].ClockIdentity != (wire.ClockIdentity{1}) {
		t.Fatalf("removed = %v", removed)
	}
	if d.Len() != 2 {
		t.Fatalf("len = %d, want 2", d.Len())
	}
	if d.BestIndex() != 1 {
		t.Fatalf("best index = %d, want 1 after compaction", d.BestIndex())
	}
	if d.Best().SourcePortIdentity().ClockIdentity != (wire.ClockIdentity{3}) {
		t.Fatalf("best now %v", d.Best().SourcePortIdentity())
	}
}

func TestExpireOfBestInvalidatesSelection(t *testing.T) {
	d := NewDataset(4)
	base := time.Now()
	h, a := announceFrom(1, 0)
	d.InsertOrUpdate(h, a, wire.CommunicationCapabilities{}, nil, base)
	d.SetBest(0)
	d.Expire(base.Add(time.Hour), 0)
	if d.Best() != nil || d.BestIndex() != -1 {
		t.Fatal("expired best still selected")
	}
}

func TestWindowBreathesWithAnnounceInterval(t *testing.T) {
	if Window(0) != 4*time.Second {
		t.Fatalf("Window(0) = %v", Window(0))
	}
	if Window(1) != 8*time.Second {
		t.Fatalf("Window(1) = %v", Window(1))
	}
	if Window(-2) != time.Second {
		t.Fatalf("Window(-2) = %v", Window(-2))
	}
}

func TestTwoStepSnapshot(t *testing.T) {
	var r Record
	base := time.Now()
	origin := wire.TimestampFromTime(base)

	r.RecordSync(5, base.Add(3*time.Millisecond), wire.Timestamp{}, 0, true)
	if r.Snapshot.Valid {
		t.Fatal("two-step snapshot valid before follow-up")
	}
	r.RecordFollowUp(5, origin, 0)
	if !r.Snapshot.Valid {
		t.Fatal("snapshot not completed by follow-up")
	}

	// mismatched follow-up invalidates instead of completing
	r.RecordSync(6, base, wire.Timestamp{}, 0, true)
	r.RecordFollowUp(7, origin, 0)
	if r.Snapshot.Valid {
		t.Fatal("mismatched follow-up completed the snapshot")
	}
}
