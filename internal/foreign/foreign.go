// Package foreign tracks candidate masters observed on a PTP port: the
// per-sender Announce history used for qualification, liveness expiry,
// and the sync-offset snapshots consulted when a discriminator clock is
// configured.
package foreign

import (
	"math"
	"time"

	"example.com/ptpport/internal/wire"
)

const (
	// Threshold is the number of recorded Announce arrivals required
	// before a record can qualify.
	Threshold = 2
	// TimeWindow scales the announce interval into the liveness window.
	TimeWindow = 4
)

// Window returns the qualification/expiry window for the current
// announce log interval. It breathes with the negotiated rate rather
// than being a fixed constant.
func Window(logAnnounceInterval int8) time.Duration {
	return time.Duration(TimeWindow * math.Pow(2, float64(logAnnounceInterval)) * float64(time.Second))
}

// Qualification classifies a record's eligibility for master selection.
type Qualification int

const (
	Qualified Qualification = iota
	UnqualifiedByAnnounceExpiry
	UnqualifiedByDiscriminator
	UnqualifiedBySteps
)

func (q Qualification) String() string {
	switch q {
	case Qualified:
		return "qualified"
	case UnqualifiedByAnnounceExpiry:
		return "unqualified:announce-expiry"
	case UnqualifiedByDiscriminator:
		return "unqualified:discriminator"
	case UnqualifiedBySteps:
		return "unqualified:steps-removed"
	}
	return "unqualified:unknown"
}

// Discriminator is an external reference clock used to disqualify
// masters whose reported offset diverges too far from it.
type Discriminator interface {
	// ReferenceOffset returns the reference clock's current offset
	// from local time, and whether a sample is available.
	ReferenceOffset() (time.Duration, bool)
}

// SyncSnapshot is the most recent local-vs-remote offset sample for a
// candidate master, consumed only by discriminator qualification.
type SyncSnapshot struct {
	Valid      bool
	SequenceID uint16
	Offset     time.Duration

	pending     bool
	pendingRecv time.Time
	pendingCorr wire.Correction
}

// Record is one observed candidate master.
type Record struct {
	Header   wire.Header
	Announce wire.Announce
	CommCaps wire.CommunicationCapabilities
	// Address is the sender's transport address, kept for hybrid-mode
	// unicast replies. Opaque to this package.
	Address []byte

	Snapshot SyncSnapshot

	arrivals     [Threshold]time.Time
	arrivalCount int
	arrivalNext  int
}

// SourcePortIdentity returns the sender identity keying this record.
func (r *Record) SourcePortIdentity() wire.PortIdentity {
	return r.Header.SourcePortIdentity
}

func (r *Record) pushArrival(now time.Time) {
	r.arrivals[r.arrivalNext] = now
	r.arrivalNext = (r.arrivalNext + 1) % Threshold
	if r.arrivalCount < Threshold {
		r.arrivalCount++
	}
}

// EarliestArrival returns the oldest retained Announce arrival.
func (r *Record) EarliestArrival() (time.Time, bool) {
	if r.arrivalCount == 0 {
		return time.Time{}, false
	}
	if r.arrivalCount < Threshold {
		return r.arrivals[0], true
	}
	return r.arrivals[r.arrivalNext], true
}

// LatestArrival returns the most recent Announce arrival.
func (r *Record) LatestArrival() (time.Time, bool) {
	if r.arrivalCount == 0 {
		return time.Time{}, false
	}
	last := (r.arrivalNext + Threshold - 1) % Threshold
	if r.arrivalCount < Threshold {
		last = r.arrivalCount - 1
	}
	return r.arrivals[last], true
}

// RecordSync notes a Sync from this master. One-step syncs complete the
// offset sample immediately; two-step syncs hold it pending a FollowUp.
func (r *Record) RecordSync(seq uint16, recv time.Time, origin wire.Timestamp, corr wire.Correction, twoStep bool) {
	if twoStep {
		r.Snapshot = SyncSnapshot{
			SequenceID:  seq,
			pending:     true,
			pendingRecv: recv,
			pendingCorr: corr,
		}
		return
	}
	r.Snapshot = SyncSnapshot{
		Valid:      true,
		SequenceID: seq,
		Offset:     recv.Sub(origin.Time()) - corr.Duration(),
	}
}

// RecordFollowUp completes a pending two-step sample. A sequence
// mismatch invalidates the snapshot instead of completing it.
func (r *Record) RecordFollowUp(seq uint16, precise wire.Timestamp, corr wire.Correction) {
	if !r.Snapshot.pending || r.Snapshot.SequenceID != seq {
		r.Snapshot = SyncSnapshot{}
		return
	}
	recv := r.Snapshot.pendingRecv
	total := r.Snapshot.pendingCorr + corr
	r.Snapshot = SyncSnapshot{
		Valid:      true,
		SequenceID: seq,
		Offset:     recv.Sub(precise.Time()) - total.Duration(),
	}
}

// Dataset is the capped per-port table of candidate masters.
type Dataset struct {
	records    []Record
	capacity   int
	writeIndex int
	bestIndex  int
}

// NewDataset creates a dataset holding at most capacity records.
func NewDataset(capacity int) *Dataset {
	if capacity < 1 {
		capacity = 1
	}
	return &Dataset{
		records:   make([]Record, 0, capacity),
		capacity:  capacity,
		bestIndex: -1,
	}
}

func (d *Dataset) Len() int { return len(d.records) }

// Record returns the record at index i. The pointer is invalidated by
// the next InsertOrUpdate or Expire call.
func (d *Dataset) Record(i int) *Record { return &d.records[i] }

// BestIndex returns the index selected by the last BMCA run, or -1.
func (d *Dataset) BestIndex() int { return d.bestIndex }

// Best returns the currently selected record, or nil.
func (d *Dataset) Best() *Record {
	if d.bestIndex < 0 || d.bestIndex >= len(d.records) {
		return nil
	}
	return &d.records[d.bestIndex]
}

// SetBest records the BMCA selection.
func (d *Dataset) SetBest(i int) { d.bestIndex = i }

// Find locates the record for a sender, scanning from the best index
// since the common case is a refresh of the current best. Returns -1 if
// absent.
func (d *Dataset) Find(id wire.PortIdentity) int {
	n := len(d.records)
	if n == 0 {
		return -1
	}
	start := d.bestIndex
	if start < 0 {
		start = 0
	}
	for i := 0; i < n; i++ {
		j := (start + i) % n
		if d.records[j].SourcePortIdentity().Equal(id) {
			return j
		}
	}
	return -1
}

// InsertOrUpdate refreshes the record for the announcing sender, or
// creates one, reusing the next write slot when the table is full. The
// current best is never evicted to make room.
func (d *Dataset) InsertOrUpdate(h *wire.Header, a *wire.Announce, caps wire.CommunicationCapabilities, addr []byte, now time.Time) *Record {
	if j := d.Find(h.SourcePortIdentity); j >= 0 {
		r := &d.records[j]
		r.Header = *h
		r.Announce = *a
		r.CommCaps = caps
		r.Address = append(r.Address[:0], addr...)
		r.pushArrival(now)
		return r
	}

	var j int
	if len(d.records) < d.capacity {
		j = len(d.records)
		d.records = append(d.records, Record{})
		d.writeIndex = (j + 1) % d.capacity
	} else {
		if d.writeIndex == d.bestIndex {
			d.writeIndex = (d.writeIndex + 1) % d.capacity
		}
		j = d.writeIndex
		d.writeIndex = (d.writeIndex + 1) % d.capacity
	}
	r := &d.records[j]
	*r = Record{
		Header:   *h,
		Announce: *a,
		CommCaps: caps,
		Address:  append([]byte(nil), addr...),
	}
	r.pushArrival(now)
	return r
}

// Qualification classifies one record against the breathing expiry
// window and the optional discriminator.
func (d *Dataset) Qualification(r *Record, now time.Time, logAnnounceInterval int8, disc Discriminator, discThreshold time.Duration) Qualification {
	window := Window(logAnnounceInterval)
	earliest, ok := r.EarliestArrival()
	if !ok || r.arrivalCount < Threshold {
		return UnqualifiedByAnnounceExpiry
	}
	// a burst followed by silence must not keep qualifying
	if earliest.Before(now.Add(-window)) {
		return UnqualifiedByAnnounceExpiry
	}
	if disc != nil {
		ref, have := disc.ReferenceOffset()
		if !have || !r.Snapshot.Valid {
			return UnqualifiedByDiscriminator
		}
		diff := r.Snapshot.Offset - ref
		if diff < 0 {
			diff = -diff
		}
		if diff >= discThreshold {
			return UnqualifiedByDiscriminator
		}
	}
	if r.Announce.StepsRemoved >= 255 {
		return UnqualifiedBySteps
	}
	return Qualified
}

// Expire removes records whose latest arrival fell outside the window,
// compacting the table and adjusting the write/best indices. Returns
// the identities of the removed records.
func (d *Dataset) Expire(now time.Time, logAnnounceInterval int8) []wire.PortIdentity {
	window := Window(logAnnounceInterval)
	cutoff := now.Add(-window)
	var removed []wire.PortIdentity
	for i := 0; i < len(d.records); {
		latest, ok := d.records[i].LatestArrival()
		if ok && !latest.Before(cutoff) {
			i++
			continue
		}
		removed = append(removed, d.records[i].SourcePortIdentity())
		d.removeAt(i)
	}
	return removed
}

// Remove drops the record at index i regardless of liveness, used when
// BMCA evicts disqualified non-best records.
func (d *Dataset) Remove(i int) {
	d.removeAt(i)
}

func (d *Dataset) removeAt(i int) {
	d.records = append(d.records[:i], d.records[i+1:]...)
	if d.bestIndex == i {
		d.bestIndex = -1
	} else if d.bestIndex > i {
		d.bestIndex--
	}
	if d.writeIndex > i {
		d.writeIndex--
	}
	if len(d.records) > 0 {
		d.writeIndex %= d.capacity
	} else {
		d.writeIndex = 0
	}
}

// Reset drops every record, as done when the port re-initializes.
func (d *Dataset) Reset() {
	d.records = d.records[:0]
	d.writeIndex = 0
	d.bestIndex = -1
}
