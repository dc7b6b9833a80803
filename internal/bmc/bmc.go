// Package bmc implements the Best Master Clock Algorithm: the IEEE 1588
// dataset comparison ordering (figures 27/28) and the state decision
// (figure 26) consuming the foreign master dataset.
package bmc

import (
	"errors"
	"time"

	"example.com/ptpport/internal/foreign"
	"example.com/ptpport/internal/wire"
)

// ErrIdenticalDatasets reports a comparison that could not order two
// datasets: distinct senders must never compare equal, so the caller
// treats this as a protocol invariant violation.
var ErrIdenticalDatasets = errors.New("datasets compare equal for distinct senders")

// Announce log-interval bounds the engine will operate at.
const (
	AnnounceIntervalMin int8 = -4
	AnnounceIntervalMax int8 = 4
)

// Dataset is the comparable projection of a master: either a foreign
// record's announced fields or the local clock's defaults (D0).
type Dataset struct {
	Priority1           uint8
	GrandmasterIdentity wire.ClockIdentity
	Quality             wire.ClockQuality
	Priority2           uint8
	StepsRemoved        uint16
	SourcePortIdentity  wire.PortIdentity
	UTCOffsetValid      bool
}

// FromRecord projects a foreign master record for comparison.
func FromRecord(r *foreign.Record) Dataset {
	return Dataset{
		Priority1:           r.Announce.GrandmasterPriority1,
		GrandmasterIdentity: r.Announce.GrandmasterIdentity,
		Quality:             r.Announce.GrandmasterClockQuality,
		Priority2:           r.Announce.GrandmasterPriority2,
		StepsRemoved:        r.Announce.StepsRemoved,
		SourcePortIdentity:  r.Header.SourcePortIdentity,
		UTCOffsetValid:      r.Header.FlagField1&wire.FlagUTCOffsetValid != 0,
	}
}

// Options parameterize the comparison.
type Options struct {
	// PreferUTCValid enables the non-standard extension ranking
	// grandmasters advertising a valid UTC offset above those that
	// do not, after priority1.
	PreferUTCValid bool
	// ParentPortIdentity is the receiving port's current parent, used
	// by the same-grandmaster tie-break.
	ParentPortIdentity wire.PortIdentity
}

func cmpU8(a, b uint8) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpU16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare orders two datasets; negative means a is the better master.
// ErrIdenticalDatasets is returned when no ordering exists.
func Compare(a, b *Dataset, opt Options) (int, error) {
	idc := a.GrandmasterIdentity.Compare(b.GrandmasterIdentity)
	if idc != 0 {
		return comparePart1(a, b, idc, opt), nil
	}
	return comparePart2(a, b, opt)
}

// comparePart1 orders datasets rooted at different grandmasters.
func comparePart1(a, b *Dataset, idc int, opt Options) int {
	if c := cmpU8(a.Priority1, b.Priority1); c != 0 {
		return c
	}
	if opt.PreferUTCValid {
		if a.UTCOffsetValid && !b.UTCOffsetValid {
			return -1
		}
		if !a.UTCOffsetValid && b.UTCOffsetValid {
			return 1
		}
	}
	if c := cmpU8(a.Quality.ClockClass, b.Quality.ClockClass); c != 0 {
		return c
	}
	if c := cmpU8(uint8(a.Quality.ClockAccuracy), uint8(b.Quality.ClockAccuracy)); c != 0 {
		return c
	}
	if c := cmpU16(a.Quality.OffsetScaledLogVariance, b.Quality.OffsetScaledLogVariance); c != 0 {
		return c
	}
	if c := cmpU8(a.Priority2, b.Priority2); c != 0 {
		return c
	}
	return idc
}

// comparePart2 orders datasets rooted at the same grandmaster. A
// stepsRemoved difference above one decides outright: this is loop
// avoidance, not a topology judgment.
func comparePart2(a, b *Dataset, opt Options) (int, error) {
	if a.StepsRemoved > b.StepsRemoved+1 {
		return 1, nil
	}
	if a.StepsRemoved+1 < b.StepsRemoved {
		return -1, nil
	}

	if a.StepsRemoved > b.StepsRemoved {
		c := a.SourcePortIdentity.ClockIdentity.Compare(opt.ParentPortIdentity.ClockIdentity)
		if c != 0 {
			return c, nil
		}
		return 0, ErrIdenticalDatasets
	}
	if a.StepsRemoved < b.StepsRemoved {
		c := b.SourcePortIdentity.ClockIdentity.Compare(opt.ParentPortIdentity.ClockIdentity)
		if c != 0 {
			return c, nil
		}
		return 0, ErrIdenticalDatasets
	}

	if c := a.SourcePortIdentity.Compare(b.SourcePortIdentity); c != 0 {
		return c, nil
	}
	return 0, ErrIdenticalDatasets
}

// Outcome is the state the algorithm recommends.
type Outcome int

const (
	OutcomePreserve Outcome = iota
	OutcomeMaster
	OutcomeSlave
	OutcomeUncalibrated
	OutcomePassive
	OutcomeListening
	OutcomeFaulty
)

func (o Outcome) String() string {
	switch o {
	case OutcomePreserve:
		return "preserve"
	case OutcomeMaster:
		return "master"
	case OutcomeSlave:
		return "slave"
	case OutcomeUncalibrated:
		return "uncalibrated"
	case OutcomePassive:
		return "passive"
	case OutcomeListening:
		return "listening"
	case OutcomeFaulty:
		return "faulty"
	}
	return "unknown"
}

// DatasetUpdate names the parent/grandmaster dataset update the port
// must apply alongside the outcome.
type DatasetUpdate int

const (
	UpdateNone DatasetUpdate = iota
	// UpdateM1 copies the local defaults into the parent and
	// grandmaster datasets.
	UpdateM1
	// UpdateS1 adopts the best master's datasets.
	UpdateS1
	// UpdateP1 watches the best master without syncing to it.
	UpdateP1
)

// Local describes the deciding port's own clock and current situation.
type Local struct {
	ClockIdentity          wire.ClockIdentity
	PortNumber             uint16
	Priority1              uint8
	Priority2              uint8
	Quality                wire.ClockQuality
	SlaveOnly              bool
	UTCOffsetValid         bool
	ParentPortIdentity     wire.PortIdentity
	ServoLocked            bool
	PreferUTCValid         bool
	LogAnnounceInterval    int8
	DiscriminatorThreshold time.Duration
	Discriminator          foreign.Discriminator

	// Current state, exposed as predicates so this package stays
	// ignorant of the port's state enumeration.
	IsMaster              bool
	IsListening           bool
	IsSlaveOrUncalibrated bool
}

// D0 builds the local clock's comparison dataset. It is rebuilt on
// every decision, never cached.
func (l *Local) D0() Dataset {
	return Dataset{
		Priority1:           l.Priority1,
		GrandmasterIdentity: l.ClockIdentity,
		Quality:             l.Quality,
		Priority2:           l.Priority2,
		StepsRemoved:        0,
		SourcePortIdentity:  wire.PortIdentity{ClockIdentity: l.ClockIdentity, PortNumber: l.PortNumber},
		UTCOffsetValid:      l.UTCOffsetValid,
	}
}

// Recommendation is the result of one BMCA run.
type Recommendation struct {
	Outcome Outcome
	Update  DatasetUpdate
	// Best is the selected record, set for S1/P1 updates.
	Best *foreign.Record
	// NewMaster reports that the selected parent differs from the
	// current one: the port resets hybrid-failure counters and
	// surfaces a master-change event.
	NewMaster bool
	// ProtocolError reports an unorderable comparison.
	ProtocolError bool
	// DiscriminatorDisqualified reports that at least one record was
	// rejected purely by the discriminator.
	DiscriminatorDisqualified bool
}

// Run executes the BMCA over the foreign master dataset: selects the
// best qualified record, evicts non-best disqualified records, and
// produces the state recommendation.
func Run(ds *foreign.Dataset, local *Local, now time.Time) Recommendation {
	if ds.Len() == 0 {
		rec := Recommendation{Outcome: OutcomePreserve}
		if local.IsMaster {
			rec.Update = UpdateM1
		}
		return rec
	}

	qual := func(r *foreign.Record) foreign.Qualification {
		return ds.Qualification(r, now, local.LogAnnounceInterval, local.Discriminator, local.DiscriminatorThreshold)
	}
	opt := Options{PreferUTCValid: local.PreferUTCValid, ParentPortIdentity: local.ParentPortIdentity}

	var (
		besti         = -1
		qualified     int
		competitive   bool
		discDisqual   bool
		protocolError bool
	)
	for i := 0; i < ds.Len(); i++ {
		q := qual(ds.Record(i))
		if q == foreign.UnqualifiedByDiscriminator {
			discDisqual = true
		}
		if q != foreign.Qualified {
			continue
		}
		qualified++
		if besti < 0 {
			besti = i
			continue
		}
		a := FromRecord(ds.Record(i))
		b := FromRecord(ds.Record(besti))
		comp, err := Compare(&a, &b, opt)
		if err != nil {
			protocolError = true
			continue
		}
		if comp < 0 {
			besti = i
		}
		competitive = competitive || comp != 0
	}

	if protocolError {
		return Recommendation{Outcome: OutcomeFaulty, ProtocolError: true, DiscriminatorDisqualified: discDisqual}
	}

	if competitive || qualified == 1 {
		ds.SetBest(besti)
		evictUnselected(ds, qual)
		return decide(ds.Best(), local, opt, discDisqual)
	}
	if discDisqual && local.IsSlaveOrUncalibrated {
		return Recommendation{Outcome: OutcomeListening, DiscriminatorDisqualified: discDisqual}
	}
	return Recommendation{Outcome: OutcomePreserve, DiscriminatorDisqualified: discDisqual}
}

// evictUnselected drops every non-best record that is currently
// disqualified. Qualified-but-not-best records stay: they are live
// alternates the next run may select.
func evictUnselected(ds *foreign.Dataset, qual func(*foreign.Record) foreign.Qualification) {
	for i := 0; i < ds.Len(); {
		if i == ds.BestIndex() || qual(ds.Record(i)) == foreign.Qualified {
			i++
			continue
		}
		ds.Remove(i)
	}
}

// decide runs the figure 26 state decision against the selected best
// master.
func decide(best *foreign.Record, local *Local, opt Options, discDisqual bool) Recommendation {
	newMaster := !best.Header.SourcePortIdentity.Equal(local.ParentPortIdentity)

	if local.SlaveOnly {
		return Recommendation{
			Outcome:                   slaveOutcome(local),
			Update:                    UpdateS1,
			Best:                      best,
			NewMaster:                 newMaster,
			DiscriminatorDisqualified: discDisqual,
		}
	}

	d0 := local.D0()
	bd := FromRecord(best)
	comp, err := Compare(&d0, &bd, opt)
	if err != nil {
		return Recommendation{Outcome: OutcomeFaulty, ProtocolError: true, DiscriminatorDisqualified: discDisqual}
	}

	if comp < 0 {
		return Recommendation{Outcome: OutcomeMaster, Update: UpdateM1, DiscriminatorDisqualified: discDisqual}
	}
	if local.Quality.ClockClass < 128 {
		return Recommendation{
			Outcome:                   OutcomePassive,
			Update:                    UpdateP1,
			Best:                      best,
			NewMaster:                 newMaster,
			DiscriminatorDisqualified: discDisqual,
		}
	}
	return Recommendation{
		Outcome:                   slaveOutcome(local),
		Update:                    UpdateS1,
		Best:                      best,
		NewMaster:                 newMaster,
		DiscriminatorDisqualified: discDisqual,
	}
}

func slaveOutcome(local *Local) Outcome {
	if local.ServoLocked {
		return OutcomeSlave
	}
	return OutcomeUncalibrated
}

// LongestAnnouncedInterval surveys the announce intervals advertised by
// the dataset's currently-qualified records and returns the longest,
// clamped to the legal range, or def when no qualified master is
// advertising. The second result reports whether the raw advertised
// value had to be clamped.
func LongestAnnouncedInterval(ds *foreign.Dataset, def int8, qual func(*foreign.Record) foreign.Qualification) (int8, bool) {
	longest := wire.LogIntervalUndefined
	for i := 0; i < ds.Len(); i++ {
		r := ds.Record(i)
		if qual != nil && qual(r) != foreign.Qualified {
			continue
		}
		iv := r.Header.LogMessageInterval
		if iv == wire.LogIntervalUndefined {
			continue
		}
		if longest == wire.LogIntervalUndefined || iv > longest {
			longest = iv
		}
	}
	if longest == wire.LogIntervalUndefined {
		return def, false
	}
	clamped := longest
	if clamped < AnnounceIntervalMin {
		clamped = AnnounceIntervalMin
	} else if clamped > AnnounceIntervalMax {
		clamped = AnnounceIntervalMax
	}
	return clamped, clamped != longest
}
