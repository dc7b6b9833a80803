package port

import (
	"example.com/ptpport/internal/wire"
)

// ForeignMasterInfo is one foreign master record as exposed to readers.
type ForeignMasterInfo struct {
	SourcePortIdentity   wire.PortIdentity  `json:"sourcePortIdentity"`
	GrandmasterIdentity  wire.ClockIdentity `json:"grandmasterIdentity"`
	GrandmasterPriority1 uint8              `json:"grandmasterPriority1"`
	ClockClass           uint8              `json:"clockClass"`
	StepsRemoved         uint16             `json:"stepsRemoved"`
	Selected             bool               `json:"selected"`
}

// Snapshot is a point-in-time copy of the port's externally visible
// state, published by the event loop for the status and management
// planes.
type Snapshot struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	Alarms       string `json:"alarms"`
	DomainNumber uint8  `json:"domainNumber"`

	PortIdentity       wire.PortIdentity `json:"portIdentity"`
	ParentPortIdentity wire.PortIdentity `json:"parentPortIdentity"`

	GrandmasterIdentity  wire.ClockIdentity `json:"grandmasterIdentity"`
	GrandmasterPriority1 uint8              `json:"grandmasterPriority1"`
	GrandmasterPriority2 uint8              `json:"grandmasterPriority2"`
	GrandmasterQuality   wire.ClockQuality  `json:"grandmasterQuality"`
	StepsRemoved         uint16             `json:"stepsRemoved"`
	TimeSource           uint8              `json:"timeSource"`

	CurrentUTCOffset int16 `json:"currentUtcOffset"`
	UTCOffsetValid   bool  `json:"utcOffsetValid"`
	Leap59           bool  `json:"leap59"`
	Leap61           bool  `json:"leap61"`
	TimeTraceable    bool  `json:"timeTraceable"`

	LogAnnounceInterval    int8 `json:"logAnnounceInterval"`
	LogSyncInterval        int8 `json:"logSyncInterval"`
	LogMinDelayReqInterval int8 `json:"logMinDelayReqInterval"`

	EffectiveCommCaps wire.CommunicationCapabilities `json:"effectiveCommCaps"`

	ForeignMasters []ForeignMasterInfo `json:"foreignMasters"`
	Counters       Counters            `json:"counters"`
}

// Snapshot copies the externally visible state. It must be called from
// the port's event loop; the returned value is safe to share.
func (p *Port) Snapshot() Snapshot {
	s := Snapshot{
		Name:                   p.cfg.Name,
		State:                  p.state.String(),
		Alarms:                 p.alarms.String(),
		DomainNumber:           p.cfg.DomainNumber,
		PortIdentity:           p.PortIdentity(),
		ParentPortIdentity:     p.parentPortIdentity,
		GrandmasterIdentity:    p.grandmasterIdentity,
		GrandmasterPriority1:   p.grandmasterPriority1,
		GrandmasterPriority2:   p.grandmasterPriority2,
		GrandmasterQuality:     p.grandmasterQuality,
		StepsRemoved:           p.stepsRemoved,
		TimeSource:             uint8(p.timeSource),
		CurrentUTCOffset:       p.currentUTCOffset,
		UTCOffsetValid:         p.utcOffsetValid,
		Leap59:                 p.leap59,
		Leap61:                 p.leap61,
		TimeTraceable:          p.timeTraceable,
		LogAnnounceInterval:    p.logAnnounceInterval,
		LogSyncInterval:        p.logSyncInterval,
		LogMinDelayReqInterval: p.logMinDelayReqInterval,
		EffectiveCommCaps:      p.effectiveCommCaps,
		Counters:               p.counters,
	}
	for i := 0; i < p.foreign.Len(); i++ {
		r := p.foreign.Record(i)
		s.ForeignMasters = append(s.ForeignMasters, ForeignMasterInfo{
			SourcePortIdentity:   r.Header.SourcePortIdentity,
			GrandmasterIdentity:  r.Announce.GrandmasterIdentity,
			GrandmasterPriority1: r.Announce.GrandmasterPriority1,
			ClockClass:           r.Announce.GrandmasterClockQuality.ClockClass,
			StepsRemoved:         r.Announce.StepsRemoved,
			Selected:             i == p.foreign.BestIndex(),
		})
	}
	return s
}
