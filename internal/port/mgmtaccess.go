package port

import (
	"encoding/binary"

	"example.com/ptpport/internal/wire"
)

// DatasetAccessor implements the per-attribute management accessors over
// a port. It runs on the port's event loop, so it reads and writes the
// engine's state directly.
type DatasetAccessor struct {
	Port *Port
}

// Handle dispatches one management request. A zero error id means
// success and data is the response payload.
func (a *DatasetAccessor) Handle(action wire.ManagementAction, id wire.ManagementID, data []byte) ([]byte, wire.ManagementErrorID) {
	switch action {
	case wire.ActionGet:
		return a.get(id)
	case wire.ActionSet:
		return a.set(id, data)
	case wire.ActionCommand:
		return a.command(id)
	}
	return nil, wire.MgmtErrNotSupported
}

func (a *DatasetAccessor) get(id wire.ManagementID) ([]byte, wire.ManagementErrorID) {
	p := a.Port
	switch id {
	case wire.MMDefaultDataSet:
		b := make([]byte, 20)
		if p.cfg.TwoStep {
			b[0] |= 0x02
		}
		if p.cfg.SlaveOnly {
			b[0] |= 0x01
		}
		binary.BigEndian.PutUint16(b[2:4], 1) // numberPorts
		b[4] = p.cfg.Priority1
		b[5] = p.cfg.ClockClass
		b[6] = uint8(p.cfg.ClockAccuracy)
		binary.BigEndian.PutUint16(b[7:9], p.cfg.OffsetScaledLogVariance)
		b[9] = p.cfg.Priority2
		copy(b[10:18], p.cfg.ClockIdentity[:])
		b[18] = p.cfg.DomainNumber
		return b, 0
	case wire.MMCurrentDataSet:
		b := make([]byte, 18)
		binary.BigEndian.PutUint16(b[0:2], p.stepsRemoved)
		return b, 0
	case wire.MMParentDataSet:
		b := make([]byte, 32)
		copy(b[0:8], p.parentPortIdentity.ClockIdentity[:])
		binary.BigEndian.PutUint16(b[8:10], p.parentPortIdentity.PortNumber)
		binary.BigEndian.PutUint16(b[12:14], 0xFFFF)
		binary.BigEndian.PutUint32(b[14:18], 0xFFFFFFFF)
		b[18] = p.grandmasterPriority1
		b[19] = p.grandmasterQuality.ClockClass
		b[20] = uint8(p.grandmasterQuality.ClockAccuracy)
		binary.BigEndian.PutUint16(b[21:23], p.grandmasterQuality.OffsetScaledLogVariance)
		b[23] = p.grandmasterPriority2
		copy(b[24:32], p.grandmasterIdentity[:])
		return b, 0
	case wire.MMTimePropertiesDataSet:
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], uint16(p.currentUTCOffset))
		var flags uint8 = wire.FlagPTPTimescale
		if p.leap61 {
			flags |= wire.FlagLeap61
		}
		if p.leap59 {
			flags |= wire.FlagLeap59
		}
		if p.utcOffsetValid {
			flags |= wire.FlagUTCOffsetValid
		}
		if p.timeTraceable {
			flags |= wire.FlagTimeTraceable
		}
		if p.frequencyTraceable {
			flags |= wire.FlagFrequencyTraceable
		}
		b[2] = flags
		b[3] = uint8(p.timeSource)
		return b, 0
	case wire.MMPortDataSet:
		b := make([]byte, 26)
		copy(b[0:8], p.cfg.ClockIdentity[:])
		binary.BigEndian.PutUint16(b[8:10], p.cfg.PortNumber)
		b[10] = uint8(p.state)
		b[11] = uint8(p.logMinDelayReqInterval)
		b[20] = uint8(p.logAnnounceInterval)
		b[21] = uint8(p.cfg.AnnounceReceiptTimeout)
		b[22] = uint8(p.logSyncInterval)
		if p.cfg.DelayMechanism == P2P {
			b[23] = 2
		} else {
			b[23] = 1
		}
		b[24] = uint8(p.cfg.LogMinPDelayReqInterval)
		b[25] = 2 // versionNumber
		return b, 0
	case wire.MMPriority1:
		return []byte{p.cfg.Priority1, 0}, 0
	case wire.MMPriority2:
		return []byte{p.cfg.Priority2, 0}, 0
	case wire.MMDomain:
		return []byte{p.cfg.DomainNumber, 0}, 0
	case wire.MMSlaveOnly:
		b := []byte{0, 0}
		if p.cfg.SlaveOnly {
			b[0] = 1
		}
		return b, 0
	case wire.MMLogAnnounceInterval:
		return []byte{uint8(p.logAnnounceInterval), 0}, 0
	case wire.MMAnnounceReceiptTimeout:
		return []byte{uint8(p.cfg.AnnounceReceiptTimeout), 0}, 0
	case wire.MMLogSyncInterval:
		return []byte{uint8(p.logSyncInterval), 0}, 0
	case wire.MMVersionNumber:
		return []byte{2, 0}, 0
	case wire.MMClockAccuracy:
		return []byte{uint8(p.cfg.ClockAccuracy), 0}, 0
	case wire.MMUTCProperties:
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], uint16(p.currentUTCOffset))
		if p.leap61 {
			b[2] |= 0x01
		}
		if p.leap59 {
			b[2] |= 0x02
		}
		if p.utcOffsetValid {
			b[2] |= 0x04
		}
		return b, 0
	case wire.MMDelayMechanism:
		b := []byte{1, 0}
		if p.cfg.DelayMechanism == P2P {
			b[0] = 2
		}
		return b, 0
	case wire.MMLogMinPDelayReqInterval:
		return []byte{uint8(p.cfg.LogMinPDelayReqInterval), 0}, 0
	case wire.MMSaveInNonVolatileStorage, wire.MMResetNonVolatileStorage,
		wire.MMInitialize, wire.MMFaultLog, wire.MMFaultLogReset,
		wire.MMClockDescription, wire.MMUserDescription, wire.MMTime,
		wire.MMTraceabilityProperties, wire.MMTimescaleProperties,
		wire.MMUnicastNegotiationEnable:
		return nil, wire.MgmtErrNotSupported
	}
	return nil, wire.MgmtErrNoSuchID
}

func (a *DatasetAccessor) set(id wire.ManagementID, data []byte) ([]byte, wire.ManagementErrorID) {
	p := a.Port
	switch id {
	case wire.MMPriority1:
		if len(data) < 1 {
			return nil, wire.MgmtErrWrongLength
		}
		p.cfg.Priority1 = data[0]
		p.recordUpdate = true
		return []byte{p.cfg.Priority1, 0}, 0
	case wire.MMPriority2:
		if len(data) < 1 {
			return nil, wire.MgmtErrWrongLength
		}
		p.cfg.Priority2 = data[0]
		p.recordUpdate = true
		return []byte{p.cfg.Priority2, 0}, 0
	case wire.MMDefaultDataSet, wire.MMCurrentDataSet, wire.MMParentDataSet,
		wire.MMTimePropertiesDataSet, wire.MMPortDataSet:
		return nil, wire.MgmtErrNotSetable
	}
	if _, errID := a.get(id); errID == wire.MgmtErrNoSuchID {
		return nil, wire.MgmtErrNoSuchID
	}
	return nil, wire.MgmtErrNotSupported
}

func (a *DatasetAccessor) command(id wire.ManagementID) ([]byte, wire.ManagementErrorID) {
	p := a.Port
	switch id {
	case wire.MMEnablePort:
		if p.state == StateDisabled {
			p.toState(StateInitializing)
			p.toState(StateListening)
		}
		return nil, 0
	case wire.MMDisablePort:
		p.toState(StateDisabled)
		return nil, 0
	}
	if _, errID := a.get(id); errID == wire.MgmtErrNoSuchID {
		return nil, wire.MgmtErrNoSuchID
	}
	return nil, wire.MgmtErrNotSupported
}
