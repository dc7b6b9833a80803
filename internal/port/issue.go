package port

import (
	"net/netip"
	"time"

	"example.com/ptpport/internal/common"
	"example.com/ptpport/internal/timers"
	"example.com/ptpport/internal/wire"
)

// maxPacket covers the largest message this engine emits, an Announce
// with trailing TLVs.
const maxPacket = 128

func (p *Port) headerTemplate(t wire.MessageType, seq uint16, logInterval int8) wire.Header {
	return wire.Header{
		MessageType:        t,
		MinorVersion:       p.cfg.MinorVersion,
		Version:            2,
		DomainNumber:       p.cfg.DomainNumber,
		SourcePortIdentity: p.PortIdentity(),
		SequenceID:         seq,
		LogMessageInterval: logInterval,
	}
}

// handleSendFailure reacts to a transport error. With interface
// tolerance the port parks in LISTENING waiting for the link to come
// back; otherwise a missing interface is a fault.
func (p *Port) handleSendFailure(what string, err error) {
	p.counters.MessageSendErrors++
	common.Logf("ptp %s: sending %s failed: %v", p.cfg.Name, what, err)
	if p.cfg.MissingInterfaceTolerance {
		p.toState(StateListening)
		p.alarms.Raise(AlarmNoInterface)
		return
	}
	p.toState(StateFaulty)
}

func (p *Port) announceFlags1() uint8 {
	var f uint8 = wire.FlagPTPTimescale
	if p.leap59 {
		f |= wire.FlagLeap59
	}
	if p.leap61 {
		f |= wire.FlagLeap61
	}
	if p.cfg.UTCOffsetValid {
		f |= wire.FlagUTCOffsetValid
	}
	if p.timeTraceable {
		f |= wire.FlagTimeTraceable
	}
	if p.frequencyTraceable {
		f |= wire.FlagFrequencyTraceable
	}
	return f
}

func (p *Port) issueAnnounce() {
	h := p.headerTemplate(wire.MsgAnnounce, p.sentAnnounceSeq, p.logAnnounceInterval)
	h.FlagField1 = p.announceFlags1()
	a := wire.Announce{
		CurrentUTCOffset:        p.currentUTCOffset,
		GrandmasterPriority1:    p.grandmasterPriority1,
		GrandmasterClockQuality: p.grandmasterQuality,
		GrandmasterPriority2:    p.grandmasterPriority2,
		GrandmasterIdentity:     p.grandmasterIdentity,
		StepsRemoved:            p.stepsRemoved,
		TimeSource:              p.timeSource,
	}

	buf := make([]byte, maxPacket)
	n, err := wire.PackAnnounce(buf, &h, &a)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	// capability TLVs are only understood by minor-version-aware peers
	if p.cfg.CommCapsTLVEnabled && p.cfg.MinorVersion >= 1 {
		n, err = wire.AppendCommunicationCapabilitiesTLV(buf, n, p.cfg.CommCaps)
		if err != nil {
			p.counters.MessageFormatErrors++
			return
		}
	}

	if err := p.transport.SendGeneral(buf[:n], netip.AddrPort{}); err != nil {
		p.handleSendFailure("announce", err)
		return
	}
	p.sentAnnounceSeq++
	p.counters.AnnounceMessagesSent++
}

func (p *Port) issueSync(now time.Time) {
	h := p.headerTemplate(wire.MsgSync, p.sentSyncSeq, p.logSyncInterval)
	if p.cfg.TwoStep {
		h.FlagField0 |= wire.FlagTwoStep
	}
	s := wire.Sync{OriginTimestamp: wire.TimestampFromTime(now)}

	buf := make([]byte, wire.SyncLength)
	n, err := wire.PackSync(buf, &h, &s)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if err := p.transport.SendEvent(buf[:n], netip.AddrPort{}); err != nil {
		p.handleSendFailure("sync", err)
		return
	}
	if p.cfg.TwoStep {
		p.txCache.Expect(TxSync, p.sentSyncSeq)
	}
	p.sentSyncSeq++
	p.counters.SyncMessagesSent++
}

func (p *Port) issueFollowUp(seq uint16, precise time.Time) {
	h := p.headerTemplate(wire.MsgFollowUp, seq, p.logSyncInterval)
	f := wire.FollowUp{PreciseOriginTimestamp: wire.TimestampFromTime(precise)}

	buf := make([]byte, wire.FollowUpLength)
	n, err := wire.PackFollowUp(buf, &h, &f)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if err := p.transport.SendGeneral(buf[:n], netip.AddrPort{}); err != nil {
		p.handleSendFailure("follow-up", err)
		return
	}
	p.counters.FollowUpMessagesSent++
}

func (p *Port) issueDelayReq() {
	caps := p.effectiveCommCaps.DelayRespCapabilities
	if caps == 0 {
		p.alarms.Raise(AlarmCapsMismatch)
		return
	}
	unicast := caps&wire.CommUnicastCapable != 0 && p.parentAddress.IsValid()

	h := p.headerTemplate(wire.MsgDelayReq, p.sentDelayReqSeq, wire.LogIntervalUndefined)
	if unicast {
		h.FlagField0 |= wire.FlagUnicast
	}
	d := wire.DelayReq{}

	buf := make([]byte, wire.DelayReqLength)
	n, err := wire.PackDelayReq(buf, &h, &d)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	dst := netip.AddrPort{}
	if unicast {
		dst = p.parentAddress
	}
	if err := p.transport.SendEvent(buf[:n], dst); err != nil {
		p.handleSendFailure("delay request", err)
		return
	}
	p.txCache.Expect(TxDelayReq, p.sentDelayReqSeq)
	p.delayReqTxValid = false
	p.sentDelayReqSeq++
	p.counters.DelayReqMessagesSent++
	p.timers.StartRandom(timers.DelayReqInterval, pow2(p.logMinDelayReqInterval))
}

func (p *Port) issueDelayResp(recv time.Time, req *wire.Header, src netip.AddrPort) {
	h := p.headerTemplate(wire.MsgDelayResp, req.SequenceID, p.logMinDelayReqInterval)
	h.Correction = req.Correction
	if req.Unicast() {
		h.FlagField0 |= wire.FlagUnicast
	}
	d := wire.DelayResp{
		ReceiveTimestamp:       wire.TimestampFromTime(recv),
		RequestingPortIdentity: req.SourcePortIdentity,
	}

	buf := make([]byte, wire.DelayRespLength)
	n, err := wire.PackDelayResp(buf, &h, &d)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	dst := netip.AddrPort{}
	if req.Unicast() {
		dst = src
	}
	if err := p.transport.SendGeneral(buf[:n], dst); err != nil {
		p.handleSendFailure("delay response", err)
		return
	}
	p.counters.DelayRespMessagesSent++
}

func (p *Port) issuePDelayReq() {
	h := p.headerTemplate(wire.MsgPDelayReq, p.sentPDelayReqSeq, p.cfg.LogMinPDelayReqInterval)
	d := wire.PDelayReq{}

	buf := make([]byte, wire.PDelayReqLength)
	n, err := wire.PackPDelayReq(buf, &h, &d)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if err := p.transport.SendEvent(buf[:n], netip.AddrPort{}); err != nil {
		p.handleSendFailure("pdelay request", err)
		return
	}
	p.pendingPDelay = pendingPDelay{waiting: true, seq: p.sentPDelayReqSeq}
	p.txCache.Expect(TxPDelayReq, p.sentPDelayReqSeq)
	p.sentPDelayReqSeq++
	p.counters.PDelayReqMessagesSent++
	p.timers.StartRandom(timers.PDelayReqInterval, pow2(p.cfg.LogMinPDelayReqInterval))
}

func (p *Port) issuePDelayResp(recv time.Time, req *wire.Header, src netip.AddrPort) {
	h := p.headerTemplate(wire.MsgPDelayResp, req.SequenceID, wire.LogIntervalUndefined)
	h.FlagField0 |= wire.FlagTwoStep
	h.Correction = req.Correction
	if req.Unicast() {
		h.FlagField0 |= wire.FlagUnicast
	}
	d := wire.PDelayResp{
		RequestReceiptTimestamp: wire.TimestampFromTime(recv),
		RequestingPortIdentity:  req.SourcePortIdentity,
	}

	buf := make([]byte, wire.PDelayRespLength)
	n, err := wire.PackPDelayResp(buf, &h, &d)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	dst := netip.AddrPort{}
	if req.Unicast() {
		dst = src
	}
	if err := p.transport.SendEvent(buf[:n], dst); err != nil {
		p.handleSendFailure("pdelay response", err)
		return
	}
	p.pdRespSeq = req.SequenceID
	p.pdRespReqPort = req.SourcePortIdentity
	p.pdRespAddr = dst
	p.pdRespUnicast = req.Unicast()
	p.txCache.Expect(TxPDelayResp, req.SequenceID)
	p.counters.PDelayRespMessagesSent++
}

func (p *Port) issuePDelayRespFollowUp(tx time.Time) {
	h := p.headerTemplate(wire.MsgPDelayRespFollowUp, p.pdRespSeq, wire.LogIntervalUndefined)
	if p.pdRespUnicast {
		h.FlagField0 |= wire.FlagUnicast
	}
	d := wire.PDelayRespFollowUp{
		ResponseOriginTimestamp: wire.TimestampFromTime(tx),
		RequestingPortIdentity:  p.pdRespReqPort,
	}

	buf := make([]byte, wire.PDelayRespFollowUpLength)
	n, err := wire.PackPDelayRespFollowUp(buf, &h, &d)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if err := p.transport.SendGeneral(buf[:n], p.pdRespAddr); err != nil {
		p.handleSendFailure("pdelay response follow-up", err)
		return
	}
	p.counters.PDelayRespFollowUpMessagesSent++
}

// issueMonitoringSync answers a monitoring request with a unicast
// two-step Sync aimed at the requester.
func (p *Port) issueMonitoringSync(dst netip.AddrPort, now time.Time) {
	h := p.headerTemplate(wire.MsgSync, p.monitoringSeq, p.logSyncInterval)
	h.FlagField0 |= wire.FlagTwoStep | wire.FlagUnicast
	s := wire.Sync{OriginTimestamp: wire.TimestampFromTime(now)}

	buf := make([]byte, wire.SyncLength)
	n, err := wire.PackSync(buf, &h, &s)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if err := p.transport.SendEvent(buf[:n], dst); err != nil {
		p.handleSendFailure("monitoring sync", err)
		return
	}
	p.monitoringAddr = dst
	p.monitoringPending = true
	p.txCache.Expect(TxMonitoringSync, p.monitoringSeq)
	p.monitoringSeq++
	p.counters.MonitoringSyncsSent++
}

func (p *Port) issueMonitoringFollowUp(seq uint16, tx time.Time) {
	h := p.headerTemplate(wire.MsgFollowUp, seq, p.logSyncInterval)
	h.FlagField0 |= wire.FlagUnicast
	f := wire.FollowUp{PreciseOriginTimestamp: wire.TimestampFromTime(tx)}

	buf := make([]byte, wire.FollowUpLength)
	n, err := wire.PackFollowUp(buf, &h, &f)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if err := p.transport.SendGeneral(buf[:n], p.monitoringAddr); err != nil {
		p.handleSendFailure("monitoring follow-up", err)
		return
	}
	p.monitoringPending = false
	p.counters.MonitoringFollowUpsSent++
}

// CompleteTxTimestamp delivers a transmit timestamp to the engine. The
// transport calls it for error-queue reads; the dispatcher calls it when
// it recognizes the looped-back copy of our own multicast.
func (p *Port) CompleteTxTimestamp(kind TxKind, seq uint16, ts time.Time, valid bool) {
	if !p.txCache.Match(kind, seq) {
		return
	}
	if !valid {
		p.counters.TxPktNoTimestamp++
		p.alarms.Raise(AlarmNoTxTimestamps)
		return
	}
	p.alarms.Clear(AlarmNoTxTimestamps)

	switch kind {
	case TxSync:
		if p.cfg.TwoStep && p.state == StateMaster {
			p.issueFollowUp(seq, ts)
		}
	case TxMonitoringSync:
		if p.monitoringPending {
			p.issueMonitoringFollowUp(seq, ts)
		}
	case TxDelayReq:
		p.delayReqTx = ts
		p.delayReqTxValid = true
		p.waitingForDelayResp = true
		p.timers.Start(timers.DelayRespReceipt, pow2(p.cfg.DelayRespReceiptTimeout))
	case TxPDelayReq:
		if p.pendingPDelay.waiting && p.pendingPDelay.seq == seq {
			p.pendingPDelay.reqTx = ts
			p.pendingPDelay.reqTxValid = true
			p.timers.Start(timers.PDelayRespReceipt, pow2(p.cfg.DelayRespReceiptTimeout))
		}
	case TxPDelayResp:
		p.issuePDelayRespFollowUp(ts)
	}
}
