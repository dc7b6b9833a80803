package port

import (
	"time"

	"example.com/ptpport/internal/common"
	"example.com/ptpport/internal/timers"
	"example.com/ptpport/internal/wire"
)

func (p *Port) fromCurrentParent(h *wire.Header) bool {
	return h.SourcePortIdentity.Equal(p.parentPortIdentity)
}

func (p *Port) handleAnnounce(ctx *rxContext) {
	switch p.state {
	case StateListening, StateMaster, StatePassive, StateUncalibrated, StateSlave:
	default:
		p.counters.DiscardedMessages++
		return
	}
	p.counters.AnnounceMessagesReceived++

	a, err := wire.UnpackAnnounce(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	r := p.foreign.InsertOrUpdate(ctx.header, &a, ctx.commCaps, encodeAddr(ctx.src), ctx.recv)
	p.recordUpdate = true

	switch p.state {
	case StateSlave, StateUncalibrated, StatePassive:
		if p.fromCurrentParent(ctx.header) {
			p.timers.Start(timers.AnnounceReceipt,
				float64(p.cfg.AnnounceReceiptTimeout)*pow2(p.logAnnounceInterval))
			if p.state != StatePassive {
				p.applyS1(r)
			}
		}
	case StateListening, StateMaster:
		p.updateAnnounceIntervalFromMasters()
	}
}

// recordForeignSync notes a Sync against the sender's foreign record so
// discriminator qualification can evaluate candidates the port is not
// currently listening to. Runs before any state or parent gate.
func (p *Port) recordForeignSync(ctx *rxContext) {
	if p.cfg.Discriminator == nil || !ctx.recvValid {
		return
	}
	j := p.foreign.Find(ctx.header.SourcePortIdentity)
	if j < 0 {
		return
	}
	s, err := wire.UnpackSync(ctx.buf)
	if err != nil {
		return
	}
	p.foreign.Record(j).RecordSync(ctx.header.SequenceID, ctx.recv, s.OriginTimestamp,
		ctx.header.Correction, ctx.header.TwoStep())
}

// recordForeignFollowUp completes a candidate's pending two-step sample.
func (p *Port) recordForeignFollowUp(ctx *rxContext) {
	if p.cfg.Discriminator == nil {
		return
	}
	j := p.foreign.Find(ctx.header.SourcePortIdentity)
	if j < 0 {
		return
	}
	f, err := wire.UnpackFollowUp(ctx.buf)
	if err != nil {
		return
	}
	p.foreign.Record(j).RecordFollowUp(ctx.header.SequenceID, f.PreciseOriginTimestamp,
		ctx.header.Correction)
}

func (p *Port) handleSync(ctx *rxContext) {
	p.recordForeignSync(ctx)
	switch p.state {
	case StateSlave, StateUncalibrated:
	default:
		p.counters.DiscardedMessages++
		return
	}
	p.counters.SyncMessagesReceived++

	if !p.fromCurrentParent(ctx.header) {
		p.counters.StateMismatchErrors++
		return
	}
	if !ctx.recvValid {
		p.counters.RxPktNoTimestamp++
		p.alarms.Raise(AlarmNoRxTimestamps)
		return
	}
	p.alarms.Clear(AlarmNoRxTimestamps)
	p.alarms.Clear(AlarmNoSync)
	p.missedSyncs = 0
	p.nextSyncWarning = 1
	p.timers.Start(timers.SyncReceipt,
		float64(p.cfg.SyncReceiptTimeout)*pow2(p.logSyncInterval))

	p.adoptSyncInterval(ctx.header.LogMessageInterval)

	if p.waitingForFirstSync {
		p.waitingForFirstSync = false
		if p.cfg.DelayMechanism == E2E {
			p.timers.StartRandom(timers.DelayReqInterval, pow2(p.logMinDelayReqInterval))
		}
	}

	s, err := wire.UnpackSync(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	if ctx.header.TwoStep() {
		p.pendingSync = pendingSync{
			active:     true,
			seq:        ctx.header.SequenceID,
			recv:       ctx.recv,
			correction: ctx.header.Correction,
		}
		// a FollowUp that overtook this Sync may already be cached
		if p.oooFollowUp.active && p.oooFollowUp.seq == ctx.header.SequenceID {
			fu := p.oooFollowUp
			p.oooFollowUp = oooFollowUp{}
			p.completeSyncMeasurement(fu.precise, ctx.recv, ctx.header.Correction+fu.correction)
		}
		return
	}
	p.completeSyncMeasurement(s.OriginTimestamp, ctx.recv, ctx.header.Correction)
}

func (p *Port) adoptSyncInterval(advertised int8) {
	if advertised == wire.LogIntervalUndefined || advertised == p.logSyncInterval {
		return
	}
	clamped := clampInt8(advertised, syncIntervalMin, syncIntervalMax)
	common.Logf("ptp %s: sync interval %d -> %d", p.cfg.Name, p.logSyncInterval, clamped)
	p.logSyncInterval = clamped
	p.timers.Start(timers.SyncReceipt,
		float64(p.cfg.SyncReceiptTimeout)*pow2(p.logSyncInterval))
	p.servo.ExpectIntervals(p.logSyncInterval, p.logMinDelayReqInterval)
}

func (p *Port) completeSyncMeasurement(origin wire.Timestamp, recv time.Time, corr wire.Correction) {
	p.pendingSync = pendingSync{}
	offset := recv.Sub(origin.Time()) - corr.Duration()
	p.servo.ProvideSyncMeasurement(offset, recv)
}

func (p *Port) handleFollowUp(ctx *rxContext) {
	p.recordForeignFollowUp(ctx)
	switch p.state {
	case StateSlave, StateUncalibrated:
	default:
		p.counters.DiscardedMessages++
		return
	}
	p.counters.FollowUpMessagesReceived++

	if !p.fromCurrentParent(ctx.header) {
		p.counters.StateMismatchErrors++
		return
	}
	f, err := wire.UnpackFollowUp(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	if p.pendingSync.active && p.pendingSync.seq == ctx.header.SequenceID {
		recv := p.pendingSync.recv
		corr := p.pendingSync.correction + ctx.header.Correction
		p.alarms.Clear(AlarmNoFollowUps)
		p.completeSyncMeasurement(f.PreciseOriginTimestamp, recv, corr)
		return
	}

	// either this FollowUp overtook its Sync, or its Sync was lost; keep
	// it one deep so the reordered case still completes
	p.counters.SequenceMismatchErrors++
	if p.pendingSync.active {
		p.counters.OutOfOrderFollowUps++
	}
	p.oooFollowUp = oooFollowUp{
		active:     true,
		seq:        ctx.header.SequenceID,
		precise:    f.PreciseOriginTimestamp,
		correction: ctx.header.Correction,
	}
}

func (p *Port) handleDelayReq(ctx *rxContext) {
	if p.state != StateMaster || p.cfg.DelayMechanism != E2E {
		p.counters.DiscardedMessages++
		return
	}
	p.counters.DelayReqMessagesReceived++
	if !ctx.recvValid {
		p.counters.RxPktNoTimestamp++
		p.alarms.Raise(AlarmNoRxTimestamps)
		return
	}
	p.issueDelayResp(ctx.recv, ctx.header, ctx.src)
}

func (p *Port) handleDelayResp(ctx *rxContext) {
	switch p.state {
	case StateSlave, StateUncalibrated:
	default:
		p.counters.DiscardedMessages++
		return
	}
	if p.cfg.DelayMechanism != E2E {
		p.counters.DiscardedMessages++
		return
	}
	p.counters.DelayRespMessagesReceived++

	d, err := wire.UnpackDelayResp(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if !d.RequestingPortIdentity.Equal(p.PortIdentity()) {
		p.counters.DiscardedMessages++
		return
	}
	if !p.waitingForDelayResp || ctx.header.SequenceID != p.sentDelayReqSeq-1 {
		p.counters.SequenceMismatchErrors++
		return
	}
	if !p.fromCurrentParent(ctx.header) {
		p.counters.StateMismatchErrors++
		return
	}

	p.waitingForDelayResp = false
	p.timers.Stop(timers.DelayRespReceipt)
	p.sequentialMissingDelayResps = 0
	p.unicastDelayRespFailures = 0
	p.alarms.Clear(AlarmNoDelayResps)
	if p.waitingForFirstDelayResp {
		p.waitingForFirstDelayResp = false
		common.Logf("ptp %s: received first delay response from %s",
			p.cfg.Name, ctx.header.SourcePortIdentity)
	}

	p.adoptDelayReqInterval(ctx.header.LogMessageInterval)

	if !p.delayReqTxValid {
		return
	}
	// slave-to-master delay: master receive time minus our transmit
	// time, less the accumulated correction
	delay := d.ReceiveTimestamp.Time().Sub(p.delayReqTx) - ctx.header.Correction.Duration()
	p.servo.ProvideDelayMeasurement(delay, p.now())
}

func (p *Port) adoptDelayReqInterval(advertised int8) {
	if advertised == wire.LogIntervalUndefined || advertised == p.logMinDelayReqInterval {
		return
	}
	clamped := clampInt8(advertised, delayReqIntervalMin, delayReqIntervalMax)
	common.Logf("ptp %s: master min delay request interval %d -> %d",
		p.cfg.Name, p.logMinDelayReqInterval, clamped)
	p.logMinDelayReqInterval = clamped
	p.servo.ExpectIntervals(p.logSyncInterval, p.logMinDelayReqInterval)
}

func (p *Port) handlePDelayReq(ctx *rxContext) {
	if p.cfg.DelayMechanism != P2P {
		p.counters.DiscardedMessages++
		return
	}
	switch p.state {
	case StateInitializing, StateFaulty, StateDisabled:
		p.counters.DiscardedMessages++
		return
	}
	p.counters.PDelayReqMessagesReceived++
	if !ctx.recvValid {
		p.counters.RxPktNoTimestamp++
		p.alarms.Raise(AlarmNoRxTimestamps)
		return
	}
	p.issuePDelayResp(ctx.recv, ctx.header, ctx.src)
}

func (p *Port) handlePDelayResp(ctx *rxContext) {
	if p.cfg.DelayMechanism != P2P {
		p.counters.DiscardedMessages++
		return
	}
	p.counters.PDelayRespMessagesReceived++

	d, err := wire.UnpackPDelayResp(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	pd := &p.pendingPDelay
	if !pd.waiting || !d.RequestingPortIdentity.Equal(p.PortIdentity()) ||
		ctx.header.SequenceID != pd.seq {
		p.counters.SequenceMismatchErrors++
		return
	}
	if !ctx.recvValid {
		p.counters.RxPktNoTimestamp++
		p.alarms.Raise(AlarmNoRxTimestamps)
		return
	}

	pd.respRecv = ctx.recv
	pd.requestReceipt = d.RequestReceiptTimestamp
	pd.respCorrection = ctx.header.Correction
	pd.twoStep = ctx.header.TwoStep()
	pd.haveResp = true

	if pd.twoStep {
		return
	}
	p.completePDelayMeasurement(wire.Timestamp{}, 0)
}

func (p *Port) handlePDelayRespFollowUp(ctx *rxContext) {
	if p.cfg.DelayMechanism != P2P {
		p.counters.DiscardedMessages++
		return
	}
	p.counters.PDelayRespFollowUpMessagesReceived++

	d, err := wire.UnpackPDelayRespFollowUp(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	pd := &p.pendingPDelay
	if !pd.waiting || !pd.haveResp || !pd.twoStep ||
		!d.RequestingPortIdentity.Equal(p.PortIdentity()) ||
		ctx.header.SequenceID != pd.seq {
		p.counters.SequenceMismatchErrors++
		return
	}
	p.completePDelayMeasurement(d.ResponseOriginTimestamp, ctx.header.Correction)
}

// completePDelayMeasurement finishes a peer-delay exchange. In the
// one-step case the peer folds its turnaround into the correction; in
// the two-step case the origin timestamps bound it explicitly.
func (p *Port) completePDelayMeasurement(responseOrigin wire.Timestamp, fuCorr wire.Correction) {
	pd := p.pendingPDelay
	p.pendingPDelay = pendingPDelay{}
	p.timers.Stop(timers.PDelayRespReceipt)
	p.sequentialMissingPDelayResps = 0
	p.alarms.Clear(AlarmNoPDelayResps)

	if !pd.reqTxValid {
		return
	}
	roundTrip := pd.respRecv.Sub(pd.reqTx)
	var turnaround time.Duration
	if pd.twoStep {
		turnaround = responseOrigin.Time().Sub(pd.requestReceipt.Time())
	}
	corr := pd.respCorrection.Duration() + fuCorr.Duration()
	meanPathDelay := (roundTrip - turnaround - corr) / 2
	p.servo.ProvideDelayMeasurement(meanPathDelay, p.now())
}
