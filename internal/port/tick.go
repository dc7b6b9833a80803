package port

import (
	"example.com/ptpport/internal/common"
	"example.com/ptpport/internal/timers"
	"example.com/ptpport/internal/wire"
)

// Tick advances the port by one scheduling quantum. The owning loop
// calls it at the configured tick interval; everything time-driven in
// the engine hangs off this.
func (p *Port) Tick() {
	now := p.now()
	p.timers.Tick()

	if p.bmcaEligible() && p.recordUpdate {
		p.recordUpdate = false
		p.runBMCA(now)
	}

	if p.timers.Expired(timers.FaultRestart) && p.state == StateFaulty {
		common.Logf("ptp %s: restarting after fault", p.cfg.Name)
		p.toState(StateInitializing)
		p.toState(StateListening)
	}

	if p.timers.Expired(timers.ForeignMasterCheck) {
		removed := p.foreign.Expire(now, p.logAnnounceInterval)
		for _, id := range removed {
			common.Logf("ptp %s: foreign master %s timed out", p.cfg.Name, id)
		}
		if len(removed) > 0 {
			p.recordUpdate = true
		}
	}

	if p.timers.Expired(timers.AnnounceReceipt) {
		p.handleAnnounceTimeout()
	}

	if p.timers.Expired(timers.SyncReceipt) && (p.state == StateSlave || p.state == StateUncalibrated) {
		p.handleSyncTimeout()
	}

	if p.timers.Expired(timers.DelayRespReceipt) &&
		(p.state == StateSlave || p.state == StateUncalibrated) && p.cfg.DelayMechanism == E2E {
		p.handleDelayRespTimeout()
	}

	if p.timers.Expired(timers.PDelayRespReceipt) && p.cfg.DelayMechanism == P2P {
		p.handlePDelayRespTimeout()
	}

	if p.timers.Expired(timers.OperatorMessages) {
		p.servo.ResetOperatorMessages()
	}

	if p.timers.Expired(timers.TimestampCheck) {
		p.checkStuckTimestamps()
	}

	switch p.state {
	case StateMaster:
		if !p.masterEligible() {
			common.Logf("ptp %s: no longer eligible to act as master", p.cfg.Name)
			p.toState(StateListening)
			break
		}
		if p.timers.Expired(timers.SyncInterval) {
			p.issueSync(now)
		}
		if p.timers.Expired(timers.AnnounceInterval) {
			p.issueAnnounce()
		}

	case StateSlave, StateUncalibrated:
		if p.cfg.DelayMechanism == E2E && p.timers.Expired(timers.DelayReqInterval) {
			p.issueDelayReq()
		}
	}

	if p.cfg.DelayMechanism == P2P && p.timers.Expired(timers.PDelayReqInterval) {
		p.issuePDelayReq()
	}
}

func (p *Port) handleAnnounceTimeout() {
	switch p.state {
	case StateListening, StatePassive, StateUncalibrated, StateSlave:
	default:
		return
	}
	p.counters.AnnounceTimeouts++
	common.Logf("ptp %s: announce receipt timeout in %s", p.cfg.Name, p.state)
	if p.masterEligible() {
		p.applyM1()
		p.toState(StateMaster)
		return
	}
	// re-enter LISTENING even if already there, re-arming the receipt
	// window a silent network may need
	p.applyM1()
	p.toState(StateListening)
}

func (p *Port) handleSyncTimeout() {
	p.counters.SyncTimeouts++
	p.missedSyncs++
	if p.missedSyncs >= p.nextSyncWarning {
		common.Logf("ptp %s: no sync from %s for %d intervals",
			p.cfg.Name, p.parentPortIdentity, p.missedSyncs)
		p.nextSyncWarning *= 2
	}
	p.alarms.Raise(AlarmNoSync)
	if p.cfg.TwoStep || p.pendingSync.active {
		p.alarms.Raise(AlarmNoFollowUps)
	}
	p.servo.NotifyMissingSync()
}

func (p *Port) handleDelayRespTimeout() {
	p.counters.DelayRespTimeouts++
	p.sequentialMissingDelayResps++
	p.waitingForDelayResp = false
	p.txCache.Cancel(TxDelayReq)

	if p.sequentialMissingDelayResps == p.cfg.DelayRespAlarmThreshold {
		common.Logf("ptp %s: %d delay requests unanswered by %s",
			p.cfg.Name, p.sequentialMissingDelayResps, p.parentPortIdentity)
	}
	if p.sequentialMissingDelayResps >= p.cfg.DelayRespAlarmThreshold {
		p.alarms.Raise(AlarmNoDelayResps)
	}

	// hybrid fallback: a master ignoring unicast delay requests gets
	// retried over multicast once the threshold is hit
	if p.effectiveCommCaps.DelayRespCapabilities&wire.CommUnicastCapable != 0 &&
		p.effectiveCommCaps.DelayRespCapabilities&wire.CommMulticastCapable != 0 {
		p.unicastDelayRespFailures++
		if p.unicastDelayRespFailures >= p.cfg.DelayRespHybridThreshold {
			common.Logf("ptp %s: master not answering unicast delay requests, reverting to multicast",
				p.cfg.Name)
			p.effectiveCommCaps.DelayRespCapabilities &^= wire.CommUnicastCapable
			p.unicastDelayRespFailures = 0
		}
	}

	p.timers.StartRandom(timers.DelayReqInterval, pow2(p.logMinDelayReqInterval))
}

func (p *Port) handlePDelayRespTimeout() {
	p.counters.PDelayRespTimeouts++
	p.sequentialMissingPDelayResps++
	p.pendingPDelay = pendingPDelay{}
	p.txCache.Cancel(TxPDelayReq)
	if p.sequentialMissingPDelayResps >= p.cfg.DelayRespAlarmThreshold {
		p.alarms.Raise(AlarmNoPDelayResps)
	}
	p.timers.StartRandom(timers.PDelayReqInterval, pow2(p.cfg.LogMinPDelayReqInterval))
}

// checkStuckTimestamps notices transmit timestamps that never arrived.
// A healthy stack delivers them within milliseconds, so anything still
// outstanding at the ten-second check is lost.
func (p *Port) checkStuckTimestamps() {
	stuck := false
	for k := TxKind(0); k < numTxKinds; k++ {
		if p.txCache.Outstanding(k) {
			common.Logf("ptp %s: no transmit timestamp for %s", p.cfg.Name, k)
			p.txCache.Cancel(k)
			p.counters.TxPktNoTimestamp++
			stuck = true
		}
	}
	if stuck {
		p.alarms.Raise(AlarmNoTxTimestamps)
	} else {
		p.alarms.Clear(AlarmNoTxTimestamps)
	}
}
