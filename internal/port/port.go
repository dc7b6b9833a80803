// Package port implements the PTP ordinary-clock port engine: the state
// machine, message dispatch, TLV handler table and timer-driven
// scheduling that decide what a port does. Transport, servo and
// management accessors are injected collaborators.
package port

import (
	"math"
	"math/rand"
	"net/netip"
	"time"

	"example.com/ptpport/internal/bmc"
	"example.com/ptpport/internal/common"
	"example.com/ptpport/internal/foreign"
	"example.com/ptpport/internal/timers"
	"example.com/ptpport/internal/wire"
)

// State is the port state per the IEEE 1588 state machine.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateFaulty
	StateDisabled
	StateListening
	StateMaster
	StatePassive
	StateUncalibrated
	StateSlave
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateFaulty:
		return "faulty"
	case StateDisabled:
		return "disabled"
	case StateListening:
		return "listening"
	case StateMaster:
		return "master"
	case StatePassive:
		return "passive"
	case StateUncalibrated:
		return "uncalibrated"
	case StateSlave:
		return "slave"
	}
	return "unknown"
}

// DelayMechanism selects end-to-end or peer-to-peer delay measurement.
type DelayMechanism int

const (
	E2E DelayMechanism = iota
	P2P
)

// Transport sends packed messages. A zero destination means the
// configured multicast group.
type Transport interface {
	SendEvent(buf []byte, dst netip.AddrPort) error
	SendGeneral(buf []byte, dst netip.AddrPort) error
}

// Servo is the clock discipline loop, external to this package.
type Servo interface {
	ProvideSyncMeasurement(offset time.Duration, at time.Time)
	ProvideDelayMeasurement(delay time.Duration, at time.Time)
	Reset()
	ResetOperatorMessages()
	NotifyMissingSync()
	EverLocked() bool
	ExpectIntervals(logSync, logDelayReq int8)
	Pause(paused bool)
}

// ManagementHandler implements the per-attribute GET/SET/COMMAND
// accessors. A zero error id means success.
type ManagementHandler interface {
	Handle(action wire.ManagementAction, id wire.ManagementID, data []byte) ([]byte, wire.ManagementErrorID)
}

// Protocol constants shared with the reference engine.
const (
	faultRestartIntervalSeconds     = 5.0
	timestampCheckIntervalSeconds   = 10.0
	operatorMessagesIntervalSeconds = 300.0

	defaultAnnounceReceiptTimeout   = 6
	defaultSyncReceiptTimeout       = 6
	defaultDelayRespAlarmThreshold  = 5
	defaultDelayRespHybridThreshold = 3

	slaveOnlyClockClass = 255

	syncIntervalMin     int8 = -4
	syncIntervalMax     int8 = 4
	delayReqIntervalMin int8 = -4
	delayReqIntervalMax int8 = 5
)

// Config is the static configuration of one port.
type Config struct {
	Name          string
	ClockIdentity wire.ClockIdentity
	PortNumber    uint16
	DomainNumber  uint8

	Priority1               uint8
	Priority2               uint8
	ClockClass              uint8
	ClockAccuracy           wire.ClockAccuracy
	OffsetScaledLogVariance uint16
	SlaveOnly               bool
	TimeSource              wire.TimeSource

	UTCOffset      int16
	UTCOffsetValid bool
	PreferUTCValid bool

	LogAnnounceInterval     int8
	LogSyncInterval         int8
	LogMinDelayReqInterval  int8
	LogMinPDelayReqInterval int8

	AnnounceReceiptTimeout   int
	SyncReceiptTimeout       int
	DelayRespReceiptTimeout  int8 // log2 seconds
	DelayRespAlarmThreshold  int
	DelayRespHybridThreshold int

	DelayMechanism DelayMechanism
	TwoStep        bool
	MinorVersion   uint8

	TickInterval    float64 // seconds per scheduling quantum
	ForeignCapacity int

	MissingInterfaceTolerance bool
	ManagementEnabled         bool
	MonitoringEnabled         bool
	MonitorMode               bool

	CommCapsTLVEnabled bool
	CommCaps           wire.CommunicationCapabilities

	Discriminator          foreign.Discriminator
	DiscriminatorThreshold time.Duration

	Rand  *rand.Rand
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.ClockClass == 0 {
		c.ClockClass = 248
	}
	if c.SlaveOnly {
		c.ClockClass = slaveOnlyClockClass
	}
	if c.ClockAccuracy == 0 {
		c.ClockAccuracy = wire.AccuracyUnknown
	}
	if c.OffsetScaledLogVariance == 0 {
		c.OffsetScaledLogVariance = 0xFFFF
	}
	if c.Priority1 == 0 {
		c.Priority1 = 128
	}
	if c.Priority2 == 0 {
		c.Priority2 = 128
	}
	if c.TimeSource == 0 {
		c.TimeSource = wire.TimeSourceInternalOscillator
	}
	if c.AnnounceReceiptTimeout == 0 {
		c.AnnounceReceiptTimeout = defaultAnnounceReceiptTimeout
	}
	if c.SyncReceiptTimeout == 0 {
		c.SyncReceiptTimeout = defaultSyncReceiptTimeout
	}
	if c.DelayRespReceiptTimeout == 0 {
		c.DelayRespReceiptTimeout = -2
	}
	if c.DelayRespAlarmThreshold == 0 {
		c.DelayRespAlarmThreshold = defaultDelayRespAlarmThreshold
	}
	if c.DelayRespHybridThreshold == 0 {
		c.DelayRespHybridThreshold = defaultDelayRespHybridThreshold
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 0.0625
	}
	if c.ForeignCapacity <= 0 {
		c.ForeignCapacity = 16
	}
	if c.CommCaps == (wire.CommunicationCapabilities{}) {
		c.CommCaps = wire.CommunicationCapabilities{
			SyncCapabilities:      wire.CommMulticastCapable,
			DelayRespCapabilities: wire.CommMulticastCapable | wire.CommUnicastCapable,
		}
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

func pow2(log int8) float64 {
	return math.Pow(2, float64(log))
}

func clampInt8(v, lo, hi int8) int8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// pendingSync is the state of an incomplete two-step measurement.
type pendingSync struct {
	active     bool
	seq        uint16
	recv       time.Time
	correction wire.Correction
}

// oooFollowUp is the 1-deep cache tolerating a FollowUp overtaking its
// Sync on the wire.
type oooFollowUp struct {
	active     bool
	seq        uint16
	precise    wire.Timestamp
	correction wire.Correction
}

// pendingPDelay is the in-flight peer-delay exchange.
type pendingPDelay struct {
	waiting        bool
	seq            uint16
	reqTx          time.Time
	reqTxValid     bool
	respRecv       time.Time
	requestReceipt wire.Timestamp
	respCorrection wire.Correction
	twoStep        bool
	haveResp       bool
}

// Port is one ordinary-clock PTP port. All methods must be called from
// the owning event loop; the engine holds no locks.
type Port struct {
	cfg Config

	state   State
	timers  *timers.Set
	foreign *foreign.Dataset
	txCache TxTimestampCache

	transport Transport
	servo     Servo
	mgmt      ManagementHandler

	counters Counters
	alarms   AlarmSet

	// parent / grandmaster datasets
	parentPortIdentity   wire.PortIdentity
	parentAddress        netip.AddrPort
	grandmasterIdentity  wire.ClockIdentity
	grandmasterQuality   wire.ClockQuality
	grandmasterPriority1 uint8
	grandmasterPriority2 uint8
	stepsRemoved         uint16
	timeSource           wire.TimeSource
	currentUTCOffset     int16
	utcOffsetValid       bool
	leap59               bool
	leap61               bool
	leapSecondInProgress bool
	timeTraceable        bool
	frequencyTraceable   bool

	// operative intervals, reset to configuration on LISTENING entry
	logAnnounceInterval    int8
	logSyncInterval        int8
	logMinDelayReqInterval int8

	// transmit sequence numbers
	sentAnnounceSeq  uint16
	sentSyncSeq      uint16
	sentDelayReqSeq  uint16
	sentPDelayReqSeq uint16
	sentMgmtSeq      uint16

	// slave-side measurement state
	pendingSync   pendingSync
	oooFollowUp   oooFollowUp
	pendingPDelay pendingPDelay

	waitingForDelayResp      bool
	delayReqTx               time.Time
	delayReqTxValid          bool
	waitingForFirstSync      bool
	waitingForFirstDelayResp bool

	sequentialMissingDelayResps  int
	sequentialMissingPDelayResps int
	unicastDelayRespFailures     int
	missedSyncs                  int
	nextSyncWarning              int

	partnerCommCaps   wire.CommunicationCapabilities
	effectiveCommCaps wire.CommunicationCapabilities

	// peer-delay responder: context for the two-step follow-up
	pdRespSeq     uint16
	pdRespReqPort wire.PortIdentity
	pdRespAddr    netip.AddrPort
	pdRespUnicast bool

	// monitoring extension
	monitoringAddr    netip.AddrPort
	monitoringSeq     uint16
	monitoringPending bool

	recordUpdate bool
	servoPaused  bool
}

// New creates a port in the UNINITIALIZED state.
func New(cfg Config, transport Transport, servo Servo, mgmt ManagementHandler) *Port {
	cfg.applyDefaults()
	p := &Port{
		cfg:       cfg,
		transport: transport,
		servo:     servo,
		mgmt:      mgmt,
		timers:    timers.NewSet(cfg.TickInterval, cfg.Rand),
		foreign:   foreign.NewDataset(cfg.ForeignCapacity),
	}
	p.logAnnounceInterval = cfg.LogAnnounceInterval
	p.logSyncInterval = cfg.LogSyncInterval
	p.logMinDelayReqInterval = cfg.LogMinDelayReqInterval
	p.applyM1()
	return p
}

// State returns the current port state.
func (p *Port) State() State { return p.state }

// SetManagementHandler installs the per-attribute accessors. The
// accessor usually wraps the port itself, so it is wired after New.
func (p *Port) SetManagementHandler(h ManagementHandler) { p.mgmt = h }

// PortIdentity returns the port's own identity.
func (p *Port) PortIdentity() wire.PortIdentity {
	return wire.PortIdentity{ClockIdentity: p.cfg.ClockIdentity, PortNumber: p.cfg.PortNumber}
}

// Counters returns a copy of the statistics block.
func (p *Port) Counters() Counters { return p.counters }

// Alarms returns the raised alarm set.
func (p *Port) Alarms() AlarmSet { return p.alarms }

// ForeignMasters returns the foreign master dataset for inspection.
func (p *Port) ForeignMasters() *foreign.Dataset { return p.foreign }

// SetControlFlags lets an external supervisor pause the servo, e.g.
// during a leap-second guard window.
func (p *Port) SetControlFlags(pauseServo, leapInProgress bool) {
	if pauseServo != p.servoPaused {
		p.servoPaused = pauseServo
		p.servo.Pause(pauseServo)
	}
	p.leapSecondInProgress = leapInProgress
}

func (p *Port) now() time.Time { return p.cfg.Clock() }

func (p *Port) masterEligible() bool {
	return !p.cfg.SlaveOnly && p.cfg.ClockClass != slaveOnlyClockClass
}

func (p *Port) localQuality() wire.ClockQuality {
	return wire.ClockQuality{
		ClockClass:              p.cfg.ClockClass,
		ClockAccuracy:           p.cfg.ClockAccuracy,
		OffsetScaledLogVariance: p.cfg.OffsetScaledLogVariance,
	}
}

// Start moves the port out of UNINITIALIZED.
func (p *Port) Start() {
	p.toState(StateInitializing)
	p.toState(StateListening)
}

// stopProtocolTimers stops everything except the peer-delay pair, which
// survives ordinary transitions so the peer link stays measured.
func (p *Port) stopProtocolTimers() {
	p.timers.StopAllExcept(timers.PDelayReqInterval, timers.PDelayRespReceipt)
}

func (p *Port) toState(s State) {
	if p.state != s {
		common.Logf("ptp %s: state %s -> %s", p.cfg.Name, p.state, s)
	}
	p.stopProtocolTimers()
	p.alarms.ClearAll()

	switch s {
	case StateInitializing, StateDisabled:
		p.timers.Stop(timers.PDelayReqInterval)
		p.timers.Stop(timers.PDelayRespReceipt)
		p.txCache.CancelAll()
		p.foreign.Reset()
		p.resetMeasurementState()

	case StateFaulty:
		p.timers.Stop(timers.PDelayReqInterval)
		p.timers.Stop(timers.PDelayRespReceipt)
		p.txCache.CancelAll()
		p.resetMeasurementState()
		p.counters.FaultsEntered++
		p.timers.Start(timers.FaultRestart, faultRestartIntervalSeconds)

	case StateListening:
		p.restoreConfiguredIntervals()
		p.servo.ExpectIntervals(p.logSyncInterval, p.logMinDelayReqInterval)
		p.timers.Start(timers.AnnounceReceipt, float64(p.cfg.AnnounceReceiptTimeout)*pow2(p.logAnnounceInterval))
		p.timers.Start(timers.ForeignMasterCheck, pow2(p.logAnnounceInterval))
		p.armPDelayIfNeeded()

	case StateMaster:
		p.restoreConfiguredIntervals()
		p.timers.Start(timers.SyncInterval, pow2(p.logSyncInterval))
		p.timers.Start(timers.AnnounceInterval, pow2(p.logAnnounceInterval))
		p.timers.Start(timers.ForeignMasterCheck, pow2(p.logAnnounceInterval))
		p.timers.Start(timers.TimestampCheck, timestampCheckIntervalSeconds)
		p.armPDelayIfNeeded()

	case StatePassive:
		p.timers.Start(timers.AnnounceReceipt, float64(p.cfg.AnnounceReceiptTimeout)*pow2(p.logAnnounceInterval))
		p.timers.Start(timers.ForeignMasterCheck, pow2(p.logAnnounceInterval))
		p.timers.Start(timers.TimestampCheck, timestampCheckIntervalSeconds)
		p.armPDelayIfNeeded()

	case StateUncalibrated, StateSlave:
		p.computeEffectiveCommCaps()
		p.timers.Start(timers.OperatorMessages, operatorMessagesIntervalSeconds)
		p.timers.Start(timers.AnnounceReceipt, float64(p.cfg.AnnounceReceiptTimeout)*pow2(p.logAnnounceInterval))
		p.timers.Start(timers.ForeignMasterCheck, pow2(p.logAnnounceInterval))
		p.timers.Start(timers.TimestampCheck, timestampCheckIntervalSeconds)
		p.timers.Start(timers.SyncReceipt, float64(p.cfg.SyncReceiptTimeout)*pow2(p.logSyncInterval))
		// the delay-request timer is armed once the first Sync arrives
		p.waitingForFirstSync = true
		p.waitingForFirstDelayResp = true
		p.sequentialMissingDelayResps = 0
		p.missedSyncs = 0
		p.nextSyncWarning = 1
		p.armPDelayIfNeeded()
	}

	p.state = s
}

func (p *Port) armPDelayIfNeeded() {
	if p.cfg.DelayMechanism != P2P {
		return
	}
	if p.timers.Stopped(timers.PDelayReqInterval) {
		p.timers.Start(timers.PDelayReqInterval, pow2(p.cfg.LogMinPDelayReqInterval))
	}
}

func (p *Port) restoreConfiguredIntervals() {
	p.logAnnounceInterval = p.cfg.LogAnnounceInterval
	p.logSyncInterval = p.cfg.LogSyncInterval
	p.logMinDelayReqInterval = p.cfg.LogMinDelayReqInterval
}

func (p *Port) resetMeasurementState() {
	p.pendingSync = pendingSync{}
	p.oooFollowUp = oooFollowUp{}
	p.pendingPDelay = pendingPDelay{}
	p.waitingForDelayResp = false
	p.delayReqTxValid = false
	p.monitoringPending = false
}

// computeEffectiveCommCaps intersects our capabilities with the selected
// master's advertised set. An empty intersection is alarmed: the port
// cannot exchange delay measurements at all.
func (p *Port) computeEffectiveCommCaps() {
	partner := p.partnerCommCaps
	if partner == (wire.CommunicationCapabilities{}) {
		// no TLV seen: assume a multicast-only classic master
		partner = wire.CommunicationCapabilities{
			SyncCapabilities:      wire.CommMulticastCapable,
			DelayRespCapabilities: wire.CommMulticastCapable,
		}
	}
	p.effectiveCommCaps = wire.CommunicationCapabilities{
		SyncCapabilities:      p.cfg.CommCaps.SyncCapabilities & partner.SyncCapabilities,
		DelayRespCapabilities: p.cfg.CommCaps.DelayRespCapabilities & partner.DelayRespCapabilities,
	}
	if p.effectiveCommCaps.SyncCapabilities == 0 {
		common.Logf("ptp %s: no common sync capabilities with master", p.cfg.Name)
		p.alarms.Raise(AlarmCapsMismatch)
	}
	if p.effectiveCommCaps.DelayRespCapabilities == 0 {
		common.Logf("ptp %s: no common delay response capabilities with master", p.cfg.Name)
		p.alarms.Raise(AlarmCapsMismatch)
	}
}

// applyM1 copies the local defaults into the parent and grandmaster
// datasets.
func (p *Port) applyM1() {
	p.parentPortIdentity = p.PortIdentity()
	p.parentAddress = netip.AddrPort{}
	p.grandmasterIdentity = p.cfg.ClockIdentity
	p.grandmasterQuality = p.localQuality()
	p.grandmasterPriority1 = p.cfg.Priority1
	p.grandmasterPriority2 = p.cfg.Priority2
	p.stepsRemoved = 0
	p.timeSource = p.cfg.TimeSource
	p.currentUTCOffset = p.cfg.UTCOffset
	p.utcOffsetValid = p.cfg.UTCOffsetValid
	if !p.leapSecondInProgress {
		p.leap59 = false
		p.leap61 = false
	}
	if p.servo != nil {
		p.servo.Reset()
	}
}

// applyS1 adopts the selected master's datasets.
func (p *Port) applyS1(r *foreign.Record) {
	h := &r.Header
	a := &r.Announce

	p.stepsRemoved = a.StepsRemoved + 1
	p.parentPortIdentity = h.SourcePortIdentity
	if ap, ok := decodeAddr(r.Address); ok {
		p.parentAddress = ap
	}
	p.grandmasterIdentity = a.GrandmasterIdentity
	p.grandmasterQuality = a.GrandmasterClockQuality
	p.grandmasterPriority1 = a.GrandmasterPriority1
	p.grandmasterPriority2 = a.GrandmasterPriority2
	p.timeSource = a.TimeSource
	p.partnerCommCaps = r.CommCaps

	p.adoptAnnounceInterval(h.LogMessageInterval)

	utcValid := h.FlagField1&wire.FlagUTCOffsetValid != 0
	if a.CurrentUTCOffset != p.currentUTCOffset && p.utcOffsetValid && !p.leap59 && !p.leap61 {
		common.Logf("ptp %s: utc offset changed %d -> %d with no leap second pending",
			p.cfg.Name, p.currentUTCOffset, a.CurrentUTCOffset)
	}
	p.currentUTCOffset = a.CurrentUTCOffset
	p.utcOffsetValid = utcValid
	p.timeTraceable = h.FlagField1&wire.FlagTimeTraceable != 0
	p.frequencyTraceable = h.FlagField1&wire.FlagFrequencyTraceable != 0

	// never accept a new leap state while one is being applied; the
	// next Announce after completion carries the steady flags
	if !p.leapSecondInProgress {
		p.leap59 = h.FlagField1&wire.FlagLeap59 != 0
		p.leap61 = h.FlagField1&wire.FlagLeap61 != 0
	}
}

// applyP1 tracks the watched master without adopting its timing.
func (p *Port) applyP1(r *foreign.Record) {
	p.parentPortIdentity = r.Header.SourcePortIdentity
	p.grandmasterIdentity = r.Announce.GrandmasterIdentity
	p.grandmasterQuality = r.Announce.GrandmasterClockQuality
	p.grandmasterPriority1 = r.Announce.GrandmasterPriority1
	p.grandmasterPriority2 = r.Announce.GrandmasterPriority2
	p.stepsRemoved = r.Announce.StepsRemoved + 1
}

func (p *Port) adoptAnnounceInterval(advertised int8) {
	if advertised == wire.LogIntervalUndefined || advertised == p.logAnnounceInterval {
		return
	}
	clamped := clampInt8(advertised, bmc.AnnounceIntervalMin, bmc.AnnounceIntervalMax)
	if clamped != advertised {
		common.Logf("ptp %s: master announce interval %d out of range, using %d",
			p.cfg.Name, advertised, clamped)
	}
	common.Logf("ptp %s: announce interval %d -> %d", p.cfg.Name, p.logAnnounceInterval, clamped)
	p.logAnnounceInterval = clamped
}

func (p *Port) localBMC() *bmc.Local {
	return &bmc.Local{
		ClockIdentity:          p.cfg.ClockIdentity,
		PortNumber:             p.cfg.PortNumber,
		Priority1:              p.cfg.Priority1,
		Priority2:              p.cfg.Priority2,
		Quality:                p.localQuality(),
		SlaveOnly:              p.cfg.SlaveOnly,
		UTCOffsetValid:         p.cfg.UTCOffsetValid,
		ParentPortIdentity:     p.parentPortIdentity,
		ServoLocked:            p.servo != nil && p.servo.EverLocked(),
		PreferUTCValid:         p.cfg.PreferUTCValid,
		LogAnnounceInterval:    p.logAnnounceInterval,
		DiscriminatorThreshold: p.cfg.DiscriminatorThreshold,
		Discriminator:          p.cfg.Discriminator,
		IsMaster:               p.state == StateMaster,
		IsListening:            p.state == StateListening,
		IsSlaveOrUncalibrated:  p.state == StateSlave || p.state == StateUncalibrated,
	}
}

func (p *Port) bmcaEligible() bool {
	switch p.state {
	case StateListening, StateMaster, StatePassive, StateUncalibrated, StateSlave:
		return true
	}
	return false
}

// runBMCA executes the algorithm and applies its recommendation. The
// dataset updates are applied before the state variable changes,
// matching the reference engine's ordering.
func (p *Port) runBMCA(now time.Time) {
	rec := bmc.Run(p.foreign, p.localBMC(), now)

	switch rec.Update {
	case bmc.UpdateM1:
		p.applyM1()
	case bmc.UpdateS1:
		p.applyS1(rec.Best)
	case bmc.UpdateP1:
		p.applyP1(rec.Best)
	}

	if rec.NewMaster && rec.Best != nil {
		common.Logf("ptp %s: new best master selected: %s",
			p.cfg.Name, rec.Best.Header.SourcePortIdentity)
		p.counters.MasterChanges++
		p.unicastDelayRespFailures = 0
	}

	if rec.ProtocolError {
		p.counters.ProtocolErrors++
		p.toState(StateFaulty)
		return
	}

	var target State
	switch rec.Outcome {
	case bmc.OutcomePreserve:
		p.updateAnnounceIntervalFromMasters()
		return
	case bmc.OutcomeMaster:
		target = StateMaster
	case bmc.OutcomeSlave:
		target = StateSlave
	case bmc.OutcomeUncalibrated:
		target = StateUncalibrated
	case bmc.OutcomePassive:
		target = StatePassive
	case bmc.OutcomeListening:
		target = StateListening
	case bmc.OutcomeFaulty:
		target = StateFaulty
	}
	if target != p.state {
		// UNCALIBRATED -> SLAVE promotion reuses the same arming
		p.toState(target)
	}
	p.updateAnnounceIntervalFromMasters()
}

// updateAnnounceIntervalFromMasters adopts the longest interval any
// currently-qualified master advertises, falling back to configuration
// when none are announcing.
func (p *Port) updateAnnounceIntervalFromMasters() {
	now := p.now()
	qual := func(r *foreign.Record) foreign.Qualification {
		return p.foreign.Qualification(r, now, p.logAnnounceInterval,
			p.cfg.Discriminator, p.cfg.DiscriminatorThreshold)
	}
	iv, clamped := bmc.LongestAnnouncedInterval(p.foreign, p.cfg.LogAnnounceInterval, qual)
	if iv == p.logAnnounceInterval {
		return
	}
	if clamped {
		common.Logf("ptp %s: longest advertised announce interval out of range, clamped to %d",
			p.cfg.Name, iv)
	}
	common.Logf("ptp %s: announce interval %d -> %d", p.cfg.Name, p.logAnnounceInterval, iv)
	p.logAnnounceInterval = iv
}

func decodeAddr(b []byte) (netip.AddrPort, bool) {
	var ap netip.AddrPort
	if len(b) == 0 {
		return ap, false
	}
	if err := ap.UnmarshalBinary(b); err != nil {
		return netip.AddrPort{}, false
	}
	return ap, true
}

func encodeAddr(ap netip.AddrPort) []byte {
	if !ap.IsValid() {
		return nil
	}
	b, err := ap.MarshalBinary()
	if err != nil {
		return nil
	}
	return b
}
