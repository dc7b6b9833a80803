package port

// Counters is the per-port statistics block. The port mutates it from
// its single event loop; readers get copies via the snapshot.
type Counters struct {
	AnnounceMessagesReceived           uint64
	AnnounceMessagesSent               uint64
	SyncMessagesReceived               uint64
	SyncMessagesSent                   uint64
	FollowUpMessagesReceived           uint64
	FollowUpMessagesSent               uint64
	DelayReqMessagesReceived           uint64
	DelayReqMessagesSent               uint64
	DelayRespMessagesReceived          uint64
	DelayRespMessagesSent              uint64
	PDelayReqMessagesReceived          uint64
	PDelayReqMessagesSent              uint64
	PDelayRespMessagesReceived         uint64
	PDelayRespMessagesSent             uint64
	PDelayRespFollowUpMessagesReceived uint64
	PDelayRespFollowUpMessagesSent     uint64
	SignalingMessagesReceived          uint64
	ManagementMessagesReceived         uint64
	ManagementMessagesSent             uint64

	DiscardedMessages      uint64
	MessageFormatErrors    uint64
	VersionMismatchErrors  uint64
	DomainMismatchErrors   uint64
	SequenceMismatchErrors uint64
	OutOfOrderFollowUps    uint64
	ProtocolErrors         uint64
	StateMismatchErrors    uint64

	TimingACLDiscards     uint64
	ManagementACLDiscards uint64

	MasterChanges     uint64
	MessageSendErrors uint64
	TxPktNoTimestamp  uint64
	RxPktNoTimestamp  uint64

	SyncTimeouts       uint64
	AnnounceTimeouts   uint64
	DelayRespTimeouts  uint64
	PDelayRespTimeouts uint64

	MonitoringTLVsReceived  uint64
	MonitoringSyncsSent     uint64
	MonitoringFollowUpsSent uint64

	FaultsEntered uint64
}

// Reset zeroes every counter, exposed to the management plane.
func (c *Counters) Reset() {
	*c = Counters{}
}
