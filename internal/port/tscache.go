package port

import "time"

// TxKind is a transmit-timestamp cache slot. At most one ticket is
// outstanding per slot.
type TxKind int

const (
	TxSync TxKind = iota
	TxDelayReq
	TxPDelayReq
	TxPDelayResp
	TxMonitoringSync

	numTxKinds
)

func (k TxKind) String() string {
	switch k {
	case TxSync:
		return "sync"
	case TxDelayReq:
		return "delay-req"
	case TxPDelayReq:
		return "pdelay-req"
	case TxPDelayResp:
		return "pdelay-resp"
	case TxMonitoringSync:
		return "monitoring-sync"
	}
	return "unknown"
}

// Ticket identifies one expected transmit timestamp.
type Ticket struct {
	Kind  TxKind
	Seq   uint16
	valid bool
}

// Valid reports whether the ticket refers to a live expectation.
func (t Ticket) Valid() bool { return t.valid }

// TxTimestampCache is the rendezvous between the send path, which
// registers an expectation when a timestamped message leaves, and the
// later event that delivers the hardware or software timestamp (an
// error-queue read or the looped-back copy of our own multicast).
// Temporal decoupling happens here, not across threads: both sides run
// on the port's event loop.
type TxTimestampCache struct {
	pending [numTxKinds]struct {
		seq    uint16
		active bool
	}
}

// Expect replaces any outstanding ticket in the slot with a new one.
func (c *TxTimestampCache) Expect(kind TxKind, seq uint16) Ticket {
	c.pending[kind].seq = seq
	c.pending[kind].active = true
	return Ticket{Kind: kind, Seq: seq, valid: true}
}

// Match consumes the outstanding ticket if it matches kind and
// sequence. A sequence mismatch leaves the expectation in place: the
// late timestamp belongs to an abandoned send.
func (c *TxTimestampCache) Match(kind TxKind, seq uint16) bool {
	p := &c.pending[kind]
	if !p.active || p.seq != seq {
		return false
	}
	p.active = false
	return true
}

// Cancel drops the slot's expectation, used when a state transition
// abandons in-flight requests.
func (c *TxTimestampCache) Cancel(kind TxKind) {
	c.pending[kind].active = false
}

// CancelAll drops every expectation.
func (c *TxTimestampCache) CancelAll() {
	for i := range c.pending {
		c.pending[i].active = false
	}
}

// Outstanding reports whether a slot has a live expectation.
func (c *TxTimestampCache) Outstanding(kind TxKind) bool {
	return c.pending[kind].active
}

// TxTimestamp is a delivered transmit timestamp routed back to the
// owning port.
type TxTimestamp struct {
	Kind TxKind
	Seq  uint16
	Time time.Time
}
