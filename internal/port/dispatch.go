package port

import (
	"net/netip"
	"sync"
	"time"

	"example.com/ptpport/internal/acl"
	"example.com/ptpport/internal/common"
	"example.com/ptpport/internal/wire"
)

// InterfaceStats counts packets dropped before a port could be
// identified.
type InterfaceStats struct {
	ShortPackets          uint64
	FormatErrors          uint64
	VersionMismatches     uint64
	DomainMismatches      uint64
	TimingACLDiscards     uint64
	ManagementACLDiscards uint64
}

// Interface demultiplexes received packets onto ports by domain number.
// A monitor-mode port, when configured, receives traffic from domains no
// regular port claims.
type Interface struct {
	Name          string
	TimingACL     *acl.List
	ManagementACL *acl.List

	ports   []*Port
	monitor *Port
	stats   InterfaceStats

	observations ObservationTable
}

// AddPort registers a port. A monitor-mode port becomes the fallback for
// unclaimed domains.
func (i *Interface) AddPort(p *Port) {
	if p.cfg.MonitorMode {
		i.monitor = p
		return
	}
	i.ports = append(i.ports, p)
}

// Ports returns the registered regular ports.
func (i *Interface) Ports() []*Port { return i.ports }

// Stats returns a copy of the pre-demux drop counters.
func (i *Interface) Stats() InterfaceStats { return i.stats }

// Observations returns the per-peer table of messages that matched no
// port, for diagnostics.
func (i *Interface) Observations() *ObservationTable { return &i.observations }

// rxContext carries per-packet state through TLV and message handlers.
type rxContext struct {
	header    *wire.Header
	src       netip.AddrPort
	recv      time.Time
	recvValid bool
	buf       []byte

	commCaps         wire.CommunicationCapabilities
	commCapsProvided bool
	monitoringReq    bool
	dropRest         bool

	timingPassed bool
	mgmtPassed   bool
}

// ProcessPacket routes one received datagram. recvValid reports whether
// the receive timestamp is trustworthy.
func (i *Interface) ProcessPacket(buf []byte, src netip.AddrPort, recv time.Time, recvValid bool) {
	if len(buf) < wire.HeaderLength {
		i.stats.ShortPackets++
		return
	}
	h, err := wire.UnpackHeader(buf)
	if err != nil {
		i.stats.FormatErrors++
		return
	}
	if h.Version != 2 {
		i.stats.VersionMismatches++
		return
	}

	ctx := rxContext{
		header:       &h,
		src:          src,
		recv:         recv,
		recvValid:    recvValid,
		buf:          buf,
		timingPassed: i.TimingACL.Permits(src.Addr()),
		mgmtPassed:   i.ManagementACL.Permits(src.Addr()),
	}

	if h.MessageType == wire.MsgManagement {
		if !ctx.mgmtPassed {
			i.stats.ManagementACLDiscards++
			return
		}
	} else if !ctx.timingPassed {
		i.stats.TimingACLDiscards++
		return
	}

	for _, p := range i.ports {
		if p.cfg.DomainNumber == h.DomainNumber {
			p.processMessage(&ctx)
			return
		}
	}
	if i.monitor != nil {
		i.monitor.processMessage(&ctx)
		return
	}

	i.stats.DomainMismatches++
	if h.MessageType == wire.MsgAnnounce || h.MessageType == wire.MsgDelayReq {
		i.observations.Observe(src, &h, recv)
	}
}

// processMessage runs the per-port receive pipeline: self-sent
// correlation, length validation, TLV dispatch and the state-gated
// message handler.
func (p *Port) processMessage(ctx *rxContext) {
	h := ctx.header

	// the looped-back copy of our own multicast carries the software
	// transmit timestamp; it never enters protocol processing
	if h.SourcePortIdentity.ClockIdentity == p.cfg.ClockIdentity {
		p.correlateSelfSent(ctx)
		return
	}

	minLen := wire.MinLength(h.MessageType)
	if minLen == 0 || len(ctx.buf) < minLen {
		p.counters.MessageFormatErrors++
		return
	}
	declared := int(h.MessageLength)
	if declared < minLen || declared > len(ctx.buf) {
		// fewer bytes on the wire than the header claims
		p.counters.MessageFormatErrors++
		return
	}
	if len(ctx.buf)-declared > 2 {
		// some stacks deliver up to two bytes of trailing slack on
		// IPv6; a larger surplus is malformed
		p.counters.MessageFormatErrors++
		return
	}
	ctx.buf = ctx.buf[:declared]

	tlvs, err := wire.ScanTLVs(ctx.buf, minLen)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	if !p.dispatchTLVs(ctx, tlvs, tlvPass1) {
		return
	}
	if !ctx.dropRest {
		p.handleMessage(ctx)
	}
	p.dispatchTLVs(ctx, tlvs, tlvPass2)
}

func (p *Port) correlateSelfSent(ctx *rxContext) {
	h := ctx.header
	if h.SourcePortIdentity.PortNumber != p.cfg.PortNumber {
		return
	}
	var kind TxKind
	switch h.MessageType {
	case wire.MsgSync:
		kind = TxSync
		if h.Unicast() {
			kind = TxMonitoringSync
		}
	case wire.MsgDelayReq:
		kind = TxDelayReq
	case wire.MsgPDelayReq:
		kind = TxPDelayReq
	case wire.MsgPDelayResp:
		kind = TxPDelayResp
	default:
		return
	}
	p.CompleteTxTimestamp(kind, h.SequenceID, ctx.recv, ctx.recvValid)
}

func (p *Port) handleMessage(ctx *rxContext) {
	switch ctx.header.MessageType {
	case wire.MsgAnnounce:
		p.handleAnnounce(ctx)
	case wire.MsgSync:
		p.handleSync(ctx)
	case wire.MsgFollowUp:
		p.handleFollowUp(ctx)
	case wire.MsgDelayReq:
		p.handleDelayReq(ctx)
	case wire.MsgDelayResp:
		p.handleDelayResp(ctx)
	case wire.MsgPDelayReq:
		p.handlePDelayReq(ctx)
	case wire.MsgPDelayResp:
		p.handlePDelayResp(ctx)
	case wire.MsgPDelayRespFollowUp:
		p.handlePDelayRespFollowUp(ctx)
	case wire.MsgSignaling:
		p.counters.SignalingMessagesReceived++
	case wire.MsgManagement:
		p.handleManagement(ctx)
	default:
		p.counters.DiscardedMessages++
	}
}

// TLV handler table. Each descriptor names the message types it is
// permitted on and which ACL category the sender must have passed;
// handlers run in two passes around the message handler.

type tlvResult int

const (
	tlvContinue tlvResult = iota
	tlvDropRest
	tlvError
)

type tlvPass int

const (
	tlvPass1 tlvPass = iota
	tlvPass2
)

type tlvHandlerFunc func(p *Port, ctx *rxContext, t wire.TLV) tlvResult

type tlvDescriptor struct {
	typ         wire.TLVType
	org         bool
	oui         wire.OrgID
	sub         wire.OrgSubType
	permitted   uint16
	needsTiming bool
	needsMgmt   bool
	pass1       tlvHandlerFunc
	pass2       tlvHandlerFunc
}

// monitoringOUI scopes the monitoring-request extension TLVs.
var (
	monitoringOUI        = wire.OrgID{0x00, 0x0F, 0x53}
	subMonitoringRequest = wire.OrgSubType{0x00, 0x00, 0x01}
)

var tlvTable = []tlvDescriptor{
	{
		typ:         wire.TLVPortCommunicationCapabilities,
		permitted:   wire.MsgAnnounce.Bit(),
		needsTiming: true,
		pass1:       handleCommCapsTLV,
	},
	{
		typ:         wire.TLVOrganizationExtensionNonForwarding,
		org:         true,
		oui:         monitoringOUI,
		sub:         subMonitoringRequest,
		permitted:   wire.MsgDelayReq.Bit(),
		needsTiming: true,
		pass1:       handleMonitoringRequestTLV,
	},
	{
		typ:       wire.TLVPad,
		permitted: 0xFFFF,
		pass1:     func(*Port, *rxContext, wire.TLV) tlvResult { return tlvContinue },
	},
}

// dispatchTLVs runs one pass of the handler table. It returns false when
// a handler rejected the whole message.
func (p *Port) dispatchTLVs(ctx *rxContext, tlvs []wire.TLV, pass tlvPass) bool {
	for _, t := range tlvs {
		d := lookupTLV(ctx, t)
		if d == nil {
			continue
		}
		if d.permitted&ctx.header.MessageType.Bit() == 0 {
			p.counters.DiscardedMessages++
			continue
		}
		if d.needsTiming && !ctx.timingPassed {
			p.counters.TimingACLDiscards++
			continue
		}
		if d.needsMgmt && !ctx.mgmtPassed {
			p.counters.ManagementACLDiscards++
			continue
		}
		fn := d.pass1
		if pass == tlvPass2 {
			fn = d.pass2
		}
		if fn == nil {
			continue
		}
		switch fn(p, ctx, t) {
		case tlvDropRest:
			ctx.dropRest = true
		case tlvError:
			p.counters.MessageFormatErrors++
			return false
		}
	}
	return true
}

func lookupTLV(ctx *rxContext, t wire.TLV) *tlvDescriptor {
	var ext wire.OrgExtension
	if t.Type.IsOrganizationExtension() {
		e, err := wire.ParseOrgExtension(t)
		if err != nil {
			return nil
		}
		ext = e
	}
	for i := range tlvTable {
		d := &tlvTable[i]
		if d.typ != t.Type {
			continue
		}
		if d.org && (d.oui != ext.ID || d.sub != ext.SubType) {
			continue
		}
		return d
	}
	return nil
}

func handleCommCapsTLV(p *Port, ctx *rxContext, t wire.TLV) tlvResult {
	caps, err := wire.UnpackCommunicationCapabilities(t.Value)
	if err != nil {
		return tlvError
	}
	ctx.commCaps = caps
	ctx.commCapsProvided = true
	return tlvContinue
}

// handleMonitoringRequestTLV answers a monitoring probe: the DelayReq
// carrying it gets a normal DelayResp plus a unicast Sync exchange so
// the prober can measure us without joining the domain as a slave.
func handleMonitoringRequestTLV(p *Port, ctx *rxContext, t wire.TLV) tlvResult {
	if !p.cfg.MonitoringEnabled {
		return tlvContinue
	}
	p.counters.MonitoringTLVsReceived++
	ctx.monitoringReq = true
	if !ctx.recvValid {
		p.counters.RxPktNoTimestamp++
		return tlvDropRest
	}
	p.issueDelayResp(ctx.recv, ctx.header, ctx.src)
	p.issueMonitoringSync(ctx.src, p.now())
	return tlvDropRest
}

// ObservationTable records peers whose messages matched no port, keyed
// by source address. It is the one structure shared with readers outside
// the event loop.
type ObservationTable struct {
	mu      sync.Mutex
	entries map[netip.AddrPort]*Observation
}

// Observation summarizes traffic seen from one unmatched peer.
type Observation struct {
	Source        netip.AddrPort
	PortIdentity  wire.PortIdentity
	DomainNumber  uint8
	AnnounceCount uint64
	DelayReqCount uint64
	LastSeen      time.Time
}

// Observe records one unmatched Announce or DelayReq.
func (o *ObservationTable) Observe(src netip.AddrPort, h *wire.Header, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.entries == nil {
		o.entries = make(map[netip.AddrPort]*Observation)
	}
	e := o.entries[src]
	if e == nil {
		if len(o.entries) >= 128 {
			return
		}
		e = &Observation{Source: src}
		o.entries[src] = e
		common.Logf("ptp: traffic from unmatched peer %s domain %d", src, h.DomainNumber)
	}
	e.PortIdentity = h.SourcePortIdentity
	e.DomainNumber = h.DomainNumber
	e.LastSeen = at
	switch h.MessageType {
	case wire.MsgAnnounce:
		e.AnnounceCount++
	case wire.MsgDelayReq:
		e.DelayReqCount++
	}
}

// Snapshot returns a copy of the table.
func (o *ObservationTable) Snapshot() []Observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Observation, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, *e)
	}
	return out
}
