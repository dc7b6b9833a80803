package port

import (
	"net/netip"

	"example.com/ptpport/internal/wire"
)

// handleManagement processes a management request addressed to this
// port, exactly or via the all-ones wildcard, and issues the reply.
func (p *Port) handleManagement(ctx *rxContext) {
	if !p.cfg.ManagementEnabled {
		p.counters.DiscardedMessages++
		return
	}
	p.counters.ManagementMessagesReceived++

	m, err := wire.UnpackManagement(ctx.buf)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if !p.managementTargetsUs(m.TargetPortIdentity) {
		p.counters.DiscardedMessages++
		return
	}

	tlvs, err := wire.ScanTLVs(ctx.buf, wire.ManagementLength)
	if err != nil || len(tlvs) == 0 {
		p.counters.MessageFormatErrors++
		return
	}
	first := tlvs[0]

	switch first.Type {
	case wire.TLVManagementErrorStatus:
		// an error reply to something we sent; nothing to act on
		p.counters.DiscardedMessages++
		return
	case wire.TLVManagement:
	default:
		p.counters.DiscardedMessages++
		return
	}

	tlv, err := wire.ParseManagementTLV(first)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	switch m.ActionField {
	case wire.ActionGet, wire.ActionSet, wire.ActionCommand:
	default:
		// responses and acknowledgements from other nodes
		p.counters.DiscardedMessages++
		return
	}

	respData, errID := p.dispatchManagement(m.ActionField, tlv)
	p.issueManagementReply(ctx, &m, tlv.ID, respData, errID)
}

func (p *Port) managementTargetsUs(target wire.PortIdentity) bool {
	if target.ClockIdentity != p.cfg.ClockIdentity &&
		target.ClockIdentity != wire.AllOnesClockIdentity {
		return false
	}
	return target.PortNumber == p.cfg.PortNumber || target.PortNumber == 0xFFFF
}

func (p *Port) dispatchManagement(action wire.ManagementAction, tlv wire.ManagementTLV) ([]byte, wire.ManagementErrorID) {
	if tlv.ID == wire.MMNullManagement {
		return nil, 0
	}
	if p.mgmt == nil {
		return nil, wire.MgmtErrNotSupported
	}
	return p.mgmt.Handle(action, tlv.ID, tlv.Data)
}

func (p *Port) issueManagementReply(ctx *rxContext, req *wire.Management, id wire.ManagementID, data []byte, errID wire.ManagementErrorID) {
	action := wire.ActionResponse
	if errID == 0 && req.ActionField == wire.ActionCommand {
		action = wire.ActionAcknowledge
	}

	h := p.headerTemplate(wire.MsgManagement, ctx.header.SequenceID, wire.LogIntervalUndefined)
	if ctx.header.Unicast() {
		h.FlagField0 |= wire.FlagUnicast
	}
	m := wire.Management{
		TargetPortIdentity:   ctx.header.SourcePortIdentity,
		StartingBoundaryHops: req.StartingBoundaryHops,
		BoundaryHops:         req.BoundaryHops,
		ActionField:          action,
	}

	buf := make([]byte, maxPacket)
	n, err := wire.PackManagement(buf, &h, &m)
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}
	if errID != 0 {
		n, err = wire.AppendManagementErrorStatusTLV(buf, n, errID, id)
	} else {
		n, err = wire.AppendManagementTLV(buf, n, id, data)
	}
	if err != nil {
		p.counters.MessageFormatErrors++
		return
	}

	dst := netip.AddrPort{}
	if ctx.header.Unicast() {
		dst = ctx.src
	}
	if err := p.transport.SendGeneral(buf[:n], dst); err != nil {
		p.handleSendFailure("management response", err)
		return
	}
	p.counters.ManagementMessagesSent++
}
