package wire

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrTruncated reports a message shorter than its type's fixed layout.
	ErrTruncated = errors.New("truncated message")
	// ErrFieldOutOfBounds reports a declared field extending past the
	// message boundary.
	ErrFieldOutOfBounds = errors.New("field extends past message boundary")
	// ErrBufferTooSmall reports a pack destination without enough room.
	ErrBufferTooSmall = errors.New("destination buffer too small")
)

// Control field values carried for backwards compatibility with
// version 1 hardware.
const (
	CtrlSync       = 0x00
	CtrlDelayReq   = 0x01
	CtrlFollowUp   = 0x02
	CtrlDelayResp  = 0x03
	CtrlManagement = 0x04
	CtrlOther      = 0x05
)

func controlField(t MessageType) uint8 {
	switch t {
	case MsgSync:
		return CtrlSync
	case MsgDelayReq:
		return CtrlDelayReq
	case MsgFollowUp:
		return CtrlFollowUp
	case MsgDelayResp:
		return CtrlDelayResp
	case MsgManagement:
		return CtrlManagement
	}
	return CtrlOther
}

func unpackTimestamp(b []byte) Timestamp {
	return Timestamp{
		Seconds:     uint64(binary.BigEndian.Uint16(b[0:2]))<<32 | uint64(binary.BigEndian.Uint32(b[2:6])),
		Nanoseconds: binary.BigEndian.Uint32(b[6:10]),
	}
}

func packTimestamp(b []byte, ts Timestamp) {
	binary.BigEndian.PutUint16(b[0:2], uint16(ts.Seconds>>32))
	binary.BigEndian.PutUint32(b[2:6], uint32(ts.Seconds))
	binary.BigEndian.PutUint32(b[6:10], ts.Nanoseconds)
}

func unpackPortIdentity(b []byte) PortIdentity {
	var p PortIdentity
	copy(p.ClockIdentity[:], b[0:8])
	p.PortNumber = binary.BigEndian.Uint16(b[8:10])
	return p
}

func packPortIdentity(b []byte, p PortIdentity) {
	copy(b[0:8], p.ClockIdentity[:])
	binary.BigEndian.PutUint16(b[8:10], p.PortNumber)
}

// UnpackHeader decodes the fixed 34-byte header.
func UnpackHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderLength {
		return h, ErrTruncated
	}
	h.MajorSdoID = buf[0] >> 4
	h.MessageType = MessageType(buf[0] & 0x0F)
	h.MinorVersion = buf[1] >> 4
	h.Version = buf[1] & 0x0F
	h.MessageLength = binary.BigEndian.Uint16(buf[2:4])
	h.DomainNumber = buf[4]
	h.MinorSdoID = buf[5]
	h.FlagField0 = buf[6]
	h.FlagField1 = buf[7]
	h.Correction = Correction(binary.BigEndian.Uint64(buf[8:16]))
	h.MessageTypeSpecific = binary.BigEndian.Uint32(buf[16:20])
	h.SourcePortIdentity = unpackPortIdentity(buf[20:30])
	h.SequenceID = binary.BigEndian.Uint16(buf[30:32])
	h.ControlField = buf[32]
	h.LogMessageInterval = int8(buf[33])
	return h, nil
}

// PackHeader encodes the header as-is. Message-specific pack functions
// stamp MessageType, MessageLength and ControlField before calling it.
func PackHeader(dst []byte, h *Header) (int, error) {
	if len(dst) < HeaderLength {
		return 0, ErrBufferTooSmall
	}
	dst[0] = h.MajorSdoID<<4 | uint8(h.MessageType)&0x0F
	dst[1] = h.MinorVersion<<4 | h.Version&0x0F
	binary.BigEndian.PutUint16(dst[2:4], h.MessageLength)
	dst[4] = h.DomainNumber
	dst[5] = h.MinorSdoID
	dst[6] = h.FlagField0
	dst[7] = h.FlagField1
	binary.BigEndian.PutUint64(dst[8:16], uint64(h.Correction))
	binary.BigEndian.PutUint32(dst[16:20], h.MessageTypeSpecific)
	packPortIdentity(dst[20:30], h.SourcePortIdentity)
	binary.BigEndian.PutUint16(dst[30:32], h.SequenceID)
	dst[32] = h.ControlField
	dst[33] = uint8(h.LogMessageInterval)
	return HeaderLength, nil
}

func packMessage(dst []byte, h *Header, t MessageType, length int) error {
	if len(dst) < length {
		return ErrBufferTooSmall
	}
	h.MessageType = t
	h.MessageLength = uint16(length)
	h.ControlField = controlField(t)
	_, err := PackHeader(dst, h)
	return err
}

// UnpackAnnounce decodes an Announce body. buf is the whole message,
// header included.
func UnpackAnnounce(buf []byte) (Announce, error) {
	var a Announce
	if len(buf) < AnnounceLength {
		return a, ErrTruncated
	}
	a.OriginTimestamp = unpackTimestamp(buf[34:44])
	a.CurrentUTCOffset = int16(binary.BigEndian.Uint16(buf[44:46]))
	a.GrandmasterPriority1 = buf[47]
	a.GrandmasterClockQuality.ClockClass = buf[48]
	a.GrandmasterClockQuality.ClockAccuracy = ClockAccuracy(buf[49])
	a.GrandmasterClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(buf[50:52])
	a.GrandmasterPriority2 = buf[52]
	copy(a.GrandmasterIdentity[:], buf[53:61])
	a.StepsRemoved = binary.BigEndian.Uint16(buf[61:63])
	a.TimeSource = TimeSource(buf[63])
	return a, nil
}

func PackAnnounce(dst []byte, h *Header, a *Announce) (int, error) {
	if err := packMessage(dst, h, MsgAnnounce, AnnounceLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], a.OriginTimestamp)
	binary.BigEndian.PutUint16(dst[44:46], uint16(a.CurrentUTCOffset))
	dst[46] = 0
	dst[47] = a.GrandmasterPriority1
	dst[48] = a.GrandmasterClockQuality.ClockClass
	dst[49] = uint8(a.GrandmasterClockQuality.ClockAccuracy)
	binary.BigEndian.PutUint16(dst[50:52], a.GrandmasterClockQuality.OffsetScaledLogVariance)
	dst[52] = a.GrandmasterPriority2
	copy(dst[53:61], a.GrandmasterIdentity[:])
	binary.BigEndian.PutUint16(dst[61:63], a.StepsRemoved)
	dst[63] = uint8(a.TimeSource)
	return AnnounceLength, nil
}

func UnpackSync(buf []byte) (Sync, error) {
	var s Sync
	if len(buf) < SyncLength {
		return s, ErrTruncated
	}
	s.OriginTimestamp = unpackTimestamp(buf[34:44])
	return s, nil
}

func PackSync(dst []byte, h *Header, s *Sync) (int, error) {
	if err := packMessage(dst, h, MsgSync, SyncLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], s.OriginTimestamp)
	return SyncLength, nil
}

func UnpackFollowUp(buf []byte) (FollowUp, error) {
	var f FollowUp
	if len(buf) < FollowUpLength {
		return f, ErrTruncated
	}
	f.PreciseOriginTimestamp = unpackTimestamp(buf[34:44])
	return f, nil
}

func PackFollowUp(dst []byte, h *Header, f *FollowUp) (int, error) {
	if err := packMessage(dst, h, MsgFollowUp, FollowUpLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], f.PreciseOriginTimestamp)
	return FollowUpLength, nil
}

func UnpackDelayReq(buf []byte) (DelayReq, error) {
	var d DelayReq
	if len(buf) < DelayReqLength {
		return d, ErrTruncated
	}
	d.OriginTimestamp = unpackTimestamp(buf[34:44])
	return d, nil
}

func PackDelayReq(dst []byte, h *Header, d *DelayReq) (int, error) {
	if err := packMessage(dst, h, MsgDelayReq, DelayReqLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], d.OriginTimestamp)
	return DelayReqLength, nil
}

func UnpackDelayResp(buf []byte) (DelayResp, error) {
	var d DelayResp
	if len(buf) < DelayRespLength {
		return d, ErrTruncated
	}
	d.ReceiveTimestamp = unpackTimestamp(buf[34:44])
	d.RequestingPortIdentity = unpackPortIdentity(buf[44:54])
	return d, nil
}

func PackDelayResp(dst []byte, h *Header, d *DelayResp) (int, error) {
	if err := packMessage(dst, h, MsgDelayResp, DelayRespLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], d.ReceiveTimestamp)
	packPortIdentity(dst[44:54], d.RequestingPortIdentity)
	return DelayRespLength, nil
}

func UnpackPDelayReq(buf []byte) (PDelayReq, error) {
	var d PDelayReq
	if len(buf) < PDelayReqLength {
		return d, ErrTruncated
	}
	d.OriginTimestamp = unpackTimestamp(buf[34:44])
	return d, nil
}

func PackPDelayReq(dst []byte, h *Header, d *PDelayReq) (int, error) {
	if err := packMessage(dst, h, MsgPDelayReq, PDelayReqLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], d.OriginTimestamp)
	for i := 44; i < 54; i++ {
		dst[i] = 0
	}
	return PDelayReqLength, nil
}

func UnpackPDelayResp(buf []byte) (PDelayResp, error) {
	var d PDelayResp
	if len(buf) < PDelayRespLength {
		return d, ErrTruncated
	}
	d.RequestReceiptTimestamp = unpackTimestamp(buf[34:44])
	d.RequestingPortIdentity = unpackPortIdentity(buf[44:54])
	return d, nil
}

func PackPDelayResp(dst []byte, h *Header, d *PDelayResp) (int, error) {
	if err := packMessage(dst, h, MsgPDelayResp, PDelayRespLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], d.RequestReceiptTimestamp)
	packPortIdentity(dst[44:54], d.RequestingPortIdentity)
	return PDelayRespLength, nil
}

func UnpackPDelayRespFollowUp(buf []byte) (PDelayRespFollowUp, error) {
	var d PDelayRespFollowUp
	if len(buf) < PDelayRespFollowUpLength {
		return d, ErrTruncated
	}
	d.ResponseOriginTimestamp = unpackTimestamp(buf[34:44])
	d.RequestingPortIdentity = unpackPortIdentity(buf[44:54])
	return d, nil
}

func PackPDelayRespFollowUp(dst []byte, h *Header, d *PDelayRespFollowUp) (int, error) {
	if err := packMessage(dst, h, MsgPDelayRespFollowUp, PDelayRespFollowUpLength); err != nil {
		return 0, err
	}
	packTimestamp(dst[34:44], d.ResponseOriginTimestamp)
	packPortIdentity(dst[44:54], d.RequestingPortIdentity)
	return PDelayRespFollowUpLength, nil
}

func UnpackSignaling(buf []byte) (Signaling, error) {
	var s Signaling
	if len(buf) < SignalingLength {
		return s, ErrTruncated
	}
	s.TargetPortIdentity = unpackPortIdentity(buf[34:44])
	return s, nil
}

func PackSignaling(dst []byte, h *Header, s *Signaling) (int, error) {
	if err := packMessage(dst, h, MsgSignaling, SignalingLength); err != nil {
		return 0, err
	}
	packPortIdentity(dst[34:44], s.TargetPortIdentity)
	return SignalingLength, nil
}

func UnpackManagement(buf []byte) (Management, error) {
	var m Management
	if len(buf) < ManagementLength {
		return m, ErrTruncated
	}
	m.TargetPortIdentity = unpackPortIdentity(buf[34:44])
	m.StartingBoundaryHops = buf[44]
	m.BoundaryHops = buf[45]
	m.ActionField = ManagementAction(buf[46] & 0x0F)
	return m, nil
}

func PackManagement(dst []byte, h *Header, m *Management) (int, error) {
	if err := packMessage(dst, h, MsgManagement, ManagementLength); err != nil {
		return 0, err
	}
	packPortIdentity(dst[34:44], m.TargetPortIdentity)
	dst[44] = m.StartingBoundaryHops
	dst[45] = m.BoundaryHops
	dst[46] = uint8(m.ActionField) & 0x0F
	dst[47] = 0
	return ManagementLength, nil
}

// SetSequenceID rewrites the sequence number of an already packed message.
func SetSequenceID(buf []byte, seq uint16) error {
	if len(buf) < HeaderLength {
		return ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(buf[30:32], seq)
	return nil
}

// SetFlags ands then ors the two flag octets of a packed message, used
// when a transmit path needs to adjust a template message.
func SetFlags(buf []byte, and0, or0, and1, or1 uint8) error {
	if len(buf) < HeaderLength {
		return ErrBufferTooSmall
	}
	buf[6] = buf[6]&and0 | or0
	buf[7] = buf[7]&and1 | or1
	return nil
}

// MessageLength reads the declared length of a packed message.
func MessageLength(buf []byte) (int, error) {
	if len(buf) < HeaderLength {
		return 0, ErrTruncated
	}
	return int(binary.BigEndian.Uint16(buf[2:4])), nil
}

func setMessageLength(buf []byte, n int) {
	binary.BigEndian.PutUint16(buf[2:4], uint16(n))
}
