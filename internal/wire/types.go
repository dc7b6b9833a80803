package wire

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the 4-bit PTP message type from the first header octet.
type MessageType uint8

const (
	MsgSync               MessageType = 0x0
	MsgDelayReq           MessageType = 0x1
	MsgPDelayReq          MessageType = 0x2
	MsgPDelayResp         MessageType = 0x3
	MsgFollowUp           MessageType = 0x8
	MsgDelayResp          MessageType = 0x9
	MsgPDelayRespFollowUp MessageType = 0xA
	MsgAnnounce           MessageType = 0xB
	MsgSignaling          MessageType = 0xC
	MsgManagement         MessageType = 0xD
)

// Event reports whether the message type is timestamped on the event port.
func (t MessageType) Event() bool {
	switch t {
	case MsgSync, MsgDelayReq, MsgPDelayReq, MsgPDelayResp:
		return true
	}
	return false
}

// Bit returns the message type as a one-hot mask, used by the TLV
// handler table's permitted-message masks.
func (t MessageType) Bit() uint16 {
	return 1 << uint(t)
}

func (t MessageType) String() string {
	switch t {
	case MsgSync:
		return "Sync"
	case MsgDelayReq:
		return "DelayReq"
	case MsgPDelayReq:
		return "PDelayReq"
	case MsgPDelayResp:
		return "PDelayResp"
	case MsgFollowUp:
		return "FollowUp"
	case MsgDelayResp:
		return "DelayResp"
	case MsgPDelayRespFollowUp:
		return "PDelayRespFollowUp"
	case MsgAnnounce:
		return "Announce"
	case MsgSignaling:
		return "Signaling"
	case MsgManagement:
		return "Management"
	}
	return fmt.Sprintf("MessageType(0x%X)", uint8(t))
}

// Fixed on-wire lengths, excluding any trailing TLVs.
const (
	HeaderLength             = 34
	AnnounceLength           = 64
	SyncLength               = 44
	FollowUpLength           = 44
	DelayReqLength           = 44
	DelayRespLength          = 54
	PDelayReqLength          = 54
	PDelayRespLength         = 54
	PDelayRespFollowUpLength = 54
	SignalingLength          = 44
	ManagementLength         = 48

	TLVHeaderLength = 4
	MaxTLVs         = 32
)

// MinLength returns the minimum valid on-wire length for a message type,
// header included.
func MinLength(t MessageType) int {
	switch t {
	case MsgSync:
		return SyncLength
	case MsgDelayReq:
		return DelayReqLength
	case MsgPDelayReq:
		return PDelayReqLength
	case MsgPDelayResp:
		return PDelayRespLength
	case MsgFollowUp:
		return FollowUpLength
	case MsgDelayResp:
		return DelayRespLength
	case MsgPDelayRespFollowUp:
		return PDelayRespFollowUpLength
	case MsgAnnounce:
		return AnnounceLength
	case MsgSignaling:
		return SignalingLength
	case MsgManagement:
		return ManagementLength
	}
	return 0
}

// ClockIdentity is the 8-byte EUI-64 derived clock identifier.
type ClockIdentity [8]byte

// AllOnesClockIdentity is the wildcard target in management messages.
var AllOnesClockIdentity = ClockIdentity{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (c ClockIdentity) Compare(o ClockIdentity) int {
	return bytes.Compare(c[:], o[:])
}

func (c ClockIdentity) String() string {
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x",
		c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7])
}

// MarshalJSON renders the identity in its dotted hex form.
func (c ClockIdentity) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses the dotted hex form produced by MarshalJSON.
func (c *ClockIdentity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var raw []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			continue
		}
		raw = append(raw, s[i])
	}
	if len(raw) != 16 {
		return fmt.Errorf("clock identity %q: want 16 hex digits", s)
	}
	var out [8]byte
	if _, err := hex.Decode(out[:], raw); err != nil {
		return fmt.Errorf("clock identity %q: %w", s, err)
	}
	*c = out
	return nil
}

// PortIdentity uniquely identifies a PTP port, local or remote.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

func (p PortIdentity) Equal(o PortIdentity) bool {
	return p.ClockIdentity == o.ClockIdentity && p.PortNumber == o.PortNumber
}

// Compare orders port identities by clock identity bytes, then port number.
func (p PortIdentity) Compare(o PortIdentity) int {
	if c := p.ClockIdentity.Compare(o.ClockIdentity); c != 0 {
		return c
	}
	switch {
	case p.PortNumber < o.PortNumber:
		return -1
	case p.PortNumber > o.PortNumber:
		return 1
	}
	return 0
}

func (p PortIdentity) String() string {
	return fmt.Sprintf("%s/%d", p.ClockIdentity, p.PortNumber)
}

// ClockAccuracy is the IEEE 1588 clock accuracy enumeration; lower is better.
type ClockAccuracy uint8

const (
	Accuracy25ns     ClockAccuracy = 0x20
	Accuracy100ns    ClockAccuracy = 0x21
	Accuracy250ns    ClockAccuracy = 0x22
	Accuracy1us      ClockAccuracy = 0x23
	Accuracy2500ns   ClockAccuracy = 0x24
	Accuracy10us     ClockAccuracy = 0x25
	Accuracy25us     ClockAccuracy = 0x26
	Accuracy100us    ClockAccuracy = 0x27
	Accuracy250us    ClockAccuracy = 0x28
	Accuracy1ms      ClockAccuracy = 0x29
	Accuracy2500us   ClockAccuracy = 0x2A
	Accuracy10ms     ClockAccuracy = 0x2B
	Accuracy25ms     ClockAccuracy = 0x2C
	Accuracy100ms    ClockAccuracy = 0x2D
	Accuracy250ms    ClockAccuracy = 0x2E
	Accuracy1s       ClockAccuracy = 0x2F
	Accuracy10s      ClockAccuracy = 0x30
	AccuracyOver10s  ClockAccuracy = 0x31
	AccuracyUnknown  ClockAccuracy = 0xFE
	AccuracyReserved ClockAccuracy = 0xFF
)

// ClockQuality is compared field by field during master selection.
type ClockQuality struct {
	ClockClass              uint8
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
}

// TimeSource is the announced origin of a grandmaster's time.
type TimeSource uint8

const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGPS                TimeSource = 0x20
	TimeSourceTerrestrialRadio   TimeSource = 0x30
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceHandSet            TimeSource = 0x60
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xA0
)

// Timestamp is the on-wire PTP timestamp: 48-bit seconds, 32-bit nanoseconds.
type Timestamp struct {
	Seconds     uint64
	Nanoseconds uint32
}

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{
		Seconds:     uint64(t.Unix()) & 0xFFFFFFFFFFFF,
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts.Seconds), int64(ts.Nanoseconds))
}

func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanoseconds == 0
}

// Correction is the header correctionField: nanoseconds scaled by 2^16.
type Correction int64

func CorrectionFromDuration(d time.Duration) Correction {
	return Correction(d.Nanoseconds() << 16)
}

func (c Correction) Duration() time.Duration {
	return time.Duration(int64(c) >> 16)
}

// Header flag bits. FlagTwoStep group lives in the first flag octet,
// the timescale/leap group in the second.
const (
	FlagAlternateMaster = 0x01
	FlagTwoStep         = 0x02
	FlagUnicast         = 0x04

	FlagLeap61             = 0x01
	FlagLeap59             = 0x02
	FlagUTCOffsetValid     = 0x04
	FlagPTPTimescale       = 0x08
	FlagTimeTraceable      = 0x10
	FlagFrequencyTraceable = 0x20
)

// LogIntervalUndefined is the logMessageInterval sentinel carried by
// message types that do not advertise an interval.
const LogIntervalUndefined int8 = 0x7F

// Header is the fixed 34-byte header common to all PTP messages.
type Header struct {
	MajorSdoID          uint8
	MessageType         MessageType
	MinorVersion        uint8
	Version             uint8
	MessageLength       uint16
	DomainNumber        uint8
	MinorSdoID          uint8
	FlagField0          uint8
	FlagField1          uint8
	Correction          Correction
	MessageTypeSpecific uint32
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  int8
}

// Unicast reports whether the unicast flag is set.
func (h *Header) Unicast() bool {
	return h.FlagField0&FlagUnicast != 0
}

// TwoStep reports whether the two-step flag is set.
func (h *Header) TwoStep() bool {
	return h.FlagField0&FlagTwoStep != 0
}

// Announce carries a candidate master's datasets.
type Announce struct {
	OriginTimestamp         Timestamp
	CurrentUTCOffset        int16
	GrandmasterPriority1    uint8
	GrandmasterClockQuality ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     ClockIdentity
	StepsRemoved            uint16
	TimeSource              TimeSource
}

type Sync struct {
	OriginTimestamp Timestamp
}

type FollowUp struct {
	PreciseOriginTimestamp Timestamp
}

type DelayReq struct {
	OriginTimestamp Timestamp
}

type DelayResp struct {
	ReceiveTimestamp       Timestamp
	RequestingPortIdentity PortIdentity
}

type PDelayReq struct {
	OriginTimestamp Timestamp
}

type PDelayResp struct {
	RequestReceiptTimestamp Timestamp
	RequestingPortIdentity  PortIdentity
}

type PDelayRespFollowUp struct {
	ResponseOriginTimestamp Timestamp
	RequestingPortIdentity  PortIdentity
}

type Signaling struct {
	TargetPortIdentity PortIdentity
}

// ManagementAction is the 4-bit actionField of a Management message.
type ManagementAction uint8

const (
	ActionGet         ManagementAction = 0
	ActionSet         ManagementAction = 1
	ActionResponse    ManagementAction = 2
	ActionCommand     ManagementAction = 3
	ActionAcknowledge ManagementAction = 4
)

type Management struct {
	TargetPortIdentity   PortIdentity
	StartingBoundaryHops uint8
	BoundaryHops         uint8
	ActionField          ManagementAction
}

// NetworkProtocol identifies the transport in a PortAddress.
type NetworkProtocol uint16

const (
	ProtocolUDPIPv4  NetworkProtocol = 0x0001
	ProtocolUDPIPv6  NetworkProtocol = 0x0002
	ProtocolIEEE8023 NetworkProtocol = 0x0003
)

// PortAddress is a transport address as carried inside TLV payloads.
type PortAddress struct {
	Protocol NetworkProtocol
	Address  []byte
}

// CommunicationCapabilities advertises per-direction multicast/unicast
// support, exchanged via an organization TLV on Announce.
type CommunicationCapabilities struct {
	SyncCapabilities      uint8
	DelayRespCapabilities uint8
}

const (
	CommMulticastCapable           = 1 << 0
	CommUnicastCapable             = 1 << 1
	CommUnicastNegotiationCapable  = 1 << 2
	CommUnicastNegotiationRequired = 1 << 3
)
