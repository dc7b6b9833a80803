package wire

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrTLVLength reports a TLV whose declared value length overruns
	// the message.
	ErrTLVLength = errors.New("tlv length exceeds message boundary")
	// ErrTooManyTLVs caps the number of TLVs scanned per message.
	ErrTooManyTLVs = errors.New("too many tlvs in message")
)

// TLVType is the 16-bit TLV type field.
type TLVType uint16

const (
	TLVManagement                         TLVType = 0x0001
	TLVManagementErrorStatus              TLVType = 0x0002
	TLVOrganizationExtension              TLVType = 0x0003
	TLVRequestUnicastTransmission         TLVType = 0x0004
	TLVGrantUnicastTransmission           TLVType = 0x0005
	TLVCancelUnicastTransmission          TLVType = 0x0006
	TLVAcknowledgeCancelUnicast           TLVType = 0x0007
	TLVPathTrace                          TLVType = 0x0008
	TLVAlternateTimeOffsetIndicator       TLVType = 0x0009
	TLVOrganizationExtensionForwarding    TLVType = 0x4000
	TLVOrganizationExtensionNonForwarding TLVType = 0x8000
	TLVPortCommunicationCapabilities      TLVType = 0x8002
	TLVProtocolAddress                    TLVType = 0x8003
	TLVPad                                TLVType = 0x8008
)

// IsOrganizationExtension reports whether the TLV type carries the 6-byte
// organization sub-header.
func (t TLVType) IsOrganizationExtension() bool {
	switch t {
	case TLVOrganizationExtension, TLVOrganizationExtensionForwarding,
		TLVOrganizationExtensionNonForwarding:
		return true
	}
	return false
}

// TLV is one scanned type-length-value block. Value aliases the message
// buffer; handlers must not retain it past the dispatch call.
type TLV struct {
	Type   TLVType
	Length uint16
	Value  []byte
	// Offset of the TLV header within the message, for diagnostics.
	Offset int
}

// OrgID is a 24-bit IEEE organization identifier.
type OrgID [3]byte

// OrgSubType is a 24-bit organization-assigned TLV subtype.
type OrgSubType [3]byte

// OrgExtension is the organization sub-header plus remaining payload of
// an organization-extension TLV.
type OrgExtension struct {
	ID      OrgID
	SubType OrgSubType
	Payload []byte
}

const orgExtensionHeaderLength = 6

// ScanTLVs walks the TLV region of a message starting at offset. A type
// of zero terminates the scan: some implementations pad trailing space
// with zero bytes. Each TLV's declared length is bounds-checked against
// the remaining buffer before the value is touched.
func ScanTLVs(buf []byte, offset int) ([]TLV, error) {
	var tlvs []TLV
	for offset+TLVHeaderLength <= len(buf) {
		t := TLVType(binary.BigEndian.Uint16(buf[offset : offset+2]))
		if t == 0 {
			break
		}
		length := binary.BigEndian.Uint16(buf[offset+2 : offset+4])
		valueStart := offset + TLVHeaderLength
		if valueStart+int(length) > len(buf) {
			return tlvs, ErrTLVLength
		}
		if len(tlvs) == MaxTLVs {
			return tlvs, ErrTooManyTLVs
		}
		tlvs = append(tlvs, TLV{
			Type:   t,
			Length: length,
			Value:  buf[valueStart : valueStart+int(length)],
			Offset: offset,
		})
		offset = valueStart + int(length)
	}
	return tlvs, nil
}

// ParseOrgExtension splits the organization sub-header off a TLV value.
func ParseOrgExtension(t TLV) (OrgExtension, error) {
	var e OrgExtension
	if len(t.Value) < orgExtensionHeaderLength {
		return e, ErrFieldOutOfBounds
	}
	copy(e.ID[:], t.Value[0:3])
	copy(e.SubType[:], t.Value[3:6])
	e.Payload = t.Value[orgExtensionHeaderLength:]
	return e, nil
}

// appendTLV writes a TLV header plus value after msgLen, pads the value
// to even length, updates the packed message length, and returns the new
// total length.
func appendTLV(dst []byte, msgLen int, t TLVType, value []byte) (int, error) {
	n := len(value)
	padded := n + n&1
	if msgLen+TLVHeaderLength+padded > len(dst) {
		return 0, ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(dst[msgLen:msgLen+2], uint16(t))
	binary.BigEndian.PutUint16(dst[msgLen+2:msgLen+4], uint16(padded))
	copy(dst[msgLen+TLVHeaderLength:], value)
	if padded > n {
		dst[msgLen+TLVHeaderLength+n] = 0
	}
	total := msgLen + TLVHeaderLength + padded
	setMessageLength(dst, total)
	return total, nil
}

// AppendOrgExtensionTLV appends an organization-extension TLV of the
// given outer type.
func AppendOrgExtensionTLV(dst []byte, msgLen int, t TLVType, id OrgID, sub OrgSubType, payload []byte) (int, error) {
	value := make([]byte, orgExtensionHeaderLength+len(payload))
	copy(value[0:3], id[:])
	copy(value[3:6], sub[:])
	copy(value[orgExtensionHeaderLength:], payload)
	return appendTLV(dst, msgLen, t, value)
}

// UnpackCommunicationCapabilities decodes the two capability octets of a
// port-communication-capabilities TLV value.
func UnpackCommunicationCapabilities(value []byte) (CommunicationCapabilities, error) {
	var c CommunicationCapabilities
	if len(value) < 2 {
		return c, ErrFieldOutOfBounds
	}
	c.SyncCapabilities = value[0]
	c.DelayRespCapabilities = value[1]
	return c, nil
}

// AppendCommunicationCapabilitiesTLV appends the capabilities TLV to a
// packed message.
func AppendCommunicationCapabilitiesTLV(dst []byte, msgLen int, caps CommunicationCapabilities) (int, error) {
	return appendTLV(dst, msgLen, TLVPortCommunicationCapabilities,
		[]byte{caps.SyncCapabilities, caps.DelayRespCapabilities})
}

// UnpackPortAddress decodes a PortAddress from the start of buf and
// returns the number of bytes consumed. The declared addressLength is
// validated against the remaining buffer before any byte of the address
// is read.
func UnpackPortAddress(buf []byte) (PortAddress, int, error) {
	var a PortAddress
	if len(buf) < 4 {
		return a, 0, ErrFieldOutOfBounds
	}
	a.Protocol = NetworkProtocol(binary.BigEndian.Uint16(buf[0:2]))
	addrLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if 4+addrLen > len(buf) {
		return PortAddress{}, 0, ErrFieldOutOfBounds
	}
	a.Address = append([]byte(nil), buf[4:4+addrLen]...)
	return a, 4 + addrLen, nil
}

// PackPortAddress encodes a PortAddress into dst and returns the bytes
// written.
func PackPortAddress(dst []byte, a PortAddress) (int, error) {
	need := 4 + len(a.Address)
	if len(dst) < need {
		return 0, ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(a.Protocol))
	binary.BigEndian.PutUint16(dst[2:4], uint16(len(a.Address)))
	copy(dst[4:], a.Address)
	return need, nil
}

// ManagementID identifies the attribute carried by a management TLV.
type ManagementID uint16

const (
	MMNullManagement           ManagementID = 0x0000
	MMClockDescription         ManagementID = 0x0001
	MMUserDescription          ManagementID = 0x0002
	MMSaveInNonVolatileStorage ManagementID = 0x0003
	MMResetNonVolatileStorage  ManagementID = 0x0004
	MMInitialize               ManagementID = 0x0005
	MMFaultLog                 ManagementID = 0x0006
	MMFaultLogReset            ManagementID = 0x0007
	MMDefaultDataSet           ManagementID = 0x2000
	MMCurrentDataSet           ManagementID = 0x2001
	MMParentDataSet            ManagementID = 0x2002
	MMTimePropertiesDataSet    ManagementID = 0x2003
	MMPortDataSet              ManagementID = 0x2004
	MMPriority1                ManagementID = 0x2005
	MMPriority2                ManagementID = 0x2006
	MMDomain                   ManagementID = 0x2007
	MMSlaveOnly                ManagementID = 0x2008
	MMLogAnnounceInterval      ManagementID = 0x2009
	MMAnnounceReceiptTimeout   ManagementID = 0x200A
	MMLogSyncInterval          ManagementID = 0x200B
	MMVersionNumber            ManagementID = 0x200C
	MMEnablePort               ManagementID = 0x200D
	MMDisablePort              ManagementID = 0x200E
	MMTime                     ManagementID = 0x200F
	MMClockAccuracy            ManagementID = 0x2010
	MMUTCProperties            ManagementID = 0x2011
	MMTraceabilityProperties   ManagementID = 0x2012
	MMTimescaleProperties      ManagementID = 0x2013
	MMUnicastNegotiationEnable ManagementID = 0x2014
	MMDelayMechanism           ManagementID = 0x6000
	MMLogMinPDelayReqInterval  ManagementID = 0x6001
)

// ManagementErrorID is the managementErrorId of an error-status TLV.
type ManagementErrorID uint16

const (
	MgmtErrResponseTooBig ManagementErrorID = 0x0001
	MgmtErrNoSuchID       ManagementErrorID = 0x0002
	MgmtErrWrongLength    ManagementErrorID = 0x0003
	MgmtErrWrongValue     ManagementErrorID = 0x0004
	MgmtErrNotSetable     ManagementErrorID = 0x0005
	MgmtErrNotSupported   ManagementErrorID = 0x0006
	MgmtErrGeneralError   ManagementErrorID = 0xFFFE
)

// ManagementTLV is the parsed management TLV: attribute id plus raw data
// handed to the per-attribute accessors.
type ManagementTLV struct {
	ID   ManagementID
	Data []byte
}

// ParseManagementTLV extracts the management id and data from a
// management TLV value.
func ParseManagementTLV(t TLV) (ManagementTLV, error) {
	var m ManagementTLV
	if len(t.Value) < 2 {
		return m, ErrFieldOutOfBounds
	}
	m.ID = ManagementID(binary.BigEndian.Uint16(t.Value[0:2]))
	m.Data = t.Value[2:]
	return m, nil
}

// AppendManagementTLV appends a management TLV to a packed Management
// message.
func AppendManagementTLV(dst []byte, msgLen int, id ManagementID, data []byte) (int, error) {
	value := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(value[0:2], uint16(id))
	copy(value[2:], data)
	return appendTLV(dst, msgLen, TLVManagement, value)
}

// AppendManagementErrorStatusTLV appends an error-status TLV reusing the
// offending attribute id.
func AppendManagementErrorStatusTLV(dst []byte, msgLen int, errID ManagementErrorID, id ManagementID) (int, error) {
	value := make([]byte, 8)
	binary.BigEndian.PutUint16(value[0:2], uint16(errID))
	binary.BigEndian.PutUint16(value[2:4], uint16(id))
	return appendTLV(dst, msgLen, TLVManagementErrorStatus, value)
}

// ParseManagementErrorStatus decodes the error id and attribute id from
// an error-status TLV value.
func ParseManagementErrorStatus(t TLV) (ManagementErrorID, ManagementID, error) {
	if len(t.Value) < 4 {
		return 0, 0, ErrFieldOutOfBounds
	}
	return ManagementErrorID(binary.BigEndian.Uint16(t.Value[0:2])),
		ManagementID(binary.BigEndian.Uint16(t.Value[2:4])), nil
}
