package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func packedSignaling(t *testing.T) []byte {
	t.Helper()
	h := testHeader(MsgSignaling)
	buf := make([]byte, 256)
	n, err := PackSignaling(buf, &h, &Signaling{})
	if err != nil {
		t.Fatalf("PackSignaling: %v", err)
	}
	return buf[:n:len(buf)]
}

func TestScanTLVs(t *testing.T) {
	msg := packedSignaling(t)
	full := msg[:cap(msg)]
	n := len(msg)
	n, err := appendTLV(full, n, TLVPathTrace, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("appendTLV: %v", err)
	}
	n, err = appendTLV(full, n, TLVPortCommunicationCapabilities, []byte{3, 3})
	if err != nil {
		t.Fatalf("appendTLV: %v", err)
	}

	tlvs, err := ScanTLVs(full[:n], SignalingLength)
	if err != nil {
		t.Fatalf("ScanTLVs: %v", err)
	}
	if len(tlvs) != 2 {
		t.Fatalf("got %d tlvs, want 2", len(tlvs))
	}
	if tlvs[0].Type != TLVPathTrace || tlvs[0].Length != 8 {
		t.Fatalf("tlv[0] = %+v", tlvs[0])
	}
	if tlvs[1].Type != TLVPortCommunicationCapabilities || !bytes.Equal(tlvs[1].Value, []byte{3, 3}) {
		t.Fatalf("tlv[1] = %+v", tlvs[1])
	}
}

func TestScanTLVsZeroTypeTerminates(t *testing.T) {
	buf := make([]byte, SignalingLength+8)
	tlvs, err := ScanTLVs(buf, SignalingLength)
	if err != nil {
		t.Fatalf("ScanTLVs: %v", err)
	}
	if len(tlvs) != 0 {
		t.Fatalf("got %d tlvs from zero padding, want 0", len(tlvs))
	}
}

func TestScanTLVsOverrun(t *testing.T) {
	buf := make([]byte, SignalingLength+TLVHeaderLength+2)
	off := SignalingLength
	binary.BigEndian.PutUint16(buf[off:], uint16(TLVPathTrace))
	binary.BigEndian.PutUint16(buf[off+2:], 64) // value longer than the buffer
	if _, err := ScanTLVs(buf, off); !errors.Is(err, ErrTLVLength) {
		t.Fatalf("err = %v, want ErrTLVLength", err)
	}
}

func TestScanTLVsTooMany(t *testing.T) {
	buf := make([]byte, SignalingLength+(MaxTLVs+1)*TLVHeaderLength)
	off := SignalingLength
	for i := 0; i <= MaxTLVs; i++ {
		binary.BigEndian.PutUint16(buf[off:], uint16(TLVPad))
		binary.BigEndian.PutUint16(buf[off+2:], 0)
		off += TLVHeaderLength
	}
	if _, err := ScanTLVs(buf, SignalingLength); !errors.Is(err, ErrTooManyTLVs) {
		t.Fatalf("err = %v, want ErrTooManyTLVs", err)
	}
}

func TestAppendTLVPadsToEven(t *testing.T) {
	msg := packedSignaling(t)
	full := msg[:cap(msg)]
	n, err := appendTLV(full, len(msg), TLVPathTrace, []byte{0xAA, 0xBB, 0xCC})
	if err != nil {
		t.Fatalf("appendTLV: %v", err)
	}
	if n != SignalingLength+TLVHeaderLength+4 {
		t.Fatalf("total = %d, want %d", n, SignalingLength+TLVHeaderLength+4)
	}
	declared, err := MessageLength(full)
	if err != nil || declared != n {
		t.Fatalf("declared message length = %d (%v), want %d", declared, err, n)
	}
	tlvs, err := ScanTLVs(full[:n], SignalingLength)
	if err != nil || len(tlvs) != 1 {
		t.Fatalf("ScanTLVs = %v, %v", tlvs, err)
	}
	if tlvs[0].Length != 4 || tlvs[0].Value[3] != 0 {
		t.Fatalf("padded tlv = %+v", tlvs[0])
	}
}

func TestOrgExtension(t *testing.T) {
	msg := packedSignaling(t)
	full := msg[:cap(msg)]
	id := OrgID{0x00, 0x0F, 0x53}
	sub := OrgSubType{0x00, 0x00, 0x01}
	n, err := AppendOrgExtensionTLV(full, len(msg), TLVOrganizationExtension, id, sub, []byte{0xDE, 0xAD})
	if err != nil {
		t.Fatalf("AppendOrgExtensionTLV: %v", err)
	}
	tlvs, err := ScanTLVs(full[:n], SignalingLength)
	if err != nil || len(tlvs) != 1 {
		t.Fatalf("ScanTLVs = %v, %v", tlvs, err)
	}
	ext, err := ParseOrgExtension(tlvs[0])
	if err != nil {
		t.Fatalf("ParseOrgExtension: %v", err)
	}
	if ext.ID != id || ext.SubType != sub || !bytes.Equal(ext.Payload, []byte{0xDE, 0xAD}) {
		t.Fatalf("ext = %+v", ext)
	}

	if _, err := ParseOrgExtension(TLV{Type: TLVOrganizationExtension, Value: []byte{1, 2, 3}}); !errors.Is(err, ErrFieldOutOfBounds) {
		t.Fatalf("short org ext err = %v, want ErrFieldOutOfBounds", err)
	}
}

func TestPortAddressRoundTrip(t *testing.T) {
	a := PortAddress{Protocol: ProtocolUDPIPv4, Address: []byte{192, 168, 1, 20}}
	buf := make([]byte, 16)
	n, err := PackPortAddress(buf, a)
	if err != nil {
		t.Fatalf("PackPortAddress: %v", err)
	}
	got, consumed, err := UnpackPortAddress(buf[:n])
	if err != nil {
		t.Fatalf("UnpackPortAddress: %v", err)
	}
	if consumed != n || got.Protocol != a.Protocol || !bytes.Equal(got.Address, a.Address) {
		t.Fatalf("got %+v consumed %d", got, consumed)
	}
}

func TestPortAddressDeclaredLengthOverrun(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(ProtocolUDPIPv6))
	binary.BigEndian.PutUint16(buf[2:4], 16) // only 4 bytes actually follow
	got, consumed, err := UnpackPortAddress(buf)
	if !errors.Is(err, ErrFieldOutOfBounds) {
		t.Fatalf("err = %v, want ErrFieldOutOfBounds", err)
	}
	if consumed != 0 {
		t.Fatalf("consumed = %d, want 0", consumed)
	}
	if got.Protocol != 0 || got.Address != nil {
		t.Fatalf("partial decode leaked state: %+v", got)
	}
}

func TestManagementTLVRoundTrip(t *testing.T) {
	h := testHeader(MsgManagement)
	buf := make([]byte, 128)
	n, err := PackManagement(buf, &h, &Management{ActionField: ActionResponse})
	if err != nil {
		t.Fatalf("PackManagement: %v", err)
	}
	n, err = AppendManagementTLV(buf, n, MMPriority1, []byte{128, 0})
	if err != nil {
		t.Fatalf("AppendManagementTLV: %v", err)
	}
	tlvs, err := ScanTLVs(buf[:n], ManagementLength)
	if err != nil || len(tlvs) != 1 {
		t.Fatalf("ScanTLVs = %v, %v", tlvs, err)
	}
	m, err := ParseManagementTLV(tlvs[0])
	if err != nil {
		t.Fatalf("ParseManagementTLV: %v", err)
	}
	if m.ID != MMPriority1 || !bytes.Equal(m.Data, []byte{128, 0}) {
		t.Fatalf("management tlv = %+v", m)
	}
}

func TestManagementErrorStatusTLV(t *testing.T) {
	h := testHeader(MsgManagement)
	buf := make([]byte, 128)
	n, err := PackManagement(buf, &h, &Management{ActionField: ActionResponse})
	if err != nil {
		t.Fatalf("PackManagement: %v", err)
	}
	n, err = AppendManagementErrorStatusTLV(buf, n, MgmtErrNotSupported, MMEnablePort)
	if err != nil {
		t.Fatalf("AppendManagementErrorStatusTLV: %v", err)
	}
	tlvs, err := ScanTLVs(buf[:n], ManagementLength)
	if err != nil || len(tlvs) != 1 || tlvs[0].Type != TLVManagementErrorStatus {
		t.Fatalf("ScanTLVs = %v, %v", tlvs, err)
	}
	errID, id, err := ParseManagementErrorStatus(tlvs[0])
	if err != nil {
		t.Fatalf("ParseManagementErrorStatus: %v", err)
	}
	if errID != MgmtErrNotSupported || id != MMEnablePort {
		t.Fatalf("error status = %v %v", errID, id)
	}
}

func TestCommunicationCapabilitiesTLV(t *testing.T) {
	h := testHeader(MsgAnnounce)
	buf := make([]byte, 128)
	n, err := PackAnnounce(buf, &h, &Announce{})
	if err != nil {
		t.Fatalf("PackAnnounce: %v", err)
	}
	caps := CommunicationCapabilities{
		SyncCapabilities:      CommMulticastCapable,
		DelayRespCapabilities: CommMulticastCapable | CommUnicastCapable,
	}
	n, err = AppendCommunicationCapabilitiesTLV(buf, n, caps)
	if err != nil {
		t.Fatalf("AppendCommunicationCapabilitiesTLV: %v", err)
	}
	tlvs, err := ScanTLVs(buf[:n], AnnounceLength)
	if err != nil || len(tlvs) != 1 {
		t.Fatalf("ScanTLVs = %v, %v", tlvs, err)
	}
	got, err := UnpackCommunicationCapabilities(tlvs[0].Value)
	if err != nil {
		t.Fatalf("UnpackCommunicationCapabilities: %v", err)
	}
	if got != caps {
		t.Fatalf("caps = %+v, want %+v", got, caps)
	}
}
