package acl

import (
	"net/netip"
	"testing"
)

func TestNilAndEmptyListsPermit(t *testing.T) {
	var l *List
	if !l.Permits(netip.MustParseAddr("10.0.0.1")) {
		t.Fatal("nil list should permit")
	}
	empty, err := New(nil, nil, PermitDeny)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !empty.Permits(netip.MustParseAddr("10.0.0.1")) {
		t.Fatal("empty list should permit")
	}
}

func TestPermitDenyOrder(t *testing.T) {
	l, err := New([]string{"192.168.0.0/16"}, []string{"192.168.5.0/24"}, PermitDeny)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		addr string
		want bool
	}{
		{"192.168.1.1", true},
		{"192.168.5.9", false}, // denied override
		{"10.0.0.1", false},    // not permitted
	}
	for _, tc := range tests {
		t.Run(tc.addr, func(t *testing.T) {
			if got := l.Permits(netip.MustParseAddr(tc.addr)); got != tc.want {
				t.Fatalf("Permits(%s) = %v, want %v", tc.addr, got, tc.want)
			}
		})
	}
}

func TestDenyPermitOrder(t *testing.T) {
	l, err := New([]string{"172.16.1.10"}, []string{"172.16.0.0/12"}, DenyPermit)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Permits(netip.MustParseAddr("172.16.1.10")) {
		t.Fatal("permit entry should re-admit a denied host")
	}
	if l.Permits(netip.MustParseAddr("172.16.1.11")) {
		t.Fatal("denied range admitted")
	}
	if !l.Permits(netip.MustParseAddr("8.8.8.8")) {
		t.Fatal("unlisted address should pass a deny-permit list")
	}
}

func TestBareAddressIsHostPrefix(t *testing.T) {
	l, err := New([]string{"10.1.2.3"}, nil, PermitDeny)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Permits(netip.MustParseAddr("10.1.2.3")) {
		t.Fatal("host entry should match itself")
	}
	if l.Permits(netip.MustParseAddr("10.1.2.4")) {
		t.Fatal("host entry matched a different address")
	}
}

func TestInvalidSpecRejected(t *testing.T) {
	if _, err := New([]string{"not-an-address"}, nil, PermitDeny); err == nil {
		t.Fatal("expected an error for an invalid prefix")
	}
}

func TestIPv4MappedAddressesMatch(t *testing.T) {
	l, err := New([]string{"192.0.2.0/24"}, nil, PermitDeny)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mapped := netip.AddrFrom16(netip.MustParseAddr("192.0.2.7").As16())
	if !l.Permits(mapped) {
		t.Fatal("ipv4-mapped address should match its ipv4 prefix")
	}
}
