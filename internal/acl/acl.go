// Package acl provides the prefix-match access lists gating inbound PTP
// traffic. Timing and management messages are filtered by separate
// lists.
package acl

import (
	"fmt"
	"net/netip"
	"strings"
)

// Order decides how the permit and deny lists combine.
type Order int

const (
	// PermitDeny accepts when the permit list matches and the deny
	// list does not override it.
	PermitDeny Order = iota
	// DenyPermit rejects on a deny match unless the permit list
	// re-admits the address.
	DenyPermit
)

// List is one access list. The zero value permits everything.
type List struct {
	permit []netip.Prefix
	deny   []netip.Prefix
	order  Order
}

// New builds a list from CIDR strings. A bare address is treated as a
// host prefix.
func New(permit, deny []string, order Order) (*List, error) {
	l := &List{order: order}
	var err error
	if l.permit, err = parsePrefixes(permit); err != nil {
		return nil, fmt.Errorf("permit list: %w", err)
	}
	if l.deny, err = parsePrefixes(deny); err != nil {
		return nil, fmt.Errorf("deny list: %w", err)
	}
	return l, nil
}

func parsePrefixes(specs []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, err
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func matches(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// Permits reports whether the address passes the list. An empty list
// permits everything.
func (l *List) Permits(addr netip.Addr) bool {
	if l == nil || (len(l.permit) == 0 && len(l.deny) == 0) {
		return true
	}
	switch l.order {
	case DenyPermit:
		if matches(l.deny, addr) && !matches(l.permit, addr) {
			return false
		}
		return true
	default:
		if !matches(l.permit, addr) {
			return len(l.permit) == 0 && !matches(l.deny, addr)
		}
		return !matches(l.deny, addr)
	}
}
