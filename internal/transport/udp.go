// Package transport provides the UDP/IPv4 multicast transport for PTP:
// the event socket on port 319 and the general socket on port 320, with
// the group membership and TTL handling a port engine expects.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/ipv4"

	"example.com/ptpport/internal/common"
)

const (
	// EventPort carries the timestamped message classes.
	EventPort = 319
	// GeneralPort carries everything else.
	GeneralPort = 320

	maxDatagram = 1500
)

// DefaultGroup is the IPv4 primary PTP multicast group.
var DefaultGroup = netip.MustParseAddr("224.0.1.129")

// ErrClosed is returned by sends after Close.
var ErrClosed = errors.New("transport is closed")

// Packet is one received datagram with its software receive timestamp.
type Packet struct {
	Buf       []byte
	Src       netip.AddrPort
	Recv      time.Time
	RecvValid bool
	Event     bool
}

// Config selects the interface and group for one transport instance.
type Config struct {
	Interface string
	Group     netip.Addr
	TTL       int
}

func (c *Config) applyDefaults() {
	if !c.Group.IsValid() {
		c.Group = DefaultGroup
	}
	if c.TTL <= 0 {
		c.TTL = 64
	}
}

// UDP is a pair of multicast UDP sockets bound to one interface.
type UDP struct {
	ifi     *net.Interface
	group   netip.Addr
	event   *net.UDPConn
	general *net.UDPConn
	eventP  *ipv4.PacketConn
	genP    *ipv4.PacketConn

	packets chan Packet
	done    chan struct{}
	closed  bool
}

// New opens the event and general sockets, joins the multicast group on
// the named interface and enables loopback so our own transmissions
// come back with a usable software timestamp.
func New(cfg Config) (*UDP, error) {
	cfg.applyDefaults()

	ifi, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", cfg.Interface, err)
	}

	u := &UDP{
		ifi:     ifi,
		group:   cfg.Group,
		packets: make(chan Packet, 64),
		done:    make(chan struct{}),
	}

	u.event, u.eventP, err = openSocket(ifi, cfg.Group, EventPort, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("event socket: %w", err)
	}
	u.general, u.genP, err = openSocket(ifi, cfg.Group, GeneralPort, cfg.TTL)
	if err != nil {
		u.event.Close()
		return nil, fmt.Errorf("general socket: %w", err)
	}

	go u.receiveLoop(u.event, true)
	go u.receiveLoop(u.general, false)
	return u, nil
}

func openSocket(ifi *net.Interface, group netip.Addr, port, ttl int) (*net.UDPConn, *ipv4.PacketConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, nil, err
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group.AsSlice()}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("join %s: %w", group, err)
	}
	if err := p.SetMulticastInterface(ifi); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := p.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, nil, err
	}
	// the looped-back copy of our own multicast is how transmit
	// timestamps reach the engine
	if err := p.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, p, nil
}

// Packets delivers received datagrams.
func (u *UDP) Packets() <-chan Packet { return u.packets }

// Interface returns the bound interface name.
func (u *UDP) Interface() string { return u.ifi.Name }

func (u *UDP) receiveLoop(conn *net.UDPConn, event bool) {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		recv := time.Now()
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			common.Logf("transport %s: read: %v", u.ifi.Name, err)
			continue
		}
		pkt := Packet{
			Buf:       append([]byte(nil), buf[:n]...),
			Src:       addr,
			Recv:      recv,
			RecvValid: true,
			Event:     event,
		}
		select {
		case u.packets <- pkt:
		case <-u.done:
			return
		}
	}
}

// SendEvent transmits on the event socket. An invalid destination means
// the multicast group.
func (u *UDP) SendEvent(buf []byte, dst netip.AddrPort) error {
	return u.send(u.eventP, buf, dst, EventPort)
}

// SendGeneral transmits on the general socket.
func (u *UDP) SendGeneral(buf []byte, dst netip.AddrPort) error {
	return u.send(u.genP, buf, dst, GeneralPort)
}

func (u *UDP) send(p *ipv4.PacketConn, buf []byte, dst netip.AddrPort, port int) error {
	if u.closed {
		return ErrClosed
	}
	if !dst.IsValid() {
		dst = netip.AddrPortFrom(u.group, uint16(port))
	}
	addr := net.UDPAddrFromAddrPort(dst)
	if _, err := p.WriteTo(buf, nil, addr); err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	return nil
}

// Close shuts both sockets down and stops the receive loops. The
// packets channel stops delivering but stays open; consumers should
// select on their own shutdown signal.
func (u *UDP) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	close(u.done)
	err1 := u.event.Close()
	err2 := u.general.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
