// Package beacon implements the UDP discovery transport: one-line ASCII
// announcements broadcast to every non-loopback, non-link-local IPv4
// interface's broadcast address, and a blocking receiver for the same.
//
// Grounded on original_source/starling/simpleudp.py's UDPBroadcaster.
// Multi-interface fan-out and SO_BROADCAST/SO_REUSEADDR wiring follow the
// net.Interfaces()-walk and ListenConfig.Control idioms used, respectively,
// by other_examples' zeromq-gyre beacon and the pack's jroosing-HydraDNS
// UDP listener (which sets SO_REUSEPORT the same way).
package beacon

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// bufSize is the fixed receive buffer size, matching the 1024-byte cap on
// beacon datagrams described in SPEC_FULL.md §6.
const bufSize = 1024

// Beacon is a UDP broadcaster/receiver bound to a single well-known port.
// A single *net.UDPConn serves both send and recv; recv has exactly one
// reader per Beacon (the endpoint's receive worker).
type Beacon struct {
	port       int
	conn       *net.UDPConn
	broadcasts []net.IP
}

// New binds a UDP socket to 0.0.0.0:port with SO_BROADCAST and
// SO_REUSEADDR set, and discovers the broadcast address of every
// non-loopback, non-link-local IPv4 interface.
func New(port int) (*Beacon, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
					ctrlErr = err
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("beacon: bind port %d: %w", port, err)
	}

	b := &Beacon{
		port:       port,
		conn:       pc.(*net.UDPConn),
		broadcasts: broadcastAddresses(),
	}
	return b, nil
}

// broadcastAddresses returns the per-interface IPv4 broadcast address for
// every non-loopback, non-link-local interface with an assigned IPv4
// address.
func broadcastAddresses() []net.IP {
	var out []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLinkLocalUnicast() {
				continue
			}
			bcast := make(net.IP, len(ip4))
			mask := ipnet.Mask
			for i := range ip4 {
				bcast[i] = ip4[i] | ^mask[i]
			}
			out = append(out, bcast)
		}
	}
	return out
}

// Send broadcasts message to the beacon port on every discovered
// interface broadcast address. Per-interface send failures are discarded:
// Send returns nothing, so neither it nor its caller reports them —
// spec.md §4.1 requires Send to fail silently per interface.
func (b *Beacon) Send(message string) {
	data := []byte(message)
	for _, addr := range b.broadcasts {
		_, _ = b.conn.WriteToUDP(data, &net.UDPAddr{IP: addr, Port: b.port})
	}
}

// Recv blocks for a single datagram (subject to any deadline set with
// SetReadDeadline) and returns its UTF-8 decoded payload and the sender's
// address. Callers performing cooperative cancellation should call
// SetReadDeadline before each Recv and treat a timeout net.Error as "no
// beacon this cycle, check the running flag and poll again" — this is the
// UDP-side equivalent of the 500ms/1s poll timeouts spec.md §5 requires
// everywhere else.
func (b *Beacon) Recv() (string, *net.UDPAddr, error) {
	buf := make([]byte, bufSize)
	n, addr, err := b.conn.ReadFromUDP(buf)
	if err != nil {
		return "", nil, err
	}
	return string(buf[:n]), addr, nil
}

// SetReadDeadline arms a deadline on the next Recv, giving the caller's
// poll loop a finite-timeout suspension point.
func (b *Beacon) SetReadDeadline(t time.Time) error {
	return b.conn.SetReadDeadline(t)
}

// Conn returns the underlying UDP connection.
func (b *Beacon) Conn() *net.UDPConn {
	return b.conn
}

// Close releases the underlying socket.
func (b *Beacon) Close() error {
	return b.conn.Close()
}
