// Package transport provides the unreliable datagram links the ARQ layer runs
// on top of. Nothing here retransmits or reorders; loss is the caller's problem.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/1ureka/rdtcopy/internal/util"
)

// ErrIdle is returned by Receive when no datagram arrived within the wait.
var ErrIdle = errors.New("no datagram within wait")

// Channel is an unreliable datagram link to a single peer.
type Channel interface {
	// Send transmits one datagram. Delivery is not guaranteed.
	Send(datagram []byte) error
	// Receive blocks for at most wait and copies one datagram into buf.
	// It returns ErrIdle when the wait elapses without input.
	Receive(buf []byte, wait time.Duration) (int, error)
	// Close releases the underlying socket.
	Close() error
	// Peer returns the remote endpoint in host:port form.
	Peer() string
}

// UDPChannel is a Channel backed by a connected UDP socket. Each sender
// session owns exactly one; they are never shared.
type UDPChannel struct {
	conn *net.UDPConn
	peer string

	closeOnce sync.Once
	closeErr  error
}

// Dial resolves addr and opens a connected UDP socket to it.
func Dial(addr string) (*UDPChannel, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &UDPChannel{conn: conn, peer: raddr.String()}, nil
}

// Send writes one datagram to the peer.
func (c *UDPChannel) Send(datagram []byte) error {
	n, err := c.conn.Write(datagram)
	if err != nil {
		return err
	}
	util.Stats.AddSent(n)
	return nil
}

// Receive waits up to wait for one datagram from the peer.
func (c *UDPChannel) Receive(buf []byte, wait time.Duration) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, ErrIdle
		}
		// An ICMP port-unreachable from an absent peer is just more loss.
		if errors.Is(err, syscall.ECONNREFUSED) {
			return 0, ErrIdle
		}
		return 0, err
	}
	util.Stats.AddRecv(n)
	return n, nil
}

// Close closes the socket. Safe to call multiple times.
func (c *UDPChannel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// Peer returns the remote address.
func (c *UDPChannel) Peer() string {
	return c.peer
}

// LocalAddr returns the local socket address.
func (c *UDPChannel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Listen binds the shared server socket on the given port (all interfaces).
func Listen(host string, port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP port %d: %w", port, err)
	}
	return conn, nil
}
