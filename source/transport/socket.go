// Package transport wraps a *net.UDPConn with the non-blocking,
// would-block-tolerant read/write contract spec section 5/7 requires,
// generalized from the teacher's ListenUDP + ReadFromUDP loop
// (source/server/server.go in the teacher tree) into a single-socket,
// single-peer abstraction shared by both the sender and receiver
// pipelines.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// MaxDatagramSize is the server's receive-path buffer size; datagrams
// larger than this are truncated per spec section 6.
const MaxDatagramSize = 1024

// pollInterval bounds how long a single Receive call blocks before
// reporting ErrWouldBlock, letting the caller's loop re-check its own
// shutdown/timer conditions between polls.
const pollInterval = 1 * time.Millisecond

// ErrWouldBlock is returned by Receive when no datagram arrived within
// the poll interval — the non-blocking-socket analogue of EWOULDBLOCK,
// always safe to retry (spec section 7).
var ErrWouldBlock = errors.New("transport: would block")

// Socket is a UDP endpoint bound to a single remote peer. The peer for
// the client side is set at construction; on both sides the peer is
// then replaced by the source of every successfully received datagram,
// which is how the server side learns its peer (spec section 4.3).
type Socket struct {
	conn *net.UDPConn

	mu   sync.RWMutex
	peer *net.UDPAddr
}

// Listen binds a UDP socket on localAddr ("host:port"). Pass "" to bind
// an ephemeral client-side port.
func Listen(localAddr string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", localAddr, err)
	}
	return &Socket{conn: conn}, nil
}

// Dial binds a UDP socket and sets its peer to remoteAddr ("host:port")
// — the client side's usage, since the client always talks to one
// known server.
func Dial(remoteAddr string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", remoteAddr, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("transport: listen ephemeral: %w", err)
	}
	return &Socket{conn: conn, peer: addr}, nil
}

// Peer returns the currently known remote peer address, or nil if none
// has been learned yet (server side, before the first datagram).
func (s *Socket) Peer() *net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer
}

// LocalAddr returns the address the underlying socket is bound to.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Send writes b to the known peer. A socket send failure is fatal to
// the operation per spec section 4.2/7 and is returned as-is (wrapped)
// for the caller to propagate.
func (s *Socket) Send(b []byte) error {
	peer := s.Peer()
	if peer == nil {
		return fmt.Errorf("transport: send: no peer known yet")
	}
	if _, err := s.conn.WriteToUDP(b, peer); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Receive polls for a single datagram, blocking for at most
// pollInterval. It returns ErrWouldBlock on a read timeout (the
// expected, silently-retried case in spec section 7), or a non-nil
// error for any other read failure. On success it learns/updates the
// peer address from the datagram's source.
func (s *Socket) Receive(buf []byte) (n int, err error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, fmt.Errorf("transport: set read deadline: %w", err)
	}
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("transport: receive: %w", err)
	}
	s.mu.Lock()
	s.peer = addr
	s.mu.Unlock()
	return n, nil
}

// Close closes the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
