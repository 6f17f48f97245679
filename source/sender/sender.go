// Package sender implements the client-side reliable-channel pipeline
// of spec section 4.2: an admission queue, a windowed dispatcher with
// per-entry retransmit timers and a resend-count cap, and an ACK
// reader that frees window slots and raises the session-summary-acked
// flag. It is the client's sole view of the wire.
//
// The state machine is grounded on the teacher's Session type
// (source/protocol/raknet.go): one mutex guarding a send queue, a
// recovery/retransmission map and a sequence counter, with timer
// callbacks re-acquiring the lock — generalized here from RakNet's
// NACK-driven resend to this protocol's sender-timer-driven,
// bounded-effort Selective Repeat (spec section 4.2/9).
package sender

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"telemetry-rudp-go/pkg/logger"
	"telemetry-rudp-go/source/config"
	"telemetry-rudp-go/source/summary"
	"telemetry-rudp-go/source/transport"
	"telemetry-rudp-go/source/wire"
)

var log = logger.For("sender")

type queueItem struct {
	payload []byte
	channel wire.Channel
}

type windowEntry struct {
	seq         uint16
	packetBytes []byte
	resendCount int
	timer       *time.Timer
}

// Sender owns the client's admission queue, send window and sequence
// counter. Construct with New; call Send to enqueue payloads and Close
// to run the session-summary closing protocol and release resources.
type Sender struct {
	socket *transport.Socket
	cfg    config.Config

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queueItem
	window map[uint16]*windowEntry
	seq    uint16
	closed bool

	totalReliableSent   int
	totalUnreliableSent int

	summaryAckCh   chan struct{}
	summaryAckOnce sync.Once

	wg sync.WaitGroup
}

// ErrClosed is returned by Send once the sender has been closed.
var ErrClosed = fmt.Errorf("sender: closed")

// New constructs a Sender bound to socket and starts its dispatcher and
// ACK-reader background loops.
func New(socket *transport.Socket, cfg config.Config) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sender{
		socket:       socket,
		cfg:          cfg,
		window:       make(map[uint16]*windowEntry),
		seq:          uint16(1 + rand.IntN(wire.SeqSpace)), // spec 4.2: seed in [1, 2^16]
		summaryAckCh: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(2)
	go s.runDispatcher()
	go s.runAckReader()
	return s, nil
}

// Send enqueues payload for admission and returns immediately; delivery
// on the reliable channel is not guaranteed (spec section 4.2).
func (s *Sender) Send(payload []byte, channel wire.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.queue = append(s.queue, queueItem{payload: payload, channel: channel})
	s.cond.Broadcast()
	return nil
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// runDispatcher waits for "queue non-empty AND window not full" (spec
// section 5), then admits the head of the queue: reliable packets get a
// fresh sequence number, a window entry and an armed retransmit timer;
// unreliable and session-summary packets bypass the window and are
// transmitted immediately.
func (s *Sender) runDispatcher() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for !s.closed && !(len(s.queue) > 0 && len(s.window) < s.cfg.WindowSize) {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.dispatchLocked(item)
		s.mu.Unlock()
	}
}

// dispatchLocked must be called with s.mu held.
func (s *Sender) dispatchLocked(item queueItem) {
	if item.channel != wire.ChannelReliable {
		pkt := wire.Packet{Channel: item.channel, TimeStamp: nowMillis(), Payload: item.payload}
		if err := s.socket.Send(pkt.Encode()); err != nil {
			log.WithError(err).Error("send failed")
			return
		}
		if item.channel == wire.ChannelUnreliable {
			s.totalUnreliableSent++
		}
		return
	}

	seq := s.seq
	s.seq = wire.Next(s.seq)
	pkt := wire.Packet{Channel: wire.ChannelReliable, SeqNum: seq, TimeStamp: nowMillis(), Payload: item.payload}
	encoded := pkt.Encode()

	entry := &windowEntry{seq: seq, packetBytes: encoded}
	s.window[seq] = entry
	entry.timer = time.AfterFunc(s.cfg.Timeout, func() { s.onTimer(seq) })
	s.totalReliableSent++

	if err := s.socket.Send(encoded); err != nil {
		log.WithError(err).WithField("seq", seq).Error("send failed")
	}
}

// onTimer resends an entry at most RETRANSMISSION_STOP_THRESHOLD/TIMEOUT
// times (cfg.MaxResends); the timer firing after the last resend drops
// the entry and frees its window slot (spec section 4.2).
func (s *Sender) onTimer(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.window[seq]
	if !ok {
		return // ACKed or closed already
	}
	if entry.resendCount >= s.cfg.MaxResends() {
		delete(s.window, seq)
		log.WithField("seq", seq).Warn("resend cap reached, dropping packet")
		s.cond.Broadcast() // window slot freed
		return
	}
	entry.resendCount++
	if err := s.socket.Send(entry.packetBytes); err != nil {
		log.WithError(err).WithField("seq", seq).Error("resend failed")
	}
	entry.timer = time.AfterFunc(s.cfg.Timeout, func() { s.onTimer(seq) })
}

// runAckReader reads datagrams on the client socket, freeing window
// slots on reliable ACKs and raising the session-summary-acked signal
// on SSACKs. Other channels arriving here are ignored (spec 4.2).
func (s *Sender) runAckReader() {
	defer s.wg.Done()
	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, err := s.socket.Receive(buf)
		if err != nil {
			if err == transport.ErrWouldBlock {
				if s.isClosed() {
					return
				}
				continue
			}
			if s.isClosed() {
				return
			}
			log.WithError(err).Warn("ack read failed")
			continue
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			log.WithError(err).Warn("malformed datagram on client socket")
			continue
		}

		switch pkt.Channel {
		case wire.ChannelReliable:
			s.mu.Lock()
			if entry, ok := s.window[pkt.AckNum]; ok {
				entry.timer.Stop()
				delete(s.window, pkt.AckNum)
				s.cond.Broadcast()
			}
			s.mu.Unlock()
		case wire.ChannelSessionSummary:
			s.summaryAckOnce.Do(func() { close(s.summaryAckCh) })
		default:
			// unreliable channel never arrives here; ignored if it does.
		}
	}
}

func (s *Sender) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close runs the session-summary closing protocol (spec section 4.2):
// send a SESSION_END report, wait up to TIMEOUT for the SSACK, retry up
// to three times total, then tear down the dispatcher, ACK reader,
// outstanding timers and socket regardless of whether the summary was
// acknowledged. A missing ACK is logged as a warning and included in
// the returned error, but never stops the teardown.
func (s *Sender) Close(ctx context.Context) error {
	s.mu.Lock()
	reliableSent, unreliableSent := s.totalReliableSent, s.totalUnreliableSent
	s.mu.Unlock()

	report := summary.NewReport(reliableSent, unreliableSent)
	payload, err := report.Encode()

	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("sender: close: %w", err))
	} else {
		acked := false
		for attempt := 0; attempt < 3 && !acked; attempt++ {
			pkt := wire.Packet{Channel: wire.ChannelSessionSummary, TimeStamp: nowMillis(), Payload: payload}
			if sendErr := s.socket.Send(pkt.Encode()); sendErr != nil {
				result = multierror.Append(result, fmt.Errorf("sender: close: send session summary: %w", sendErr))
				break
			}
			select {
			case <-s.summaryAckCh:
				acked = true
			case <-time.After(s.cfg.Timeout):
			case <-ctx.Done():
				result = multierror.Append(result, ctx.Err())
				acked = true // stop retrying, context is gone
			}
		}
		if !acked {
			log.Warn("session summary not acknowledged after 3 attempts")
			result = multierror.Append(result, fmt.Errorf("sender: session summary not acknowledged"))
		}
	}

	s.mu.Lock()
	s.closed = true
	for seq, entry := range s.window {
		entry.timer.Stop()
		delete(s.window, seq)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if closeErr := s.socket.Close(); closeErr != nil {
		result = multierror.Append(result, closeErr)
	}
	s.wg.Wait()

	return result.ErrorOrNil()
}
