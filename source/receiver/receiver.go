// Package receiver implements the server-side reliable-channel
// pipeline of spec section 4.3: datagram classification (duplicate /
// in-window / out-of-window / unreliable / session-summary), an
// out-of-order reassembly buffer bounded by the receive window,
// gap-timeout skipping and in-order delivery to a callback.
//
// The receive-and-deliver loop is single-owner per spec section 5: it
// is the only goroutine that touches Server's cursor, buffer and
// gap-wait state, so none of that state needs a lock — generalized
// from the teacher's single-mutex Session (source/protocol/raknet.go)
// by removing the mutex entirely, since here there is exactly one
// reader/writer instead of several goroutines sharing one peer.
package receiver

import (
	"context"
	"fmt"
	"time"

	"telemetry-rudp-go/pkg/logger"
	"telemetry-rudp-go/source/config"
	"telemetry-rudp-go/source/metrics"
	"telemetry-rudp-go/source/summary"
	"telemetry-rudp-go/source/transport"
	"telemetry-rudp-go/source/wire"
)

var log = logger.For("receiver")

// DeliveryFunc is invoked once per delivered payload — reliable
// (in ascending sequence order modulo gap skips) or unreliable (in
// arrival order) — per spec section 4.3's public contract. Session
// summary packets are never delivered here.
type DeliveryFunc func(pkt wire.Packet, latencyMs float64)

// bufferedPacket is the receive buffer's entry: spec section 3's
// "packet plus the latency computed at arrival".
type bufferedPacket struct {
	seq       uint16
	timeStamp uint64
	payload   []byte
	latencyMs float64
}

// Server owns the receive-and-deliver loop and all reliable-channel
// reassembly state for a single learned peer (spec section 1's
// single-client-server non-goal).
type Server struct {
	socket    *transport.Socket
	cfg       config.Config
	recorder  *metrics.Recorder
	onDeliver DeliveryFunc

	expected     uint16
	haveExpected bool
	buffer       map[uint16]bufferedPacket

	waitingArmed  bool
	waitingForSeq uint16
	waitingSince  time.Time
}

// New constructs a Server. recorder and onDeliver must be non-nil.
func New(socket *transport.Socket, cfg config.Config, recorder *metrics.Recorder, onDeliver DeliveryFunc) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		return nil, fmt.Errorf("receiver: recorder is required")
	}
	if onDeliver == nil {
		return nil, fmt.Errorf("receiver: onDeliver callback is required")
	}
	return &Server{
		socket:    socket,
		cfg:       cfg,
		recorder:  recorder,
		onDeliver: onDeliver,
		buffer:    make(map[uint16]bufferedPacket),
	}, nil
}

// Run drives the receive-and-deliver loop until ctx is cancelled: poll
// the non-blocking socket, classify and handle any arrival, then check
// the gap timeout — once per iteration, per spec section 5.
func (s *Server) Run(ctx context.Context) error {
	buf := make([]byte, transport.MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := s.socket.Receive(buf)
		switch {
		case err == nil:
			s.handleDatagram(buf[:n])
		case err == transport.ErrWouldBlock:
			// expected idle case, fall through to the gap-timeout check
		default:
			log.WithError(err).Warn("receive failed")
		}

		s.checkGapTimeout()
	}
}

func (s *Server) handleDatagram(b []byte) {
	pkt, err := wire.Decode(b)
	if err != nil {
		log.WithError(err).Warn("malformed header, dropping datagram")
		return
	}
	now := time.Now()
	switch pkt.Channel {
	case wire.ChannelUnreliable:
		s.handleUnreliable(pkt, len(b), now)
	case wire.ChannelReliable:
		s.handleReliable(pkt, len(b), now)
	case wire.ChannelSessionSummary:
		s.handleSessionSummary(pkt)
	default:
		log.WithField("channel", byte(pkt.Channel)).Warn("unknown channel, dropping datagram")
	}
}

func latencyMs(now time.Time, sentAtMillis uint64) float64 {
	return float64(now.UnixMilli() - int64(sentAtMillis))
}

// handleUnreliable delivers directly with no ACK, ordering or
// duplicate suppression (spec section 4.3's unreliable-channel rule).
func (s *Server) handleUnreliable(pkt wire.Packet, bytes int, now time.Time) {
	lat := latencyMs(now, pkt.TimeStamp)
	s.recorder.RecordReceived(wire.ChannelUnreliable, bytes, lat, now)
	s.onDeliver(pkt, lat)
}

// handleSessionSummary decodes the closing report, learns the sent
// totals and replies with exactly one SSACK per well-formed summary
// (spec section 4.3/4.4); malformed JSON is logged, not ACKed.
func (s *Server) handleSessionSummary(pkt wire.Packet) {
	report, err := summary.Decode(pkt.Payload)
	if err != nil {
		log.WithError(err).Warn("malformed session summary, not acking")
		return
	}
	s.recorder.SetSentTotals(report.TotalReliableSent, report.TotalUnreliableSent)
	ack := wire.NewSessionSummaryAck(uint64(time.Now().UnixMilli()))
	if err := s.socket.Send(ack.Encode()); err != nil {
		log.WithError(err).Warn("failed to send session-summary ack")
	}
}

func (s *Server) ack(seq uint16) {
	ack := wire.NewAck(seq, uint64(time.Now().UnixMilli()))
	if err := s.socket.Send(ack.Encode()); err != nil {
		log.WithError(err).WithField("seq", seq).Warn("failed to send ack")
	}
}

// handleReliable implements spec section 4.3's six-step classification
// of an arriving reliable sequence against the delivery cursor.
func (s *Server) handleReliable(pkt wire.Packet, bytes int, now time.Time) {
	seq := pkt.SeqNum
	if !s.haveExpected {
		s.expected = seq
		s.haveExpected = true
	}

	lat := latencyMs(now, pkt.TimeStamp)
	s.recorder.RecordReceived(wire.ChannelReliable, bytes, lat, now)

	e := s.expected

	// Step 3: already delivered (behind the window) — re-ACK, no
	// re-delivery. Lets the sender unwedge a lost ACK statelessly.
	if wire.AlreadyDelivered(seq, e) {
		s.recorder.RecordDuplicate(wire.ChannelReliable)
		s.ack(seq)
		return
	}

	if wire.InWindow(seq, e, s.cfg.WindowSize) {
		if _, buffered := s.buffer[seq]; buffered {
			// Step 5: in window, already buffered — duplicate, re-ACK,
			// don't overwrite.
			s.recorder.RecordDuplicate(wire.ChannelReliable)
			s.ack(seq)
			return
		}

		// Step 4: in window, new — buffer it, ACK it, drain.
		// pkt.Payload aliases Run's read buffer, so keep a copy.
		payload := append([]byte(nil), pkt.Payload...)
		s.buffer[seq] = bufferedPacket{seq: seq, timeStamp: pkt.TimeStamp, payload: payload, latencyMs: lat}
		s.recorder.RecordSuccess(wire.ChannelReliable)
		if seq != e {
			s.recorder.RecordOutOfOrder(wire.ChannelReliable)
			s.armGapWait(e)
		}
		s.ack(seq)
		s.drain()
		return
	}

	// Step 6: out of window — silent drop, no ACK.
	log.WithField("seq", seq).WithField("expected", e).Debug("out of window, dropping")
}

// armGapWait arms the gap-wait timer against e if it isn't already
// armed against that same cursor value.
func (s *Server) armGapWait(e uint16) {
	if s.waitingArmed && s.waitingForSeq == e {
		return
	}
	s.waitingArmed = true
	s.waitingForSeq = e
	s.waitingSince = time.Now()
}

func (s *Server) clearGapWait() {
	s.waitingArmed = false
}

// drain removes s.expected from the buffer for as long as it's
// present, delivering each payload in order and advancing the cursor
// (spec section 4.3's in-order drain). The callback runs inline here,
// so every contiguous buffered packet is delivered within the loop
// iteration that made it deliverable; there is no separate output
// buffer and no limit of one delivery per loop iteration.
func (s *Server) drain() {
	for {
		bp, ok := s.buffer[s.expected]
		if !ok {
			return
		}
		delete(s.buffer, s.expected)
		pkt := wire.Packet{Channel: wire.ChannelReliable, SeqNum: bp.seq, TimeStamp: bp.timeStamp, Payload: bp.payload}
		s.onDeliver(pkt, bp.latencyMs)
		if s.waitingArmed && s.waitingForSeq == bp.seq {
			s.clearGapWait()
		}
		s.expected = wire.Next(s.expected)
	}
}

// checkGapTimeout implements spec section 4.3's gap-timeout skip. The
// threshold is RETRANSMISSION_STOP_THRESHOLD, not TIMEOUT — spec
// section 9 resolves the draft inconsistency in favor of aligning with
// the sender's give-up deadline. The skip target is the modular
// closest-ahead buffered sequence (section 9), not the numerically
// minimum key.
func (s *Server) checkGapTimeout() {
	if !s.waitingArmed {
		return
	}
	if s.waitingForSeq != s.expected {
		// The cursor already moved past what we were waiting on via
		// some other path; the wait is stale.
		s.clearGapWait()
		return
	}
	if time.Since(s.waitingSince) < s.cfg.RetransmissionStopThreshold {
		return
	}

	candidates := make([]uint16, 0, len(s.buffer))
	for seq := range s.buffer {
		candidates = append(candidates, seq)
	}
	skip, ok := wire.ClosestAhead(s.expected, candidates)
	if !ok {
		s.clearGapWait()
		return
	}

	s.recorder.RecordTimeout(wire.ChannelReliable)
	log.WithField("from", s.expected).WithField("to", skip).Warn("gap timeout, skipping missing sequence")
	s.expected = skip
	s.clearGapWait()
	s.drain()
}
