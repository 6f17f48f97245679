package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"telemetry-rudp-go/source/config"
	"telemetry-rudp-go/source/transport"
	"telemetry-rudp-go/source/wire"
)

func testConfig() config.Config {
	return config.Config{
		WindowSize:                  4,
		Timeout:                     30 * time.Millisecond,
		RetransmissionStopThreshold: 120 * time.Millisecond,
	}
}

// newLoopbackPair returns a peer socket bound to an ephemeral port and a
// Sender dialed at that port, for tests that play the role of the
// server by hand.
func newLoopbackPair(t *testing.T, cfg config.Config) (*transport.Socket, *Sender) {
	t.Helper()
	peer, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	s, err := New(mustDial(t, peer), cfg)
	require.NoError(t, err)
	return peer, s
}

func mustDial(t *testing.T, peer *transport.Socket) *transport.Socket {
	t.Helper()
	sock, err := transport.Dial(peerLocalAddr(t, peer))
	require.NoError(t, err)
	return sock
}

func peerLocalAddr(t *testing.T, peer *transport.Socket) string {
	t.Helper()
	// The address the peer socket is bound to, for the Sender to dial.
	return peer.LocalAddr().String()
}

func recvPacket(t *testing.T, sock *transport.Socket, timeout time.Duration) wire.Packet {
	t.Helper()
	buf := make([]byte, transport.MaxDatagramSize)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := sock.Receive(buf)
		if err == transport.ErrWouldBlock {
			continue
		}
		require.NoError(t, err)
		pkt, err := wire.Decode(buf[:n])
		require.NoError(t, err)
		return pkt
	}
	t.Fatalf("timed out waiting for packet")
	return wire.Packet{}
}

func TestSendAndAckFreesWindowSlot(t *testing.T) {
	cfg := testConfig()
	peer, s := newLoopbackPair(t, cfg)
	defer s.Close(context.Background())

	require.NoError(t, s.Send([]byte("A"), wire.ChannelReliable))
	pkt := recvPacket(t, peer, time.Second)
	require.Equal(t, wire.ChannelReliable, pkt.Channel)
	require.Equal(t, "A", string(pkt.Payload))

	ack := wire.NewAck(pkt.SeqNum, uint64(time.Now().UnixMilli()))
	require.NoError(t, peer.Send(ack.Encode()))

	// Sending 4 more (= window size) should all be admitted promptly
	// now that the first was ACKed.
	for i := 0; i < cfg.WindowSize; i++ {
		require.NoError(t, s.Send([]byte("x"), wire.ChannelReliable))
	}
	for i := 0; i < cfg.WindowSize; i++ {
		recvPacket(t, peer, time.Second)
	}
}

func TestRetransmitsOnTimeout(t *testing.T) {
	cfg := testConfig()
	peer, s := newLoopbackPair(t, cfg)
	defer s.Close(context.Background())

	require.NoError(t, s.Send([]byte("A"), wire.ChannelReliable))
	first := recvPacket(t, peer, time.Second)

	// Don't ACK; expect a retransmit with the identical sequence number
	// and payload within a couple of timeout periods.
	second := recvPacket(t, peer, cfg.Timeout*4)
	require.Equal(t, first.SeqNum, second.SeqNum)
	require.Equal(t, first.Payload, second.Payload)
}

func TestResendCapDropsEntry(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 1 // the lost entry fills the whole window
	peer, s := newLoopbackPair(t, cfg)
	defer s.Close(context.Background())

	require.NoError(t, s.Send([]byte("lost"), wire.ChannelReliable))

	maxResends := cfg.MaxResends()
	// Drain the original send plus every resend, never ACKing.
	for i := 0; i < maxResends+1; i++ {
		recvPacket(t, peer, time.Second)
	}

	// The window slot must now be free: a fresh send should go out
	// immediately rather than queueing behind a full window.
	require.NoError(t, s.Send([]byte("next"), wire.ChannelReliable))
	recvPacket(t, peer, time.Second)
}

func TestWindowBoundsOutstandingEntries(t *testing.T) {
	cfg := testConfig()
	peer, s := newLoopbackPair(t, cfg)
	defer s.Close(context.Background())

	for i := 0; i < cfg.WindowSize+2; i++ {
		require.NoError(t, s.Send([]byte("x"), wire.ChannelReliable))
	}

	// Count distinct sequence numbers (retransmissions reuse theirs) and
	// stop before the first entry can hit its resend cap and be dropped,
	// which would legitimately let a queued packet into the window.
	seen := make(map[uint16]struct{})
	deadline := time.Now().Add(cfg.Timeout * time.Duration(cfg.MaxResends()))
	buf := make([]byte, transport.MaxDatagramSize)
	for time.Now().Before(deadline) {
		n, err := peer.Receive(buf)
		if err == transport.ErrWouldBlock {
			continue
		}
		require.NoError(t, err)
		pkt, err := wire.Decode(buf[:n])
		require.NoError(t, err)
		seen[pkt.SeqNum] = struct{}{}
	}
	require.LessOrEqual(t, len(seen), cfg.WindowSize)
}

func TestCloseSendsSessionSummaryAndWaitsForAck(t *testing.T) {
	cfg := testConfig()
	peer, s := newLoopbackPair(t, cfg)

	require.NoError(t, s.Send([]byte("A"), wire.ChannelUnreliable))
	recvPacket(t, peer, time.Second)

	done := make(chan error, 1)
	go func() { done <- s.Close(context.Background()) }()

	summaryPkt := recvPacket(t, peer, time.Second)
	require.Equal(t, wire.ChannelSessionSummary, summaryPkt.Channel)
	require.Contains(t, string(summaryPkt.Payload), "SESSION_END")

	ssack := wire.NewSessionSummaryAck(uint64(time.Now().UnixMilli()))
	require.NoError(t, peer.Send(ssack.Encode()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after SSACK")
	}
}

func TestCloseWarnsWithoutPanickingWhenUnacked(t *testing.T) {
	cfg := testConfig()
	_, s := newLoopbackPair(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := s.Close(ctx)
	require.Error(t, err) // unacknowledged summary is reported, not a panic
}
