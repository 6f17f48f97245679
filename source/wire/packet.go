// Package wire implements the on-wire packet format shared by the
// unreliable channel, the reliable channel and the session-summary
// exchange. It is pure and stateless: nothing here owns a socket, a
// timer or a sequence counter.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Channel identifies how a packet's payload should be handled by the
// receiving peer.
type Channel byte

const (
	// ChannelUnreliable carries application payloads with no
	// retransmission, ordering or duplicate suppression.
	ChannelUnreliable Channel = 0
	// ChannelReliable carries Selective-Repeat data in the
	// client->server direction and ACKs in the server->client
	// direction, distinguished by payload emptiness (see Packet.IsAck).
	ChannelReliable Channel = 1
	// ChannelSessionSummary carries the JSON session-summary report in
	// the client->server direction and the SSACK in the reply
	// direction, distinguished the same way as ChannelReliable.
	ChannelSessionSummary Channel = 2
)

func (c Channel) String() string {
	switch c {
	case ChannelUnreliable:
		return "unreliable"
	case ChannelReliable:
		return "reliable"
	case ChannelSessionSummary:
		return "session-summary"
	default:
		return fmt.Sprintf("channel(%d)", byte(c))
	}
}

// timestampWidth is the wire width, in bytes, of the time_stamp field.
// The spec permits 2-8 bytes; this implementation fixes it at the
// reference width (8 bytes, full millisecond-epoch precision) so both
// peers agree without a side channel.
const timestampWidth = 8

// HeaderSize is the fixed header length in bytes:
// channel_type(1) + seq_num(2) + time_stamp(8) + ack_num(2).
const HeaderSize = 1 + 2 + timestampWidth + 2

// ErrMalformedHeader is returned by Decode when the input is shorter
// than HeaderSize.
var ErrMalformedHeader = errors.New("wire: malformed header")

// Packet is the single structured value carried over the datagram
// socket, per spec section 3.
type Packet struct {
	Channel   Channel
	SeqNum    uint16
	TimeStamp uint64 // milliseconds since epoch
	AckNum    uint16
	Payload   []byte
}

// IsAck reports whether a reliable/session-summary-channel packet is
// functioning as an acknowledgement reply (ack_num populated, payload
// empty) rather than as the request/data direction.
func (p Packet) IsAck() bool {
	return len(p.Payload) == 0
}

// Encode serializes p into a freshly allocated byte slice. Encoding is
// truncating, not rejecting: SeqNum and AckNum are already uint16 so
// they cannot overflow their wire width by construction, and TimeStamp
// is a uint64 written whole into its 8-byte field, so no value is ever
// cut — see DESIGN.md for why truncation was chosen over a rejecting
// encoder.
func (p Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = byte(p.Channel)
	binary.BigEndian.PutUint16(buf[1:3], p.SeqNum)
	binary.BigEndian.PutUint64(buf[3:3+timestampWidth], p.TimeStamp)
	ackOff := 3 + timestampWidth
	binary.BigEndian.PutUint16(buf[ackOff:ackOff+2], p.AckNum)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Decode parses a Packet from b. The returned Packet's Payload aliases
// b — callers that retain b beyond the call must copy it first.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: got %d bytes, need at least %d", ErrMalformedHeader, len(b), HeaderSize)
	}
	ackOff := 3 + timestampWidth
	p := Packet{
		Channel:   Channel(b[0]),
		SeqNum:    binary.BigEndian.Uint16(b[1:3]),
		TimeStamp: binary.BigEndian.Uint64(b[3 : 3+timestampWidth]),
		AckNum:    binary.BigEndian.Uint16(b[ackOff : ackOff+2]),
	}
	if len(b) > HeaderSize {
		p.Payload = b[HeaderSize:]
	}
	return p, nil
}

// NewAck builds a reply-direction reliable-channel packet acknowledging
// seq, with an empty payload as spec section 6 requires.
func NewAck(seq uint16, now uint64) Packet {
	return Packet{Channel: ChannelReliable, TimeStamp: now, AckNum: seq}
}

// NewSessionSummaryAck builds the SSACK reply: sequence 0, ack_num 0,
// empty payload, per spec section 4.3.
func NewSessionSummaryAck(now uint64) Packet {
	return Packet{Channel: ChannelSessionSummary, TimeStamp: now}
}
