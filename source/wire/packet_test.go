package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Packet{
		{Channel: ChannelUnreliable, SeqNum: 0, TimeStamp: 0, AckNum: 0, Payload: nil},
		{Channel: ChannelReliable, SeqNum: 65535, TimeStamp: 1732999999999, AckNum: 42, Payload: []byte("hello")},
		{Channel: ChannelSessionSummary, SeqNum: 1, TimeStamp: 7, AckNum: 0, Payload: []byte(`{"type":"SESSION_END"}`)},
	}
	for _, want := range cases {
		got, err := Decode(want.Encode())
		require.NoError(t, err)
		assert.Equal(t, want.Channel, got.Channel)
		assert.Equal(t, want.SeqNum, got.SeqNum)
		assert.Equal(t, want.TimeStamp, got.TimeStamp)
		assert.Equal(t, want.AckNum, got.AckNum)
		if len(want.Payload) == 0 {
			assert.Empty(t, got.Payload)
		} else {
			assert.Equal(t, want.Payload, got.Payload)
		}
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestEncodedLengthAtLeastHeaderSize(t *testing.T) {
	p := Packet{Channel: ChannelUnreliable}
	assert.GreaterOrEqual(t, len(p.Encode()), HeaderSize)
}

func TestIsAck(t *testing.T) {
	ack := NewAck(5, 100)
	assert.True(t, ack.IsAck())

	data := Packet{Channel: ChannelReliable, SeqNum: 5, Payload: []byte("x")}
	assert.False(t, data.IsAck())
}

func TestDistanceAndWindow(t *testing.T) {
	assert.Equal(t, uint16(0), Distance(10, 10))
	assert.Equal(t, uint16(5), Distance(15, 10))
	assert.Equal(t, uint16(SeqSpace-5), Distance(10, 15))

	assert.True(t, InWindow(10, 10, 16))
	assert.True(t, InWindow(25, 10, 16))
	assert.False(t, InWindow(26, 10, 16))

	// Wrap-around: cursor near the top of the space, window extends
	// across the wrap.
	assert.True(t, InWindow(5, SeqSpace-5, 16))
}

func TestAlreadyDelivered(t *testing.T) {
	assert.False(t, AlreadyDelivered(10, 10))
	assert.True(t, AlreadyDelivered(9, 10))
	assert.False(t, AlreadyDelivered(11, 10))

	// Across a wrap: e has just wrapped to 0, s=SeqSpace-1 is "behind".
	assert.True(t, AlreadyDelivered(SeqSpace-1, 0))
}

func TestClosestAheadPicksModularNearest(t *testing.T) {
	// e=65530, candidates include one just behind the wrap (65535) and
	// one just after it (2). The modular-closest-ahead pick must be
	// 65535, not the numerically smaller 2 — this is the bug spec
	// section 9 calls out in the original drafts.
	got, ok := ClosestAhead(65530, []uint16{2, 65535, 100})
	require.True(t, ok)
	assert.Equal(t, uint16(65535), got)
}

func TestClosestAheadEmpty(t *testing.T) {
	_, ok := ClosestAhead(0, nil)
	assert.False(t, ok)
}
