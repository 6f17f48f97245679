package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReceiveWouldBlockWhenIdle(t *testing.T) {
	sock, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer sock.Close()

	buf := make([]byte, MaxDatagramSize)
	_, err = sock.Receive(buf)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestSendReceiveLearnsPeer(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()

	b, err := Dial(a.LocalAddr().String())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Send([]byte("hello")))

	buf := make([]byte, MaxDatagramSize)
	var n int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n, err = a.Receive(buf)
		if err == ErrWouldBlock {
			continue
		}
		require.NoError(t, err)
		break
	}
	require.Equal(t, "hello", string(buf[:n]))
	require.NotNil(t, a.Peer())
	require.Equal(t, b.LocalAddr().Port, a.Peer().Port)
}

func TestSendWithoutPeerFails(t *testing.T) {
	sock, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer sock.Close()
	require.Error(t, sock.Send([]byte("x")))
}
