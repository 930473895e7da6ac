package ioshim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulateHostEstablish plays the host-side postman just enough to
// acknowledge a pending connect request.
func simulateHostEstablish(t *testing.T, window []byte) {
	t.Helper()
	require.Equal(t, connectRequested, binaryWord(window, offConnectStatus))
	setBinaryWord(window, offConnectStatus, connectEstablished)
}

func binaryWord(window []byte, off int) uint32 {
	m := &MailboxShim{window: window}
	return m.word(off)
}

func setBinaryWord(window []byte, off int, v uint32) {
	m := &MailboxShim{window: window}
	m.setWord(off, v)
}

func TestMailboxConnectSucceedsWhenHostAcks(t *testing.T) {
	window := make([]byte, MailboxWindowSize)
	shim := NewMailboxShim(window)

	done := make(chan error, 1)
	go func() { done <- shim.Connect("gateway.local:4433") }()

	// Give the spin loop a moment to post the request, then ack it.
	for i := 0; i < 1000 && binaryWord(window, offConnectStatus) != connectRequested; i++ {
	}
	simulateHostEstablish(t, window)

	require.NoError(t, <-done)
	assert.Equal(t, "gateway.local:4433", string(window[offTxBuf:offTxBuf+len("gateway.local:4433")]))
}

func TestMailboxConnectTimesOutWithoutHost(t *testing.T) {
	window := make([]byte, MailboxWindowSize)
	shim := NewMailboxShim(window)

	err := shim.Connect("nobody-home:1")
	require.Error(t, err)
	var eo *ErrOther
	assert.ErrorAs(t, err, &eo)
}

func TestMailboxWriteThenWouldBlockUntilDrained(t *testing.T) {
	window := make([]byte, MailboxWindowSize)
	shim := NewMailboxShim(window)

	n, err := shim.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// A second write before the host drains should block.
	_, err = shim.Write([]byte("again"))
	assert.ErrorIs(t, err, ErrWouldBlock)

	// Host drains by clearing the ready flag.
	setBinaryWord(window, offTxReady, 0)
	n, err = shim.Write([]byte("again"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMailboxReadWouldBlockThenDelivers(t *testing.T) {
	window := make([]byte, MailboxWindowSize)
	shim := NewMailboxShim(window)

	buf := make([]byte, 16)
	_, err := shim.Read(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)

	copy(window[offRxBuf:], []byte("ping"))
	setBinaryWord(window, offRxLen, 4)

	n, err := shim.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.Equal(t, uint32(0), binaryWord(window, offRxLen))
}
