package ioshim

import (
	"encoding/binary"
)

// Mailbox field offsets, per spec.md §6. A real embedded build points
// window at a fixed physical address; tests and the host-side emulator
// point it at a plain byte slice standing in for that shared memory.
const (
	offConnectStatus = 0x000 // 0 idle, 1 request, 2 established
	offRxLen         = 0x004 // RX length (host -> device)
	offEndpointLen   = 0x008 // endpoint string length (device -> host)
	offTxLen         = 0x00C // TX length (device -> host)
	offTxReady       = 0x010 // TX ready flag (1 = data to drain)
	offRxBuf         = 0x014
	ringBufSize      = 256
	offTxBuf         = offRxBuf + ringBufSize // 0x114

	// MailboxWindowSize is the total byte span the layout occupies.
	MailboxWindowSize = offTxBuf + ringBufSize

	connectIdle        uint32 = 0
	connectRequested    uint32 = 1
	connectEstablished  uint32 = 2

	maxConnectSpins = 200
)

// MailboxShim implements ReadWriter over the fixed-offset shared-memory
// layout described in spec.md §4.3/§6: a polled mailbox partitioned into
// word-sized control fields plus two 256-byte ring buffers. Neither side
// allocates; window is supplied by the caller (a real build maps it onto a
// physical address, the host-side emulator or tests back it with a plain
// slice).
type MailboxShim struct {
	window []byte
}

// NewMailboxShim wraps window, which must be at least MailboxWindowSize
// bytes, as the device side of the mailbox.
func NewMailboxShim(window []byte) *MailboxShim {
	if len(window) < MailboxWindowSize {
		panic("ioshim: mailbox window too small")
	}
	return &MailboxShim{window: window}
}

func (m *MailboxShim) word(off int) uint32 {
	return binary.LittleEndian.Uint32(m.window[off : off+4])
}

func (m *MailboxShim) setWord(off int, v uint32) {
	binary.LittleEndian.PutUint32(m.window[off:off+4], v)
}

// Connect writes endpoint into the TX buffer, requests a connection, then
// spins a bounded number of iterations waiting for the host postman to
// flip the status to established.
func (m *MailboxShim) Connect(endpoint string) error {
	b := []byte(endpoint)
	if len(b) > ringBufSize {
		b = b[:ringBufSize]
	}
	copy(m.window[offTxBuf:offTxBuf+ringBufSize], b)
	m.setWord(offEndpointLen, uint32(len(b)))
	m.setWord(offConnectStatus, connectRequested)

	for i := 0; i < maxConnectSpins; i++ {
		if m.word(offConnectStatus) == connectEstablished {
			return nil
		}
	}
	return other("connect timeout")
}

// Read drains up to len(buf) bytes the host has placed in the RX buffer.
// Returns ErrWouldBlock if the host has not posted anything yet.
func (m *MailboxShim) Read(buf []byte) (int, error) {
	rxLen := m.word(offRxLen)
	if rxLen == 0 {
		return 0, ErrWouldBlock
	}

	n := int(rxLen)
	if n > ringBufSize {
		n = ringBufSize
	}
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, m.window[offRxBuf:offRxBuf+n])

	// Signal the host that the buffer has been drained. Bytes beyond what
	// fit in the caller's buf are dropped — the ring buffer is bounded and
	// callers are expected to poll with a buffer at least ringBufSize wide.
	m.setWord(offRxLen, 0)
	return n, nil
}

// Write posts up to len(buf) bytes (capped at the ring buffer size) into
// the TX buffer. Returns ErrWouldBlock if the host has not yet drained a
// previous write.
func (m *MailboxShim) Write(buf []byte) (int, error) {
	if m.word(offTxReady) != 0 {
		return 0, ErrWouldBlock
	}

	n := len(buf)
	if n > ringBufSize {
		n = ringBufSize
	}
	copy(m.window[offTxBuf:offTxBuf+n], buf[:n])
	m.setWord(offTxLen, uint32(n))
	m.setWord(offTxReady, 1)
	return n, nil
}

// Flush is a no-op: Write already raises the TX-ready flag synchronously.
func (m *MailboxShim) Flush() error { return nil }

// Close resets the control words so a reused window looks idle again.
func (m *MailboxShim) Close() error {
	m.setWord(offConnectStatus, connectIdle)
	m.setWord(offTxReady, 0)
	m.setWord(offRxLen, 0)
	return nil
}
