package ioshim

import (
	"errors"
	"io"
	"net"
	"time"
)

// SocketShim is the hosted/simulation implementation of ReadWriter: a thin
// wrapper over a standard blocking net.Conn. cmd/device-agent does not use
// it: the agent reaches the gateway through internal/transport.
type SocketShim struct {
	conn net.Conn
	// dialTimeout bounds Connect; zero means no timeout.
	dialTimeout time.Duration
}

// NewSocketShim wraps an already-established connection.
func NewSocketShim(conn net.Conn) *SocketShim {
	return &SocketShim{conn: conn}
}

// NewSocketShimDialer returns an unconnected shim that dials on Connect.
func NewSocketShimDialer(dialTimeout time.Duration) *SocketShim {
	return &SocketShim{dialTimeout: dialTimeout}
}

func (s *SocketShim) Connect(endpoint string) error {
	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.Dial("tcp", endpoint)
	if err != nil {
		return other(err.Error())
	}
	s.conn = conn
	return nil
}

func (s *SocketShim) Read(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, other("not connected")
	}
	n, err := s.conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, ErrEOF
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, other(err.Error())
	}
	return n, nil
}

func (s *SocketShim) Write(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, other("not connected")
	}
	n, err := s.conn.Write(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, other(err.Error())
	}
	return n, nil
}

func (s *SocketShim) Flush() error {
	// net.Conn has no userspace buffering to flush; TCP_NODELAY-style
	// behavior is the OS's concern.
	return nil
}

func (s *SocketShim) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
