// Package transport defines the blocking, deadline-bounded byte transport
// the SSI link layer is built on, and the read_exact/write_exact helpers
// shared between the real TTY implementation (internal/ttyio) and test
// doubles (net.Pipe()).
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
)

// Port abstracts a single, exclusively-owned byte transport: a TTY file
// descriptor in production, a net.Pipe() half in tests. Any net.Conn
// satisfies Port.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

var _ Port = (net.Conn)(nil)

// IsTimeout reports whether err represents a deadline expiry, recognizing
// both os.ErrDeadlineExceeded (returned by internal/ttyio) and the
// net.Error.Timeout() convention used by net.Pipe() and real net.Conns.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// ReadExact reads up to len(buf) bytes from p, repeating short reads until
// buf is full, EOF is observed, or timeout elapses. It returns the number
// of bytes actually copied, which may be less than len(buf). The timeout
// bounds the entire call, not each underlying read (spec.md §4.1).
func ReadExact(p Port, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	if err := p.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("%w: set read deadline: %v", ssierr.ErrTransport, err)
	}
	defer p.SetReadDeadline(time.Time{})

	n := 0
	for n < len(buf) {
		if time.Now().After(deadline) {
			return n, nil
		}
		m, err := p.Read(buf[n:])
		n += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			if IsTimeout(err) {
				return n, nil
			}
			return n, fmt.Errorf("%w: read: %v", ssierr.ErrTransport, err)
		}
	}
	return n, nil
}

// WriteExact writes all of buf to p, repeating short writes until
// everything is sent or timeout elapses. A fatal write error returns 0
// bytes written and a wrapped ssierr.ErrTransport.
func WriteExact(p Port, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	if err := p.SetWriteDeadline(deadline); err != nil {
		return 0, fmt.Errorf("%w: set write deadline: %v", ssierr.ErrTransport, err)
	}
	defer p.SetWriteDeadline(time.Time{})

	n := 0
	for n < len(buf) {
		if time.Now().After(deadline) {
			return n, fmt.Errorf("%w: write timed out after %d/%d bytes", ssierr.ErrTransport, n, len(buf))
		}
		m, err := p.Write(buf[n:])
		n += m
		if err != nil {
			if IsTimeout(err) {
				return n, fmt.Errorf("%w: write timed out after %d/%d bytes", ssierr.ErrTransport, n, len(buf))
			}
			return 0, fmt.Errorf("%w: write: %v", ssierr.ErrTransport, err)
		}
	}
	return n, nil
}
