// Package ttyio implements the SSI driver's Serial Transport component:
// deadline-bounded raw-mode byte I/O over a TTY file descriptor.
package ttyio

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
	"github.com/styl-solutions/ssi-scanner/internal/transport"
)

var _ transport.Port = (*TTY)(nil)

// TTY is a raw-mode serial port opened directly on golang.org/x/sys/unix,
// implementing transport.Port. tarm/serial and go.bug.st/serial were
// considered and rejected: neither exposes hardware flow control
// (CRTSCTS), which §6 of the spec requires.
type TTY struct {
	fd            int
	readDeadline  time.Time
	writeDeadline time.Time
}

// bauds maps supported baud rates to their termios Cflag encoding. Only
// standard rates are supported; arbitrary rates would need termios2/BOTHER
// (see other_examples' devhsmtekserial for that approach), which this
// driver does not need since scanners in this family run at a fixed,
// standard rate.
var bauds = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// Open opens path in raw, non-blocking mode and configures it per spec.md
// §4.1/§6: CS8, hardware flow control, local mode, receiver enabled, and a
// short VTIME floor for the header-byte read (the caller's own deadline,
// enforced via select() in Read/Write, is what actually bounds a call —
// VTIME only keeps a read from blocking the kernel indefinitely between
// select() wakeups).
func Open(path string, baud int) (*TTY, error) {
	bflag, ok := bauds[baud]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported baud rate %d", ssierr.ErrTransport, baud)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ssierr.ErrTransport, path, err)
	}
	t := &TTY{fd: fd}
	if err := t.configure(bflag); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return t, nil
}

func (t *TTY) configure(bflag uint32) error {
	term, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("%w: get termios: %v", ssierr.ErrTransport, err)
	}
	term.Iflag = 0
	term.Oflag = 0
	term.Lflag = 0
	term.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL | unix.CRTSCTS | bflag
	term.Cc[unix.VMIN] = 0
	term.Cc[unix.VTIME] = 1 // 100ms floor; real timeout is enforced by select() in Read/Write.

	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, term); err != nil {
		return fmt.Errorf("%w: set termios: %v", ssierr.ErrTransport, err)
	}
	return nil
}

// FlushInput discards pending input bytes. Called by the link layer before
// every host-initiated frame (spec.md §5).
func (t *TTY) FlushInput() error {
	if err := unix.IoctlSetInt(t.fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("%w: flush input: %v", ssierr.ErrTransport, err)
	}
	return nil
}

func (t *TTY) SetReadDeadline(d time.Time) error {
	t.readDeadline = d
	return nil
}

func (t *TTY) SetWriteDeadline(d time.Time) error {
	t.writeDeadline = d
	return nil
}

// Read waits for readability up to the configured deadline, then issues a
// single non-blocking read. It never blocks past the deadline.
func (t *TTY) Read(p []byte) (int, error) {
	if err := waitFD(t.fd, t.readDeadline, false); err != nil {
		return 0, err
	}
	n, err := unix.Read(t.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, os.ErrDeadlineExceeded
		}
		return 0, fmt.Errorf("%w: read: %v", ssierr.ErrTransport, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write waits for writability up to the configured deadline, then issues a
// single non-blocking write.
func (t *TTY) Write(p []byte) (int, error) {
	if err := waitFD(t.fd, t.writeDeadline, true); err != nil {
		return 0, err
	}
	n, err := unix.Write(t.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, os.ErrDeadlineExceeded
		}
		return 0, fmt.Errorf("%w: write: %v", ssierr.ErrTransport, err)
	}
	return n, nil
}

func (t *TTY) Close() error {
	return unix.Close(t.fd)
}

// waitFD blocks in select() until fd is ready for the requested direction
// or deadline elapses. A zero deadline means wait indefinitely.
func waitFD(fd int, deadline time.Time, forWrite bool) error {
	for {
		var tv *unix.Timeval
		if !deadline.IsZero() {
			remain := time.Until(deadline)
			if remain <= 0 {
				return os.ErrDeadlineExceeded
			}
			t := unix.NsecToTimeval(remain.Nanoseconds())
			tv = &t
		}
		var rfds, wfds unix.FdSet
		set := &rfds
		if forWrite {
			set = &wfds
		}
		fdSet(set, fd)

		n, err := unix.Select(fd+1, &rfds, &wfds, nil, tv)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("%w: select: %v", ssierr.ErrTransport, err)
		}
		if n == 0 {
			return os.ErrDeadlineExceeded
		}
		return nil
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}
