// Package link implements the SSI Link Layer: single-frame send with ACK
// check, and single-frame/multi-fragment receive with checksum
// verification and reply-ACK (spec.md §4.3).
package link

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/styl-solutions/ssi-scanner/internal/frame"
	"github.com/styl-solutions/ssi-scanner/internal/logging"
	"github.com/styl-solutions/ssi-scanner/internal/metrics"
	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
	"github.com/styl-solutions/ssi-scanner/internal/transport"
)

// flusher is implemented by transports that can discard pending input
// (internal/ttyio.TTY). Detected via an optional-interface assertion so
// link works against any transport.Port, including test doubles that
// don't need to flush anything.
type flusher interface {
	FlushInput() error
}

// Link drives the ACK/NAK handshake and frame reassembly over a Port.
type Link struct {
	port    transport.Port
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Link bound to port, using timeout as the deadline for each
// read_exact/write_exact call.
func New(port transport.Port, timeout time.Duration) *Link {
	return &Link{port: port, timeout: timeout, logger: logging.L()}
}

// Port returns the transport this link is bound to, so a caller can close
// it out-of-band (e.g. to cancel a blocked read from another goroutine,
// per spec.md §5's cancellation model).
func (l *Link) Port() transport.Port { return l.port }

func (l *Link) flush() {
	if f, ok := l.port.(flusher); ok {
		if err := f.FlushInput(); err != nil {
			l.logger.Debug("flush_input_failed", "error", err)
		}
	}
}

// SendFrame builds and writes a frame for opcode/param, then (unless
// opcode is ACK) waits for the device's ACK/NAK.
func (l *Link) SendFrame(opcode byte, param []byte, opts ...frame.BuildOption) error {
	l.flush()
	fr, err := frame.Build(opcode, param, opts...)
	if err != nil {
		err = fmt.Errorf("%w: build frame: %v", ssierr.ErrProtocol, err)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}
	if _, err := transport.WriteExact(l.port, fr, l.timeout); err != nil {
		metrics.IncTransportTimeout()
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}
	metrics.IncFramesSent()
	if opcode == ssi.OpACK {
		return nil
	}
	return l.recvAck()
}

// recvAck reads one ACK/NAK frame in response to a non-ACK host command.
// Per spec.md §4.3, recv_ack validates only the length range and
// checksum — not the source byte.
func (l *Link) recvAck() error {
	lenBuf := make([]byte, 1)
	if n, err := transport.ReadExact(l.port, lenBuf, l.timeout); err != nil || n < 1 {
		metrics.IncTransportTimeout()
		if err != nil {
			metrics.IncError(ssierr.ClassifyMetric(err))
			return err
		}
		err = fmt.Errorf("%w: no ACK/NAK received", ssierr.ErrTransport)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}

	length := int(lenBuf[0])
	if length < ssi.HeaderLen || length+2 > ssi.MaxFrame {
		metrics.IncProtocolError()
		err := fmt.Errorf("%w: invalid ACK/NAK length %d", ssierr.ErrProtocol, length)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}

	rest := make([]byte, length+2-1)
	n, err := transport.ReadExact(l.port, rest, l.timeout)
	if err != nil {
		metrics.IncTransportTimeout()
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}
	if n < len(rest) {
		metrics.IncTransportTimeout()
		err := fmt.Errorf("%w: truncated ACK/NAK (%d/%d bytes)", ssierr.ErrTransport, n, len(rest))
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}

	full := append(lenBuf, rest...)
	ck := frame.Checksum(full[:length])
	got := uint16(full[length])<<8 | uint16(full[length+1])
	if ck != got {
		metrics.IncChecksumFailure()
		err := fmt.Errorf("%w: ACK/NAK checksum mismatch", ssierr.ErrProtocol)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}

	switch full[ssi.IdxOpcode] {
	case ssi.OpACK:
		metrics.IncAck()
		return nil
	case ssi.OpNAK:
		reason := ssi.NakReason(full[ssi.IdxStatus])
		metrics.IncNak(reason.String())
		err := &ssierr.NakError{Reason: reason}
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	default:
		metrics.IncProtocolError()
		err := fmt.Errorf("%w: expected ACK/NAK, got opcode 0x%02x", ssierr.ErrProtocol, full[ssi.IdxOpcode])
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}
}

// RecvFrame receives one logical device response into out, reassembling
// across continuation fragments. It returns the number of bytes written
// to out. Every well-formed fragment is ACKed before the next is read
// (the device withholds the next fragment until the previous is ACKed);
// every malformed fragment is NAKed with RESEND.
func (l *Link) RecvFrame(out []byte) (int, error) {
	used := 0
	for {
		lenBuf := make([]byte, 1)
		if n, err := transport.ReadExact(l.port, lenBuf, l.timeout); err != nil || n < 1 {
			metrics.IncTransportTimeout()
			if err != nil {
				metrics.IncError(ssierr.ClassifyMetric(err))
				return used, err
			}
			err = fmt.Errorf("%w: timed out waiting for frame", ssierr.ErrTransport)
			metrics.IncError(ssierr.ClassifyMetric(err))
			return used, err
		}

		length := int(lenBuf[0])
		if length < ssi.HeaderLen || length+2 > ssi.MaxFrame {
			metrics.IncProtocolError()
			l.sendNak(ssi.NakResend)
			err := fmt.Errorf("%w: invalid frame length %d", ssierr.ErrProtocol, length)
			metrics.IncError(ssierr.ClassifyMetric(err))
			return used, err
		}

		rest := make([]byte, length+2-1)
		n, err := transport.ReadExact(l.port, rest, l.timeout)
		if err != nil {
			metrics.IncTransportTimeout()
			l.sendNak(ssi.NakResend)
			metrics.IncError(ssierr.ClassifyMetric(err))
			return used, err
		}
		if n < len(rest) {
			metrics.IncTransportTimeout()
			l.sendNak(ssi.NakResend)
			err := fmt.Errorf("%w: truncated frame (%d/%d bytes)", ssierr.ErrTransport, n, len(rest))
			metrics.IncError(ssierr.ClassifyMetric(err))
			return used, err
		}

		full := append(lenBuf, rest...)
		if err := frame.Verify(full); err != nil {
			if full[ssi.IdxSrc] != ssi.SrcDecoder {
				metrics.IncProtocolError()
			} else if errors.Is(err, ssierr.ErrProtocol) {
				metrics.IncChecksumFailure()
			}
			l.sendNak(ssi.NakResend)
			metrics.IncError(ssierr.ClassifyMetric(err))
			return used, err
		}

		wireSize := frame.WireSize(full)
		if used+wireSize > len(out) {
			metrics.IncBufferTooSmall()
			err := fmt.Errorf("%w: response exceeds %d-byte buffer", ssierr.ErrBufferTooSmall, len(out))
			metrics.IncError(ssierr.ClassifyMetric(err))
			return used, err
		}

		// ACK before checking continuation: the device withholds the next
		// fragment until it sees an ACK for the previous one.
		if err := l.sendBareAck(); err != nil {
			return used, err
		}

		copy(out[used:used+wireSize], full)
		used += wireSize
		metrics.IncFramesReceived()

		if !frame.IsContinuation(full) {
			return used, nil
		}
	}
}

func (l *Link) sendBareAck() error {
	fr, err := frame.Build(ssi.OpACK, nil)
	if err != nil {
		err = fmt.Errorf("%w: build ACK: %v", ssierr.ErrProtocol, err)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}
	if _, err := transport.WriteExact(l.port, fr, l.timeout); err != nil {
		metrics.IncTransportTimeout()
		metrics.IncError(ssierr.ClassifyMetric(err))
		return err
	}
	metrics.IncFramesSent()
	return nil
}

func (l *Link) sendNak(reason ssi.NakReason) {
	fr := frame.BuildNak(reason)
	if _, err := transport.WriteExact(l.port, fr, l.timeout); err != nil {
		l.logger.Debug("send_nak_failed", "reason", reason, "error", err)
		return
	}
	metrics.IncFramesSent()
}
