// Package session implements the SSI Session Controller: the scripted
// command sequence that configures the device and drives one scan
// (spec.md §4.4).
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/styl-solutions/ssi-scanner/internal/frame"
	"github.com/styl-solutions/ssi-scanner/internal/link"
	"github.com/styl-solutions/ssi-scanner/internal/logging"
	"github.com/styl-solutions/ssi-scanner/internal/metrics"
	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
)

// reassemblyCap bounds the internal buffer used to reassemble a
// DECODE_DATA response before its payload is extracted. It is sized well
// above ssi.MaxFrame so a realistic multi-fragment barcode fits without
// the caller's own output buffer needing to hold header/checksum bytes.
const reassemblyCap = 8 * ssi.MaxFrame

// Controller orchestrates the command sequences of spec.md §4.4 over a
// single Link. It holds no state between calls: every ReadBarcode starts
// from Idle and always attempts StopSession before returning, even on
// failure (the "Aborting" state of spec.md §3).
type Controller struct {
	link   *link.Link
	logger *slog.Logger
}

// New creates a Controller driving sequences over l.
func New(l *link.Link, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.L()
	}
	return &Controller{link: l, logger: logger}
}

// watchCancel closes the link's transport if ctx is done before stop is
// called, giving ReadBarcode/Setup a way to honor context cancellation on
// top of spec.md §5's "close the descriptor from another thread" model.
func (c *Controller) watchCancel(ctx context.Context) (stop func()) {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.link.Port().Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// ReadBarcode runs the eight-step scripted sequence of spec.md §4.4:
// disable, flush, enable, start session, await decode event, await decode
// data (possibly multi-fragment), extract the payload into out, and
// always stop the session before returning. It returns the number of
// payload bytes written to out.
func (c *Controller) ReadBarcode(ctx context.Context, out []byte) (int, error) {
	stop := c.watchCancel(ctx)
	defer stop()

	n, opErr := c.runScan(out)

	// Step 8 always runs, whether or not steps 1-7 succeeded, so the
	// device never remains in an open-session state.
	stopErr := c.link.SendFrame(ssi.OpStopSession, nil)

	if opErr != nil {
		metrics.IncSessionAbort()
		err := fmt.Errorf("%w: %w", ssierr.ErrSession, opErr)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return 0, err
	}
	if stopErr != nil {
		metrics.IncSessionAbort()
		err := fmt.Errorf("%w: stop_session: %w", ssierr.ErrSession, stopErr)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return n, err
	}
	return n, nil
}

func (c *Controller) runScan(out []byte) (int, error) {
	if err := c.link.SendFrame(ssi.OpScanDisable, nil); err != nil {
		return 0, fmt.Errorf("scan_disable: %w", err)
	}
	if err := c.link.SendFrame(ssi.OpFlushQueue, nil); err != nil {
		return 0, fmt.Errorf("flush_queue: %w", err)
	}
	if err := c.link.SendFrame(ssi.OpScanEnable, nil); err != nil {
		return 0, fmt.Errorf("scan_enable: %w", err)
	}
	if err := c.link.SendFrame(ssi.OpStartSession, nil); err != nil {
		return 0, fmt.Errorf("start_session: %w", err)
	}

	eventBuf := make([]byte, ssi.MaxFrame)
	en, err := c.link.RecvFrame(eventBuf)
	if err != nil {
		return 0, fmt.Errorf("decode_event: %w", err)
	}
	if en < ssi.HeaderLen+2 || eventBuf[ssi.IdxOpcode] != ssi.OpDecodeEvent {
		c.logger.Warn("unexpected_decode_event_opcode", "opcode", eventBuf[ssi.IdxOpcode])
	}

	dataBuf := make([]byte, reassemblyCap)
	dn, err := c.link.RecvFrame(dataBuf)
	if err != nil {
		return 0, fmt.Errorf("decode_data: %w", err)
	}

	payload := extractPayload(dataBuf[:dn])
	if len(payload) > len(out) {
		return 0, fmt.Errorf("%w: decoded payload is %d bytes, buffer holds %d",
			ssierr.ErrBufferTooSmall, len(payload), len(out))
	}
	return copy(out, payload), nil
}

// extractPayload walks a reassembled DECODE_DATA response frame by frame
// and concatenates each fragment's payload, skipping the header and the
// one-byte symbology identifier that leads each fragment's PARAM region
// (spec.md §4.4).
func extractPayload(buf []byte) []byte {
	var out []byte
	off := 0
	for off+ssi.HeaderLen+2 <= len(buf) {
		length := frame.Len(buf[off:])
		wire := length + 2
		if off+wire > len(buf) {
			break
		}
		if length > ssi.HeaderLen+1 {
			out = append(out, buf[off+ssi.HeaderLen+1:off+length]...)
		}
		off += wire
	}
	return out
}

// Setup writes the PARAM_SEND configuration frame described in spec.md
// §4.4: beep suppression, decimal-format transmission, software ACK,
// in-band scan-parameter permission, and the requested trigger mode. The
// change is persisted as permanent on the device.
func (c *Controller) Setup(ctx context.Context, mode ssi.TriggerMode) error {
	stop := c.watchCancel(ctx)
	defer stop()

	params := ssi.BuildSetupParams(mode)
	if err := c.link.SendFrame(ssi.OpParamSend, params, frame.WithPermanent(true)); err != nil {
		wrapped := fmt.Errorf("%w: setup: %v", ssierr.ErrSession, err)
		metrics.IncError(ssierr.ClassifyMetric(wrapped))
		return wrapped
	}
	return nil
}
