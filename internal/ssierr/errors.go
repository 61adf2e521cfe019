// Package ssierr defines the error kinds surfaced by the SSI driver core,
// classified the way callers are expected to branch on them: via
// errors.Is/errors.As against these sentinels.
package ssierr

import (
	"errors"
	"fmt"

	"github.com/styl-solutions/ssi-scanner/internal/ssi"
)

// Sentinel errors. Wrap with fmt.Errorf("%w: ...") at the call site so
// errors.Is still classifies correctly while context is preserved.
var (
	ErrTransport      = errors.New("transport")
	ErrProtocol       = errors.New("protocol")
	ErrNak            = errors.New("nak")
	ErrBufferTooSmall = errors.New("buffer_too_small")
	ErrSession        = errors.New("session")
)

// NakError carries the device's refusal reason. errors.As unwraps it;
// errors.Is(err, ErrNak) also succeeds via Unwrap.
type NakError struct {
	Reason ssi.NakReason
}

func (e *NakError) Error() string { return fmt.Sprintf("nak received: %s", e.Reason) }
func (e *NakError) Unwrap() error { return ErrNak }

// Metric label constants, bounding cardinality for internal/metrics.
const (
	LabelTransport      = "transport"
	LabelProtocol       = "protocol"
	LabelNak            = "nak"
	LabelBufferTooSmall = "buffer_too_small"
	LabelSession        = "session"
	LabelOther          = "other"
)

// ClassifyMetric maps a wrapped sentinel error to a stable metrics label.
func ClassifyMetric(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return LabelTransport
	case errors.Is(err, ErrNak):
		return LabelNak
	case errors.Is(err, ErrProtocol):
		return LabelProtocol
	case errors.Is(err, ErrBufferTooSmall):
		return LabelBufferTooSmall
	case errors.Is(err, ErrSession):
		return LabelSession
	default:
		return LabelOther
	}
}
