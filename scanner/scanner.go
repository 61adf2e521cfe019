// Package scanner is the Device Facade described in spec.md §4.5: the
// public, importable API a client uses to open a Zebra/Symbol SSI
// scanner, trigger a scan, and close the handle.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/styl-solutions/ssi-scanner/internal/link"
	"github.com/styl-solutions/ssi-scanner/internal/logging"
	"github.com/styl-solutions/ssi-scanner/internal/session"
	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
	"github.com/styl-solutions/ssi-scanner/internal/ttyio"
)

const (
	defaultBaud        = 9600
	defaultReadTimeout = 2 * time.Second
	defaultDevicePath  = "/dev/ttyACM0"

	envDevicePrimary  = "SSI_SCANNER_DEVICE"
	envDeviceFallback = "ZEBRA_SCANNER"
)

// Scanner owns exactly one open TTY descriptor; its lifetime is bounded
// by Open...Close (spec.md §3, "Scanner handle"). Concurrent use from
// multiple goroutines is undefined, same as the source contract.
type Scanner struct {
	tty       *ttyio.TTY
	session   *session.Controller
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

type config struct {
	baud          int
	readTimeout   time.Duration
	logger        *slog.Logger
	handshakeMode ssi.TriggerMode
}

// Option customizes Open/Setup, mirroring the teacher's functional-option
// pattern (server.ServerOption).
type Option func(*config)

// WithBaud overrides the TTY baud rate (default 9600).
func WithBaud(baud int) Option {
	return func(c *config) {
		if baud > 0 {
			c.baud = baud
		}
	}
}

// WithReadTimeout overrides the per-call read_exact/write_exact deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithLogger overrides the structured logger used for this handle.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHandshakeTriggerMode selects the trigger mode sent during Open's
// initial PARAM_SEND handshake (default TriggerModeManual, host-triggered
// scans via read_barcode). It has no effect on Setup, which always uses
// the mode passed explicitly.
func WithHandshakeTriggerMode(mode ssi.TriggerMode) Option {
	return func(c *config) { c.handshakeMode = mode }
}

func newConfig(opts []Option) config {
	c := config{
		baud:          defaultBaud,
		readTimeout:   defaultReadTimeout,
		logger:        logging.L(),
		handshakeMode: ssi.TriggerModeManual,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// openRaw opens and configures the TTY and wires up the link/session
// layers, without running any handshake. Shared by Open and Setup.
func openRaw(path string, cfg config) (*ttyio.TTY, *session.Controller, error) {
	tty, err := ttyio.Open(path, cfg.baud)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", ssierr.ErrTransport, path, err)
	}
	l := link.New(tty, cfg.readTimeout)
	sess := session.New(l, cfg.logger)
	return tty, sess, nil
}

// Open opens path, configures the TTY for raw SSI transport, and runs the
// initial PARAM_SEND handshake that puts the device into software-ACK
// mode (spec.md §4.5). On failure, the TTY is closed before returning.
func Open(ctx context.Context, path string, opts ...Option) (*Scanner, error) {
	cfg := newConfig(opts)
	tty, sess, err := openRaw(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := sess.Setup(ctx, cfg.handshakeMode); err != nil {
		_ = tty.Close()
		return nil, fmt.Errorf("%w: initial handshake: %v", ssierr.ErrTransport, err)
	}
	cfg.logger.Info("scanner_open", "path", path, "baud", cfg.baud)
	return &Scanner{tty: tty, session: sess, logger: cfg.logger}, nil
}

// ReadBarcode runs the scripted scan sequence of spec.md §4.4 and returns
// the number of decoded payload bytes written to out.
func (s *Scanner) ReadBarcode(ctx context.Context, out []byte) (int, error) {
	n, err := s.session.ReadBarcode(ctx, out)
	if err != nil {
		s.logger.Warn("read_barcode_failed", "error", err)
		return n, err
	}
	s.logger.Debug("read_barcode_ok", "bytes", n)
	return n, nil
}

// Close closes the underlying TTY descriptor. It is idempotent: a second
// call is a no-op success (spec.md §4.5).
func (s *Scanner) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.tty.Close()
	})
	return s.closeErr
}

// Setup opens path, sends the PARAM_SEND configuration for mode, and
// closes the handle (spec.md §4.4/§4.5). It does not run Open's
// ACK-mode handshake separately — the configuration frame it sends
// already persists the software-ACK flag alongside the trigger mode.
func Setup(ctx context.Context, path string, mode ssi.TriggerMode, opts ...Option) error {
	cfg := newConfig(opts)
	tty, sess, err := openRaw(path, cfg)
	if err != nil {
		return err
	}
	defer tty.Close()
	if err := sess.Setup(ctx, mode); err != nil {
		return err
	}
	cfg.logger.Info("scanner_setup", "path", path, "mode", mode)
	return nil
}

// GetDevicePath returns the path the driver will auto-select when no
// explicit path is given: SSI_SCANNER_DEVICE if set, falling back to the
// original driver's ZEBRA_SCANNER for operators migrating an existing
// fleet, else a hardcoded default (spec.md §4.5/§6).
func GetDevicePath() string {
	if v := os.Getenv(envDevicePrimary); v != "" {
		return v
	}
	if v := os.Getenv(envDeviceFallback); v != "" {
		return v
	}
	return defaultDevicePath
}
