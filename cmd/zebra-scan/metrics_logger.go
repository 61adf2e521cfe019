package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/styl-solutions/ssi-scanner/internal/metrics"
)

// startMetricsLogger periodically logs a snapshot of the local metrics
// counters, for operators without a Prometheus scraper wired to
// -metrics-addr. It is a no-op when interval is non-positive.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_sent", snap.FramesSent,
					"frames_received", snap.FramesReceived,
					"acks", snap.Acks,
					"naks", snap.Naks,
					"checksum_fails", snap.ChecksumFails,
					"protocol_errs", snap.ProtocolErrs,
					"timeouts", snap.Timeouts,
					"session_aborts", snap.SessionAborts,
					"buffer_too_small", snap.BufferTooSmall,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
