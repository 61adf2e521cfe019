// Command zebra-scan opens a Zebra/Symbol SSI scanner, triggers one scan,
// and prints the decoded barcode text. It is the rewrite's equivalent of
// original_source/main.c's open->read->print->close sequence — out of
// scope for the core per spec.md §1, but a natural thin consumer of the
// scanner facade (SPEC_FULL.md SUPPLEMENTED FEATURES).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/styl-solutions/ssi-scanner/internal/logging"
	"github.com/styl-solutions/ssi-scanner/internal/metrics"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
	"github.com/styl-solutions/ssi-scanner/scanner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("zebra-scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	device := fs.String("device", "", "Serial device path (default: scanner.GetDevicePath())")
	baud := fs.Int("baud", 9600, "Serial baud rate")
	timeout := fs.Duration("timeout", 10*time.Second, "Overall timeout for opening the scanner and reading one barcode")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := fs.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *showVersion {
		fmt.Fprintf(stdout, "zebra-scan %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}

	// A flag explicitly set on the command line wins over the environment.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if _, ok := setFlags["log-level"]; !ok {
		if v := os.Getenv(logging.EnvLevelName); v != "" {
			*logLevel = v
		}
	}

	logger := logging.New("text", logging.LevelFromConfig(*logLevel), stderr)
	logging.Set(logger)

	path := *device
	if path == "" {
		path = scanner.GetDevicePath()
	}

	var ready atomic.Bool
	metrics.SetReadinessFunc(ready.Load)
	if *metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(*metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	startMetricsLogger(ctx, *logMetricsEvery, logger, &wg)

	sc, err := scanner.Open(ctx, path, scanner.WithBaud(*baud), scanner.WithLogger(logger))
	if err != nil {
		logger.Error("open_failed", "device", path, "error", err)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return 2
	}
	defer sc.Close()
	ready.Store(true)

	out := make([]byte, 4096)
	n, err := sc.ReadBarcode(ctx, out)
	if err != nil {
		logger.Error("read_barcode_failed", "device", path, "error", err)
		return 3
	}
	fmt.Fprintln(stdout, string(out[:n]))
	return 0
}
