// Command zebra-setup configures trigger mode on a Zebra/Symbol SSI
// barcode scanner. It is the rewrite's equivalent of
// original_source/tools/mlsScannerSetup.c (spec.md §6, "CLI surface of
// the facade").
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/styl-solutions/ssi-scanner/internal/logging"
	"github.com/styl-solutions/ssi-scanner/internal/metrics"
	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
	"github.com/styl-solutions/ssi-scanner/scanner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `usage: zebra-setup [<device>] [auto|manual]

  <device>   serial device path (default: scanner.GetDevicePath())
  auto       arm the scanner to trigger on object presence
  manual     require the host to issue a scan (default)
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run implements the three argument forms supported by the original tool
// (SPEC_FULL.md SUPPLEMENTED FEATURES): "setup", "setup <mode>", and
// "setup <dev> <mode>".
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Fprint(stdout, usage)
		return 0
	}

	device := scanner.GetDevicePath()
	modeArg := "manual"
	switch len(args) {
	case 0:
	case 1:
		modeArg = args[0]
	case 2:
		device = args[0]
		modeArg = args[1]
	default:
		fmt.Fprint(stderr, usage)
		return 1
	}

	var mode ssi.TriggerMode
	switch modeArg {
	case "auto":
		mode = ssi.TriggerModeAuto
	case "manual":
		mode = ssi.TriggerModeManual
	default:
		fmt.Fprintf(stderr, "unknown mode %q\n%s", modeArg, usage)
		return 1
	}

	// No -log-level flag exists on this tool, so the environment variable
	// is honored unconditionally rather than only as a fallback.
	levelName := "info"
	if v := os.Getenv(logging.EnvLevelName); v != "" {
		levelName = v
	}
	logger := logging.New("text", logging.LevelFromConfig(levelName), stderr)
	logging.Set(logger)

	logger.Info("setup_start", "device", device, "mode", modeArg, "version", version, "commit", commit, "date", date)
	if err := scanner.Setup(context.Background(), device, mode); err != nil {
		logger.Error("setup_failed", "device", device, "error", err)
		metrics.IncError(ssierr.ClassifyMetric(err))
		return 2
	}
	logger.Info("setup_ok", "device", device, "mode", modeArg)
	return 0
}
