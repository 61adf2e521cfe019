package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/styl-solutions/ssi-scanner/internal/logging"
)

// Prometheus counters
var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_frames_sent_total",
		Help: "Total host-originated SSI frames written to the device.",
	})
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_frames_received_total",
		Help: "Total device-originated SSI frames accepted by the link layer.",
	})
	AcksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_acks_received_total",
		Help: "Total ACK frames received in response to host commands.",
	})
	NaksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssi_naks_received_total",
		Help: "Total NAK frames received, labeled by reason.",
	}, []string{"reason"})
	ChecksumFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_checksum_failures_total",
		Help: "Total frames rejected for a checksum mismatch.",
	})
	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_protocol_errors_total",
		Help: "Total frames rejected for malformed length, unexpected source, or unexpected ACK/NAK opcode.",
	})
	TransportTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_transport_timeouts_total",
		Help: "Total read/write operations that exceeded their deadline.",
	})
	SessionAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_session_aborts_total",
		Help: "Total read_barcode calls that aborted before completing the scripted sequence.",
	})
	BufferTooSmallCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssi_buffer_too_small_total",
		Help: "Total reassembled responses that exceeded the caller's output buffer.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality), mirror
// the classification in internal/ssierr.
const (
	ErrTransport      = "transport"
	ErrProtocol       = "protocol"
	ErrNak            = "nak"
	ErrBufferTooSmall = "buffer_too_small"
	ErrSession        = "session"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localFramesSent    uint64
	localFramesRecv    uint64
	localAcks          uint64
	localNaks          uint64
	localChecksumFails uint64
	localProtocolErrs  uint64
	localTimeouts      uint64
	localSessionAborts uint64
	localBufferTooSm   uint64
	localErrors        uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	FramesSent     uint64
	FramesReceived uint64
	Acks           uint64
	Naks           uint64
	ChecksumFails  uint64
	ProtocolErrs   uint64
	Timeouts       uint64
	SessionAborts  uint64
	BufferTooSmall uint64
	Errors         uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		FramesSent:     atomic.LoadUint64(&localFramesSent),
		FramesReceived: atomic.LoadUint64(&localFramesRecv),
		Acks:           atomic.LoadUint64(&localAcks),
		Naks:           atomic.LoadUint64(&localNaks),
		ChecksumFails:  atomic.LoadUint64(&localChecksumFails),
		ProtocolErrs:   atomic.LoadUint64(&localProtocolErrs),
		Timeouts:       atomic.LoadUint64(&localTimeouts),
		SessionAborts:  atomic.LoadUint64(&localSessionAborts),
		BufferTooSmall: atomic.LoadUint64(&localBufferTooSm),
		Errors:         atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncFramesSent() {
	FramesSent.Inc()
	atomic.AddUint64(&localFramesSent, 1)
}

func IncFramesReceived() {
	FramesReceived.Inc()
	atomic.AddUint64(&localFramesRecv, 1)
}

func IncAck() {
	AcksReceived.Inc()
	atomic.AddUint64(&localAcks, 1)
}

func IncNak(reason string) {
	NaksReceived.WithLabelValues(reason).Inc()
	atomic.AddUint64(&localNaks, 1)
}

func IncChecksumFailure() {
	ChecksumFailures.Inc()
	atomic.AddUint64(&localChecksumFails, 1)
}

func IncProtocolError() {
	ProtocolErrors.Inc()
	atomic.AddUint64(&localProtocolErrs, 1)
}

func IncTransportTimeout() {
	TransportTimeouts.Inc()
	atomic.AddUint64(&localTimeouts, 1)
}

func IncSessionAbort() {
	SessionAborts.Inc()
	atomic.AddUint64(&localSessionAborts, 1)
}

func IncBufferTooSmall() {
	BufferTooSmallCount.Inc()
	atomic.AddUint64(&localBufferTooSm, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so the first error does not pay
	// registration latency.
	for _, lbl := range []string{ErrTransport, ErrProtocol, ErrNak, ErrBufferTooSmall, ErrSession} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
