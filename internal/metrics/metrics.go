package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors
var (
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_bytes_total",
		Help: "Total bytes received from the device.",
	})
	DecodedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decoded_frames_total",
		Help: "Frames decoded into caller sinks, by kind.",
	}, []string{"kind"})
	SkippedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skipped_frames_total",
		Help: "Valid frames consumed without decoding (no sink for the kind), by kind.",
	}, []string{"kind"})
	ResyncBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resync_bytes_total",
		Help: "Bytes skipped while searching for a frame boundary.",
	})
	PendingReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pending_reads_total",
		Help: "Reads that stopped on a full sink with frames left in the buffer.",
	})
	BufferFill = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_buffer_bytes",
		Help: "Unconsumed bytes in the stream buffer after the last read.",
	})
	TCPTxRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_records_total",
		Help: "Total records sent to TCP clients.",
	})
	NATSPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nats_published_records_total",
		Help: "Total records published to NATS.",
	})
	NATSDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nats_dropped_records_total",
		Help: "Records dropped because the publish queue was full.",
	})
	HubDroppedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_records_total",
		Help: "Total records dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued records among clients in the last broadcast.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued records per client in the last broadcast.",
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

// Error label constants (stable label values to bound cardinality)
const (
	ErrReadTimeout     = "read_timeout"
	ErrDisconnected    = "disconnected"
	ErrBufferFull      = "buffer_full"
	ErrClosed          = "closed"
	ErrSerialRead      = "serial_read"
	ErrHandshake       = "device_handshake"
	ErrClientHandshake = "client_handshake"
	ErrTCPRead         = "tcp_read"
	ErrTCPWrite        = "tcp_write"
	ErrNATSPublish     = "nats_publish"
	ErrNATSOverflow    = "nats_overflow"
)

var errorLabels = []string{
	ErrReadTimeout, ErrDisconnected, ErrBufferFull, ErrClosed, ErrSerialRead,
	ErrHandshake, ErrClientHandshake, ErrTCPRead, ErrTCPWrite,
	ErrNATSPublish, ErrNATSOverflow,
}

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", readyHandler)

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

func readyHandler(w http.ResponseWriter, r *http.Request) {
	if IsReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready\n"))
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localRxBytes    uint64
	localFrames     uint64
	localSkipped    uint64
	localResync     uint64
	localPending    uint64
	localBufFill    uint64
	localTCPTx      uint64
	localPublished  uint64
	localPubDrops   uint64
	localHubDrop    uint64
	localHubKick    uint64
	localHubReject  uint64
	localErrors     uint64
	localHubClients uint64
	localFanout     uint64
	localQDMax      uint64
	localQDAvg      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	RxBytes       uint64
	Frames        uint64
	Skipped       uint64
	Resyncs       uint64
	Pending       uint64
	BufferFill    uint64
	TCPTx         uint64
	Published     uint64
	PublishDrops  uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		RxBytes:       atomic.LoadUint64(&localRxBytes),
		Frames:        atomic.LoadUint64(&localFrames),
		Skipped:       atomic.LoadUint64(&localSkipped),
		Resyncs:       atomic.LoadUint64(&localResync),
		Pending:       atomic.LoadUint64(&localPending),
		BufferFill:    atomic.LoadUint64(&localBufFill),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		Published:     atomic.LoadUint64(&localPublished),
		PublishDrops:  atomic.LoadUint64(&localPubDrops),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
	}
}

// Wrapper helpers to keep call sites simple.
func AddSerialRxBytes(n int) {
	SerialRxBytes.Add(float64(n))
	atomic.AddUint64(&localRxBytes, uint64(n))
}

// IncFrame counts one decoded frame of the given kind.
func IncFrame(kind string) {
	DecodedFrames.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localFrames, 1)
}

func IncFrameSkipped(kind string) {
	SkippedFrames.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localSkipped, 1)
}

func AddResync(n int) {
	ResyncBytes.Add(float64(n))
	atomic.AddUint64(&localResync, uint64(n))
}

func IncPending() {
	PendingReads.Inc()
	atomic.AddUint64(&localPending, 1)
}

func SetBufferFill(n int) {
	BufferFill.Set(float64(n))
	atomic.StoreUint64(&localBufFill, uint64(n))
}

func AddTCPTx(n int) {
	TCPTxRecords.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncPublished() {
	NATSPublished.Inc()
	atomic.AddUint64(&localPublished, 1)
}

func IncPublishDrop() {
	NATSDropped.Inc()
	atomic.AddUint64(&localPubDrops, 1)
}

func IncHubDrop() {
	HubDroppedRecords.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error series so dashboards see zeros before the first error.
	for _, lbl := range errorLabels {
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
	if fn == nil { // not set yet: report ready so the endpoint doesn't flap
		return true
	}
	return fn()
}
