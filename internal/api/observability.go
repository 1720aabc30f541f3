package api

import (
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smash-arena/internal/anticheat"
)

// Metrics with bounded cardinality (no per-player or per-session labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent simulating one frame",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167},
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_sessions_active",
		Help: "Sessions currently running",
	})

	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_sessions_started_total",
		Help: "Sessions started",
	})

	sessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_sessions_ended_total",
		Help: "Sessions ended",
	})

	messagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_messages_rejected_total",
		Help: "Inbound messages refused by the validator",
	}, []string{"category"}) // input, position, state, combat

	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_escalations_total",
		Help: "Violation tiers crossed",
	}, []string{"tier"}) // warn, kick, ban

	desyncInputs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_desync_inputs_total",
		Help: "Inputs dropped for falling outside the frame window",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Requests or connections rejected before reaching a session",
	}, []string{"reason"}) // rate_limit, origin, unauthorized, ws_ip_limit, ws_total_limit

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_sent_total",
		Help: "WebSocket frames written",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_dropped_total",
		Help: "Outbound frames dropped because a client fell behind",
	})
)

// Metrics exports session activity to Prometheus. It implements
// session.Observer.
type Metrics struct{}

// SessionStarted counts a started session.
func (Metrics) SessionStarted(string) {
	sessionsStarted.Inc()
	sessionsActive.Inc()
}

// SessionEnded counts an ended session.
func (Metrics) SessionEnded(string, string) {
	sessionsEnded.Inc()
	sessionsActive.Dec()
}

// TickObserved records frame timing.
func (Metrics) TickObserved(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// MessageRejected counts a validator rejection and any tier it crossed.
func (Metrics) MessageRejected(category anticheat.Category, escalation anticheat.Tier) {
	messagesRejected.WithLabelValues(category.String()).Inc()
	if escalation != anticheat.TierNone {
		escalations.WithLabelValues(escalation.String()).Inc()
	}
}

// InputDesynced counts a dropped out-of-window input.
func (Metrics) InputDesynced() {
	desyncInputs.Inc()
}

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Port          int // 0 disables; always bound to localhost
	BasicAuthUser string
	BasicAuthPass string
}

// StartDebugServer serves pprof and Prometheus metrics on localhost. The
// returned server is nil when disabled.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	if cfg.Port <= 0 {
		log.Println("📊 Debug server disabled")
		return nil
	}
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("📊 Debug server starting on %s", addr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", addr)
		log.Printf("   - metrics: http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
	return srv
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMetrics records latency and status per route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	})
}

// RecordConnectionRejected increments the rejection counter. reason must be
// one of the bounded values listed on connectionRejected.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections sets the open websocket gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}
