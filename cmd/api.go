package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jrhatch/mnemo/pkg/memory"
	"github.com/jrhatch/mnemo/pkg/telemetry"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API server",
	Long: `Serve the memory layer over HTTP.

Endpoints live under /v1/; prometheus metrics are exposed on /metrics
and a liveness probe on /healthz. A background sweeper enforces tier
limits while the server runs.`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().String("listen", ":8080", "Listen address")
	apiCmd.Flags().Duration("sweep-interval", time.Hour, "Background enforcement interval")
	apiCmd.Flags().Bool("trace", false, "Enable OpenTelemetry tracing")
	apiCmd.Flags().String("trace-endpoint", "", "OTLP gRPC collector endpoint (empty = stdout)")
}

// httpMetrics instruments the API routes.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	factory := promauto.With(reg)
	return &httpMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mnemo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *httpMetrics) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func runAPI(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	sweepInterval, _ := cmd.Flags().GetDuration("sweep-interval")
	traceEnabled, _ := cmd.Flags().GetBool("trace")
	traceEndpoint, _ := cmd.Flags().GetString("trace-endpoint")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:  traceEnabled,
		Endpoint: traceEndpoint,
		Insecure: traceEndpoint != "",
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(ctx) }()

	sweeper := memory.NewSweeper(a.tiers, a.store, sweepInterval, a.logger)
	if err := sweeper.RunOnce(ctx); err != nil {
		a.logger.Warn("startup enforcement failed", "err", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	metrics := newHTTPMetrics(a.registry)
	api := &MemoryAPI{facade: a.facade}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, metrics.instrument)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api server listening", "addr", listen)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-sigCh:
		a.logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
