// Package metrics exposes Prometheus collectors for generation, rate limiting
// and layout.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation metrics
	generationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecturer_generation_requests_total",
			Help: "Total number of generation attempts",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lecturer_generation_duration_seconds",
			Help:    "Generation attempt duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 25, 50, 100, 200},
		},
		[]string{"provider"},
	)

	// Rate limiting metrics
	rateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lecturer_ratelimit_wait_seconds",
			Help:    "Time spent waiting for rate limiter admission",
			Buckets: []float64{0, .1, .5, 1, 5, 10, 30, 60},
		},
	)

	// Page metrics
	pagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lecturer_pages_processed_total",
			Help: "Total number of pages processed",
		},
		[]string{"status"}, // status: explained, blank, failed
	)

	blankRetryPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lecturer_blank_retry_passes_total",
			Help: "Total number of blank-page remediation passes",
		},
	)

	// Layout metrics
	layoutColumns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lecturer_layout_columns",
			Help:    "Number of columns chosen per composed page",
			Buckets: []float64{1, 2, 3},
		},
	)

	continuationPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lecturer_continuation_pages_total",
			Help: "Total number of continuation pages emitted",
		},
	)

	truncatedPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lecturer_truncated_pages_total",
			Help: "Total number of pages whose explanation did not fit",
		},
	)

	clippedPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lecturer_clipped_pages_total",
			Help: "Total number of pages whose rich text ran past a column",
		},
	)
)

// Status label values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusExplained = "explained"
	StatusBlank     = "blank"
	StatusFailed    = "failed"
)

// ObserveGeneration records one generation attempt.
func ObserveGeneration(provider string, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	generationRequestsTotal.WithLabelValues(provider, status).Inc()
	generationDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRateLimitWait records time spent blocked in the limiter.
func ObserveRateLimitWait(d time.Duration) {
	rateLimitWait.Observe(d.Seconds())
}

// PageProcessed counts a page by outcome.
func PageProcessed(status string) {
	pagesProcessedTotal.WithLabelValues(status).Inc()
}

// BlankRetryPass counts one remediation pass.
func BlankRetryPass() {
	blankRetryPasses.Inc()
}

// ObserveLayout records the layout outcome of a composed page.
func ObserveLayout(columns int, continued, truncated, clipped bool) {
	layoutColumns.Observe(float64(columns))
	if continued {
		continuationPages.Inc()
	}
	if truncated {
		truncatedPages.Inc()
	}
	if clipped {
		clippedPages.Inc()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
