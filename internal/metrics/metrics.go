// Package metrics exposes decode outcomes as Prometheus metrics.
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

// DecodeObserver counts decoded and dropped messages. It satisfies
// decode.Observer.
type DecodeObserver struct {
	decoded  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	captures *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *DecodeObserver {
	f := promauto.With(reg)
	return &DecodeObserver{
		decoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snoop",
			Name:      "messages_decoded_total",
			Help:      "Messages decoded, by source and whether the body decoded cleanly",
		}, []string{"source", "body"}), // body: ok, diagnostic

		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snoop",
			Name:      "messages_dropped_total",
			Help:      "Messages that could not be decoded at all",
		}, []string{"source"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snoop",
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one message",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"source"}),

		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snoop",
			Name:      "captures_total",
			Help:      "Tailed messages offered to the capture store",
		}, []string{"status"}), // status: queued, dropped
	}
}

func (o *DecodeObserver) Decoded(source string, elapsed time.Duration, bodyOK bool) {
	body := "ok"
	if !bodyOK {
		body = "diagnostic"
	}
	o.decoded.WithLabelValues(source, body).Inc()
	o.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (o *DecodeObserver) Dropped(source string) {
	o.dropped.WithLabelValues(source).Inc()
}

// Captured records whether a tailed message made it into the capture buffer.
func (o *DecodeObserver) Captured(queued bool) {
	status := "queued"
	if !queued {
		status = "dropped"
	}
	o.captures.WithLabelValues(status).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
