// Package metrics exposes Prometheus instrumentation for the extraction
// pipeline.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BlocksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firehose_client",
		Name:      "blocks_received_total",
		Help:      "Stream responses received, by fork step.",
	}, []string{"step"})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "firehose_client",
		Name:      "decode_failures_total",
		Help:      "Responses that could not be decoded into a block.",
	})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "firehose_client",
		Name:      "stream_reconnects_total",
		Help:      "Times the block stream was re-opened from a retained cursor.",
	})

	HeadBlockNum = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "firehose_client",
		Name:      "head_block_num",
		Help:      "Highest block number processed so far.",
	})

	FinalBlockNum = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "firehose_client",
		Name:      "final_block_num",
		Help:      "Highest block number marked irreversible.",
	})
)

// Serve exposes /metrics on addr in a background goroutine. Errors are logged
// rather than returned; metrics are best-effort and never block extraction.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server stopped", "error", err)
		}
	}()
}
