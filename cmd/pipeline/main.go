// Command pipeline runs the streaming demo end to end: synthetic producer,
// valid-event consumer, dead-letter consumer, and health monitor against the
// configured bus transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/bus"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/config"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.NewDefaultLogger(slog.LevelInfo)

	b, err := bus.Build(bus.Options{
		Transport:          cfg.Transport,
		KafkaBrokers:       cfg.KafkaBrokers,
		KafkaConsumerGroup: cfg.KafkaConsumerGroup,
	}, log)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, b, log)
	if err != nil {
		return err
	}

	if cfg.MetricsEnabled {
		go serveMetrics(cfg.MetricsPort, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		return err
	}

	snapshot := p.Metrics().Snapshot()
	fmt.Printf("events produced: %d\n", snapshot.EventsProduced)
	fmt.Printf("valid events consumed: %d\n", snapshot.ValidEventsConsumed)
	fmt.Printf("dead-letter events consumed: %d\n", snapshot.DeadLetterEventsConsumed)
	fmt.Printf("events transformed: %d\n", snapshot.EventsTransformed)
	fmt.Printf("events written: %d\n", snapshot.EventsWritten)
	fmt.Printf("dead-letter events: %d\n", snapshot.DeadLetterEvents)
	fmt.Printf("errors: %d\n", snapshot.Errors)
	fmt.Printf("batches processed: %d\n", snapshot.BatchesProcessed)
	fmt.Printf("success rate: %.2f%%\n", snapshot.SuccessRate)
	fmt.Printf("events/second: %.2f\n", snapshot.EventsPerSecond)

	report, err := p.ReprocessDeadLetters()
	if err != nil {
		return err
	}
	if report.Analysis.TotalRecords > 0 {
		fmt.Printf("dead letters analyzed: %d (retryable %d)\n",
			report.Analysis.TotalRecords, report.Analysis.RetryableCount)
		fmt.Printf("reprocess viable: %d, still failing: %d\n",
			report.Viable, report.StillFail)
		for _, rec := range report.Analysis.Recommendations {
			fmt.Printf("recommendation: %s\n", rec)
		}
	}
	return nil
}

func serveMetrics(port int, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Info("serving metrics", logging.LogFields{"addr": addr})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", err, nil)
	}
}
