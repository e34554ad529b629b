package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigilant-eye/facewatch/internal/config"
	"github.com/vigilant-eye/facewatch/internal/detection"
	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/observability"
	"github.com/vigilant-eye/facewatch/internal/queue"
	"github.com/vigilant-eye/facewatch/internal/recognition"
	"github.com/vigilant-eye/facewatch/internal/storage"
	"github.com/vigilant-eye/facewatch/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facewatch detection worker",
		"workers", cfg.NATS.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := vision.InitRuntime(cfg.Vision.SharedLibraryPath); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime() //nolint:errcheck

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	provider, err := vision.NewONNXProvider(cfg.Vision)
	if err != nil {
		slog.Error("load vision models", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	gallery := recognition.NewGalleryBuilder(db, minioStore, provider, cfg.Gallery.EmbeddingCacheTTL)
	svc := detection.NewService(minioStore, db, gallery, provider,
		recognition.NewMatcher(cfg.Matching.Tolerance), producer, cfg.Detection.Timeout)

	slog.Info("detection pipeline initialized")

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeJobs(ctx, "detect-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var job models.DetectJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			return fmt.Errorf("%w: unmarshal detect job: %v", queue.ErrPoison, err)
		}

		res, err := svc.DetectStored(ctx, job)
		if err != nil {
			if detection.IsClientError(err) {
				return errors.Join(queue.ErrPoison, fmt.Errorf("job %s: %w", job.JobID, err))
			}
			return fmt.Errorf("job %s: %w", job.JobID, err)
		}

		slog.Info("detect job done", "job_id", job.JobID, "event_id", res.Event.ID,
			"queued_for", time.Since(job.SubmittedAt).String())
		return nil
	}, cfg.NATS.WorkerCount, cfg.Detection.Timeout+30*time.Second)
	if err != nil {
		slog.Error("start job consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
