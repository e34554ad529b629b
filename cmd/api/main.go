package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vigilant-eye/facewatch/internal/api"
	"github.com/vigilant-eye/facewatch/internal/api/handlers"
	"github.com/vigilant-eye/facewatch/internal/api/ws"
	"github.com/vigilant-eye/facewatch/internal/config"
	"github.com/vigilant-eye/facewatch/internal/detection"
	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/observability"
	"github.com/vigilant-eye/facewatch/internal/queue"
	"github.com/vigilant-eye/facewatch/internal/recognition"
	"github.com/vigilant-eye/facewatch/internal/stats"
	"github.com/vigilant-eye/facewatch/internal/storage"
	"github.com/vigilant-eye/facewatch/internal/vision"
	"github.com/vigilant-eye/facewatch/pkg/dto"
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
	gin.SetMode(gin.ReleaseMode)

	slog.Info("starting facewatch API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub fed by the DETECTIONS stream, so events from workers show up too.
	hub := ws.NewHub()
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create detection consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeDetections(ctx, "api-detections", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.DetectionEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return fmt.Errorf("%w: %v", queue.ErrPoison, err)
		}
		hub.BroadcastEvent(&dto.WSEvent{Type: "detection_created", Data: handlers.EventResponse(ev)})
		return nil
	})
	if err != nil {
		slog.Warn("start detection consumer", "error", err)
	}

	// Face detection needs ONNX Runtime; without it the rest of the API still serves.
	var detector handlers.Detector
	if err := vision.InitRuntime(cfg.Vision.SharedLibraryPath); err != nil {
		slog.Warn("onnx runtime init failed, /v1/detect unavailable", "error", err)
	} else {
		defer vision.DestroyRuntime() //nolint:errcheck
		provider, err := vision.NewONNXProvider(cfg.Vision)
		if err != nil {
			slog.Warn("vision models failed to load, /v1/detect unavailable", "error", err)
		} else {
			defer provider.Close()
			gallery := recognition.NewGalleryBuilder(db, minioStore, provider, cfg.Gallery.EmbeddingCacheTTL)
			detector = detection.NewService(minioStore, db, gallery, provider,
				recognition.NewMatcher(cfg.Matching.Tolerance), producer, cfg.Detection.Timeout)
			slog.Info("face detection ready", "tolerance", cfg.Matching.Tolerance)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKeys:        cfg.Server.APIKeys,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		DB:             db,
		Images:         minioStore,
		Detector:       detector,
		Jobs:           producer,
		Reporter:       stats.NewAggregator(db, cfg.Stats),
		Hub:            hub,
		Checks: map[string]handlers.CheckFunc{
			"postgres": db.Ping,
			"minio":    minioStore.Ping,
			"nats":     func(context.Context) error { return producer.Ping() },
		},
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Detection.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
