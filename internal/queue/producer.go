package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vigilant-eye/facewatch/internal/models"
)

const (
	JobsStreamName         = "JOBS"
	JobsSubject            = "jobs.detect"
	DetectionsStreamName   = "DETECTIONS"
	DetectionsSubjectBase  = "detections"
	detectionsSubjectMatch = DetectionsSubjectBase + ".>"
)

// DetectionSubject is the subject a persisted event is published on.
func DetectionSubject(method models.DetectionMethod) string {
	return DetectionsSubjectBase + "." + string(method)
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        JobsStreamName,
			Subjects:    []string{JobsSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  2 * time.Minute,
			Description: "Queued detection jobs for workers",
		},
		{
			Name:        DetectionsStreamName,
			Subjects:    []string{detectionsSubjectMatch},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Persisted detection events",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishJob enqueues a detection job. The job id doubles as the JetStream
// message id, so a retried submit is deduplicated.
func (p *Producer) PublishJob(ctx context.Context, job models.DetectJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal detect job: %w", err)
	}

	if _, err := p.js.Publish(ctx, JobsSubject, payload, jetstream.WithMsgID(job.JobID.String())); err != nil {
		return fmt.Errorf("publish detect job: %w", err)
	}
	return nil
}

// PublishDetection publishes a persisted detection event for live consumers.
func (p *Producer) PublishDetection(ctx context.Context, method models.DetectionMethod, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal detection: %w", err)
	}

	if _, err := p.js.Publish(ctx, DetectionSubject(method), payload); err != nil {
		return fmt.Errorf("publish detection: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the JOBS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, JobsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
