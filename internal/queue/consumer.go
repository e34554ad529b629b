package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrPoison marks a message that can never succeed; it is terminated rather
// than redelivered.
var ErrPoison = errors.New("poison message")

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeJobs starts consuming detection jobs from the JOBS stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeJobs(ctx context.Context, consumerName string, handler MessageHandler, workerCount int, ackWait time.Duration) error {
	stream, err := c.js.Stream(ctx, JobsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", JobsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    3,
		FilterSubject: JobsSubject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch jobs error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				settle(ctx, msg, handler, "worker", workerID)
			}
		}(i)
	}

	slog.Info("job consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeDetections starts consuming detection events (for API to broadcast via WebSocket).
func (c *Consumer) ConsumeDetections(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, DetectionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", DetectionsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: detectionsSubjectMatch,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				settle(ctx, msg, handler, "consumer", consumerName)
			}
		}
	}()

	slog.Info("detection consumer started", "consumer", consumerName)
	return nil
}

func settle(ctx context.Context, msg jetstream.Msg, handler MessageHandler, logArgs ...any) {
	err := handler(ctx, msg)
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, ErrPoison):
		slog.Error("dropping message", append(logArgs, "subject", msg.Subject(), "error", err)...)
		_ = msg.Term()
	default:
		slog.Error("process message error", append(logArgs, "subject", msg.Subject(), "error", err)...)
		_ = msg.Nak()
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
