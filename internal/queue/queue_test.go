package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/vigilant-eye/facewatch/internal/models"
)

func TestDetectionSubject(t *testing.T) {
	assert.Equal(t, "detections.image_upload", DetectionSubject(models.MethodImageUpload))
	assert.Equal(t, "detections.queued_upload", DetectionSubject(models.MethodQueuedUpload))
}

// fakeMsg records how a message was settled.
type fakeMsg struct {
	jetstream.Msg
	outcome string
}

func (m *fakeMsg) Subject() string { return JobsSubject }
func (m *fakeMsg) Ack() error      { m.outcome = "ack"; return nil }
func (m *fakeMsg) Nak() error      { m.outcome = "nak"; return nil }
func (m *fakeMsg) Term() error     { m.outcome = "term"; return nil }

func TestSettle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success acks", nil, "ack"},
		{"transient failure naks", errors.New("db down"), "nak"},
		{"poison terminates", errors.Join(ErrPoison, errors.New("bad json")), "term"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &fakeMsg{}
			settle(context.Background(), msg, func(context.Context, jetstream.Msg) error { return tt.err })
			assert.Equal(t, tt.want, msg.outcome)
		})
	}
}
