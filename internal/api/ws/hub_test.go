package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilant-eye/facewatch/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() == before+1 }, time.Second, 10*time.Millisecond)
	return conn
}

func event(method string, known int) *dto.WSEvent {
	return &dto.WSEvent{
		Type: "detection_created",
		Data: dto.DetectionEventResponse{ID: uuid.New(), Method: method, TotalFaces: known, KnownFaces: known},
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	sent := event("image_upload", 1)
	hub.BroadcastEvent(sent)

	got := readEvent(t, conn)
	assert.Equal(t, "detection_created", got.Type)
	assert.Equal(t, sent.Data.ID, got.Data.ID)
}

func TestHubAppliesFilters(t *testing.T) {
	hub, url := startHub(t)
	queued := dial(t, hub, url+"?method=queued_upload")
	hits := dial(t, hub, url+"?matches_only=true")

	miss := event("image_upload", 0)
	hit := event("queued_upload", 2)
	hub.BroadcastEvent(miss)
	hub.BroadcastEvent(hit)

	assert.Equal(t, hit.Data.ID, readEvent(t, queued).Data.ID)
	assert.Equal(t, hit.Data.ID, readEvent(t, hits).Data.ID)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
