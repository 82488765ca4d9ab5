package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blendtrade/auctiond/internal/domain"
)

// fakeBus serves scripted stream entries and quiet pub/sub subscriptions.
type fakeBus struct {
	streams map[string][]domain.StreamMessage
}

func (f *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (f *fakeBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeBus) StreamRead(_ context.Context, stream, _ string, _ int) ([]domain.StreamMessage, error) {
	return f.streams[stream], nil
}

func newTestHubServer(t *testing.T, bus domain.SignalBus) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := NewHub(bus, func() domain.BatchSnapshot {
		return domain.BatchSnapshot{BatchID: 7, Market: "ETH-USDC", Phase: domain.PhaseCommit}
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return srv
}

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHubConnectPushesSnapshot(t *testing.T) {
	srv := newTestHubServer(t, &fakeBus{})
	conn := dialHub(t, srv, "")

	frame := readFrame(t, conn)
	assert.Equal(t, "snapshot", frame["type"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, float64(7), payload["batch_id"])
	assert.Equal(t, "ETH-USDC", payload["market"])
}

func TestHubReplaysStreamsSinceID(t *testing.T) {
	bus := &fakeBus{streams: map[string][]domain.StreamMessage{
		"stream:ch:phase": {
			{ID: "1-0", Payload: []byte(`{"event":"phase_changed","phase":"reveal"}`)},
			{ID: "2-0", Payload: []byte(`{"event":"phase_changed","phase":"settling"}`)},
		},
	}}
	srv := newTestHubServer(t, bus)
	conn := dialHub(t, srv, "?since=0")

	frame := readFrame(t, conn)
	require.Equal(t, "snapshot", frame["type"])

	first := readFrame(t, conn)
	assert.Equal(t, "replay", first["type"])
	assert.Equal(t, "ch:phase", first["channel"])
	assert.Equal(t, "1-0", first["id"])
	payload := first["payload"].(map[string]any)
	assert.Equal(t, "reveal", payload["phase"])

	second := readFrame(t, conn)
	assert.Equal(t, "replay", second["type"])
	assert.Equal(t, "2-0", second["id"])
}

func TestHubNoReplayWithoutSince(t *testing.T) {
	bus := &fakeBus{streams: map[string][]domain.StreamMessage{
		"stream:ch:phase": {{ID: "1-0", Payload: []byte(`{}`)}},
	}}
	srv := newTestHubServer(t, bus)
	conn := dialHub(t, srv, "")

	frame := readFrame(t, conn)
	require.Equal(t, "snapshot", frame["type"])

	// The streams are only consulted when the client asks to resume.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
