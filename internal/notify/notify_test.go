package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "batch_failed", "batch 3 failed", "details"))
	assert.Equal(t, []string{"batch 3 failed"}, a.titles)
	assert.Equal(t, []string{"batch 3 failed"}, b.titles)
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"batch_failed"}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "batch_settled", "settled", "details"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(ctx, "batch_failed", "failed", "details"))
	assert.Equal(t, []string{"failed"}, s.titles)

	// NotifyAll bypasses the filter.
	require.NoError(t, n.NotifyAll(ctx, "anything", "details"))
	assert.Len(t, s.titles, 2)
}

func TestNotifyOneFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), "batch_failed", "failed", "details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"failed"}, good.titles)
}

func TestNotifyNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.Notify(context.Background(), "batch_failed", "failed", "details"))
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token123", "chat456")
	s.baseURL = srv.URL

	require.NoError(t, s.Send(context.Background(), "batch 3 failed", "all escrow refunded"))
	assert.Equal(t, "/bottoken123/sendMessage", gotPath)
	assert.Equal(t, "chat456", gotBody["chat_id"])
	assert.Equal(t, "*batch 3 failed*\nall escrow refunded", gotBody["text"])
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat")
	s.baseURL = srv.URL
	assert.Error(t, s.Send(context.Background(), "t", "m"))
}

func TestDiscordSender(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "batch 3 failed", "all escrow refunded"))
	assert.Equal(t, "**batch 3 failed**\nall escrow refunded", gotBody["content"])
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	assert.Error(t, s.Send(context.Background(), "t", "m"))
}
