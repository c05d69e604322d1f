package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbscratchstudios/splat/internal/capture"
	"github.com/cubbscratchstudios/splat/internal/impersonate"
	"github.com/cubbscratchstudios/splat/internal/message"
	"github.com/cubbscratchstudios/splat/internal/metrics"
	"github.com/cubbscratchstudios/splat/internal/wordfilter"
)

func mustFilter(t *testing.T, terms ...string) *wordfilter.Filter {
	t.Helper()
	f, err := wordfilter.New(wordfilter.Config{Terms: terms})
	require.NoError(t, err)
	return f
}

type registrar interface {
	Register(e *echo.Echo)
}

func serve(t *testing.T, h registrar, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.Register(e)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type stubCapturer struct {
	err error
}

func (s stubCapturer) Capture(ctx context.Context, raw capture.RawEvent) error {
	return s.err
}

func TestCaptureHandlerErrors(t *testing.T) {
	t.Parallel()

	normErr := &capture.NormalizationError{Kind: capture.KindCreate, Err: capture.ErrMissingAuthor}
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{name: "queued", body: `{"kind":"create","conversation_id":"c","message_id":"m"}`, want: http.StatusAccepted},
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
		{name: "normalization", err: normErr, body: `{"kind":"create"}`, want: http.StatusUnprocessableEntity},
		{name: "queue full", err: capture.ErrQueueFull, body: `{}`, want: http.StatusServiceUnavailable},
		{name: "stopped", err: capture.ErrStopped, body: `{}`, want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), body: `{}`, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewCaptureHandler(slog.Default(), stubCapturer{err: tt.err})
			rec := serve(t, h, http.MethodPost, "/captures", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCaptureHandlerStoresMessage(t *testing.T) {
	t.Parallel()

	store := message.NewStore(nil, message.NewMemoryBackend())
	svc := capture.NewService(nil, capture.NewNormalizer(mustFilter(t, "spam")), store, nil, nil, capture.Options{})
	h := NewCaptureHandler(slog.Default(), svc)

	rec := serve(t, h, http.MethodPost, "/captures",
		`{"kind":"create","conversation_id":"c1","message_id":"m1","author":{"id":"u1","username":"alice"},"content":"buy spam","timestamp":"2024-06-01T10:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decode[CaptureAccepted](t, rec)
	assert.Equal(t, "queued", accepted.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	msg, err := store.Get(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "spam", msg.FlaggedTerm)
	assert.Equal(t, "alice", msg.Author.DisplayName)
}

func TestMessageHandler(t *testing.T) {
	t.Parallel()

	store := message.NewStore(nil, message.NewMemoryBackend())
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Put(context.Background(), message.CapturedMessage{
			ConversationID: "c1",
			MessageID:      id,
			Author:         message.Author{ID: "u1", DisplayName: "alice"},
			Body:           []string{"text " + id},
			Status:         message.StatusActive,
			CapturedAt:     at,
			LastModifiedAt: at,
		}))
	}
	h := NewMessageHandler(slog.Default(), store)

	rec := serve(t, h, http.MethodGet, "/conversations/c1/messages?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListMessagesResponse](t, rec)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "m3", list.Items[0].MessageID)
	assert.Equal(t, "m2", list.Items[1].MessageID)

	rec = serve(t, h, http.MethodGet, "/conversations/empty/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/conversations/c1/messages?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodGet, "/conversations/c1/messages/m1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[message.CapturedMessage](t, rec)
	assert.Equal(t, []string{"text m1"}, got.Body)

	rec = serve(t, h, http.MethodGet, "/conversations/c1/messages/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubImpersonator struct {
	result impersonate.Result
	err    error
	target impersonate.Target
}

func (s *stubImpersonator) RequestImpersonation(_ context.Context, _, _ string, target impersonate.Target) (impersonate.Result, error) {
	s.target = target
	return s.result, s.err
}

func TestImpersonationHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result impersonate.Result
		err    error
		body   string
		want   int
	}{
		{name: "complete", result: impersonate.Result{Status: impersonate.OutcomeComplete}, want: http.StatusOK},
		{name: "partial", result: impersonate.Result{Status: impersonate.OutcomePartial}, body: `{"channel_id":"c9"}`, want: http.StatusMultiStatus},
		{name: "failed", result: impersonate.Result{Status: impersonate.OutcomeFailed}, want: http.StatusBadGateway},
		{name: "unknown message", err: message.ErrNotFound, want: http.StatusNotFound},
		{name: "no sink", err: impersonate.ErrNoSink, want: http.StatusServiceUnavailable},
		{name: "sink error", err: errors.New("missing permissions"), want: http.StatusBadGateway},
		{name: "bad body", body: `[`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub := &stubImpersonator{result: tt.result, err: tt.err}
			h := NewImpersonationHandler(slog.Default(), stub)
			rec := serve(t, h, http.MethodPost, "/conversations/c1/messages/m1/impersonations", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			if tt.name == "partial" {
				assert.Equal(t, "c9", stub.target.ChannelID)
			}
		})
	}
}

func TestFilterHandler(t *testing.T) {
	t.Parallel()

	h := NewFilterHandler(mustFilter(t, "Spam"))
	rec := serve(t, h, http.MethodPost, "/filter/check", `{"text":"no SPAM here"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"flagged":true,"term":"spam"}`, rec.Body.String())

	rec = serve(t, NewFilterHandler(nil), http.MethodPost, "/filter/check", `{"text":"spam"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"flagged":false}`, rec.Body.String())
}

func TestMetricsAndPing(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.CaptureEvent("create", metrics.ResultOK)
	rec := serve(t, NewMetricsHandler(m), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "splat_capture_events_total")

	ping := NewPingHandler(slog.Default())
	assert.Equal(t, http.StatusOK, serve(t, ping, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusOK, serve(t, ping, http.MethodHead, "/health", "").Code)
	rec = serve(t, ping, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}
