package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:    AlertTypeUnhealthy,
		Network: "mainnet",
		Title:   "Refresh failing",
		Message: "5 consecutive refresh cycles failed",
		Fields: map[string]string{
			"endpoint":   "https://s1.ripple.com:51234",
			"last_error": "all endpoints unavailable",
		},
	}
}

func countingServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMultiAlerter_Send_AllChannels(t *testing.T) {
	var slackHits, webhookHits atomic.Int32
	slackSrv := countingServer(t, http.StatusOK, &slackHits)
	webhookSrv := countingServer(t, http.StatusOK, &webhookHits)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(webhookSrv.URL))
	assert.Equal(t, 2, multi.Len())

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(1), slackHits.Load())
	assert.Equal(t, int32(1), webhookHits.Load())
}

func TestMultiAlerter_Cooldown(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, http.StatusOK, &hits)

	now := time.Date(2024, 9, 18, 0, 0, 0, 0, time.UTC)
	multi := NewMultiAlerter(time.Minute, testLogger(), NewWebhookAlerter(srv.URL))
	multi.nowFn = func() time.Time { return now }

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(1), hits.Load(), "second send within cooldown is suppressed")

	recovery := testAlert()
	recovery.Type = AlertTypeRecovery
	require.NoError(t, multi.Send(context.Background(), recovery))
	assert.Equal(t, int32(2), hits.Load(), "cooldown is per alert type")

	now = now.Add(time.Minute)
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(3), hits.Load(), "cooldown expired")
}

func TestMultiAlerter_PartialFailure(t *testing.T) {
	var failHits, goodHits atomic.Int32
	failSrv := countingServer(t, http.StatusInternalServerError, &failHits)
	goodSrv := countingServer(t, http.StatusOK, &goodHits)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failSrv.URL), NewWebhookAlerter(goodSrv.URL))

	err := multi.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned status 500")
	assert.Equal(t, int32(1), goodHits.Load())
}

func TestSlackAlerter_PayloadFormat(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := testAlert()
	a.Type = AlertTypeEndpointsDown
	require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), a))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(captured, &payload))
	text := payload["text"]
	assert.Contains(t, text, ":rotating_light:")
	assert.Contains(t, text, string(AlertTypeEndpointsDown))
	assert.Contains(t, text, "xrpl/mainnet")
	assert.Contains(t, text, "Refresh failing")
	assert.Contains(t, text, "- *endpoint*: https://s1.ripple.com:51234")
}

func TestSlackText_Emoji(t *testing.T) {
	tests := []struct {
		typ   AlertType
		emoji string
	}{
		{AlertTypeUnhealthy, ":warning:"},
		{AlertTypeNoValidatedData, ":warning:"},
		{AlertTypeRecovery, ":white_check_mark:"},
		{AlertTypeEndpointsUp, ":white_check_mark:"},
		{AlertTypeEndpointsDown, ":rotating_light:"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Contains(t, slackText(Alert{Type: tt.typ, Network: "testnet"}), tt.emoji)
		})
	}
}

func TestSlackText_FieldsSorted(t *testing.T) {
	text := slackText(Alert{Type: AlertTypeUnhealthy, Fields: map[string]string{"b": "2", "a": "1"}})
	assert.Less(t, strings.Index(text, "*a*"), strings.Index(text, "*b*"))
}

func TestWebhookAlerter_PayloadFormat(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhookAlerter(srv.URL)
	wh.nowFn = func() time.Time { return time.Date(2024, 9, 18, 18, 40, 0, 0, time.UTC) }
	require.NoError(t, wh.Send(context.Background(), testAlert()))

	assert.Equal(t, "UNHEALTHY", payload["type"])
	assert.Equal(t, "xrpl-insights", payload["service"])
	assert.Equal(t, "mainnet", payload["network"])
	assert.Equal(t, "2024-09-18T18:40:00Z", payload["time"])
	fields, ok := payload["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "all endpoints unavailable", fields["last_error"])
}

func TestWebhookAlerter_Unreachable(t *testing.T) {
	err := NewWebhookAlerter("http://127.0.0.1:1").Send(context.Background(), testAlert())
	assert.Error(t, err)
}

func TestNoopAlerter(t *testing.T) {
	assert.NoError(t, (&NoopAlerter{}).Send(context.Background(), testAlert()))
}
