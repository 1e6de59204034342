package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalDNA/internal/domain/models"
	"SignalDNA/internal/service/hub"
	"SignalDNA/internal/services/rules"
	"SignalDNA/internal/usecase"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

const geoBody = `{"type":"news","data":[{"id":1,"headline":"Geopolitical tensions rise","source":"Reuters"}]}`

type recordingHub struct {
	mu  sync.Mutex
	got []models.SignalUpdate
}

func (h *recordingHub) Broadcast(u models.SignalUpdate) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, u)
	return 1
}

func (h *recordingHub) Count() int { return 1 }

func (h *recordingHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.got)
}

// slowHub holds every broadcast until released.
type slowHub struct {
	release chan struct{}
	started chan models.SignalUpdate
}

func newSlowHub() *slowHub {
	return &slowHub{release: make(chan struct{}), started: make(chan models.SignalUpdate, 1)}
}

func (h *slowHub) Broadcast(u models.SignalUpdate) int {
	h.started <- u
	<-h.release
	return 1
}

func (h *slowHub) Count() int { return 1 }

func postWebhook(t *testing.T, h *WebhookHandler, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodPost, "/webhook/finnhub", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
	}{
		{"wrong secret", testSecret, "nope"},
		{"missing header", testSecret, ""},
		{"unconfigured secret", "", ""},
		{"unconfigured secret with header", "", "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHub{}
			p := usecase.NewSignalPipeline(rules.NewDefaultEngine(), h)
			rec := postWebhook(t, NewWebhookHandler(tt.configured, 0, p, nil), tt.sent, geoBody)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body struct {
				Status int `json:"status"`
				Data   []struct {
					Code string `json:"code"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, http.StatusUnauthorized, body.Status)
			require.Len(t, body.Data, 1)
			assert.Equal(t, "ERR_UNAUTHORIZED", body.Data[0].Code)

			time.Sleep(20 * time.Millisecond)
			assert.Zero(t, h.len())
		})
	}
}

func TestWebhookAcknowledgesAndBroadcasts(t *testing.T) {
	h := &recordingHub{}
	p := usecase.NewSignalPipeline(rules.NewDefaultEngine(), h)
	rec := postWebhook(t, NewWebhookHandler(testSecret, 0, p, nil), testSecret, geoBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acknowledged", rec.Body.String())
	require.Eventually(t, func() bool { return h.len() == 1 }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, models.InstrumentGold, h.got[0].Instrument)
	assert.Equal(t, models.SignalStrongBuy, h.got[0].Signal)
}

func TestWebhookAckNotBlockedByProcessing(t *testing.T) {
	h := newSlowHub()
	defer close(h.release)
	p := usecase.NewSignalPipeline(rules.NewDefaultEngine(), h)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postWebhook(t, NewWebhookHandler(testSecret, 0, p, nil), testSecret, geoBody) }()

	select {
	case rec := <-done:
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Acknowledged", rec.Body.String())
	case <-time.After(time.Second):
		t.Fatal("webhook response waited for the broadcast")
	}

	select {
	case u := <-h.started:
		assert.Equal(t, models.InstrumentGold, u.Instrument)
	case <-time.After(time.Second):
		t.Fatal("event never reached the broadcast")
	}
}

func TestWebhookBroadcastsWithRelativeURL(t *testing.T) {
	h := &recordingHub{}
	p := usecase.NewSignalPipeline(rules.NewDefaultEngine(), h)
	body := `{"type":"news","data":[{"headline":"Geopolitical tensions rise","url":"/relative/path"}]}`
	rec := postWebhook(t, NewWebhookHandler(testSecret, 0, p, nil), testSecret, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return h.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWebhookBodyLimit(t *testing.T) {
	h := &recordingHub{}
	p := usecase.NewSignalPipeline(rules.NewDefaultEngine(), h)

	rec := postWebhook(t, NewWebhookHandler(testSecret, 16, p, nil), testSecret, geoBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.len())
}

type allowNone struct{}

func (allowNone) Allow(string) bool { return false }

func TestRealtimeRateLimited(t *testing.T) {
	e := echo.New()
	NewRealtimeHandler(hub.New(), allowNone{}, nil).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRealtimeDeliversBroadcast(t *testing.T) {
	hb := hub.New(hub.WithPingPeriod(0))
	defer hb.Close()

	e := echo.New()
	NewRealtimeHandler(hb, nil, nil).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hb.Count() == 1 }, time.Second, 5*time.Millisecond)

	u := models.SignalUpdate{
		Instrument: models.InstrumentSPX,
		Signal:     models.SignalBuy,
		Conviction: 7,
		DNA:        [3]int{30, 60, 10},
		Analysis:   "fed",
	}
	assert.Equal(t, 1, hb.Broadcast(u))

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, u, env.Data.Update())
}

type connected bool

func (c connected) IsConnected() bool { return bool(c) }

func TestHealth(t *testing.T) {
	e := echo.New()
	NewHealthHandler(&recordingHub{}, connected(true), rules.NewDefaultEngine()).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data HealthReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, 1, body.Data.Subscribers)
	assert.True(t, body.Data.StreamConnected)
	assert.Equal(t, []string{"geopolitical-gold", "inflation-treasury", "fed-spx"}, body.Data.Rules)
}

func TestHealthWithoutStream(t *testing.T) {
	e := echo.New()
	NewHealthHandler(&recordingHub{}, nil, nil).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body struct {
		Data HealthReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.StreamConnected)
	assert.Empty(t, body.Data.Rules)
}
