package api

import (
	xhttp "SignalDNA/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthReport is the /healthz payload.
type HealthReport struct {
	Status          string   `json:"status"`
	Subscribers     int      `json:"subscribers"`
	StreamConnected bool     `json:"stream_connected"`
	Rules           []string `json:"rules"`
}

type subscriberCounter interface{ Count() int }

type streamState interface{ IsConnected() bool }

type ruleLister interface{ Rules() []string }

// HealthHandler reports liveness plus a few runtime gauges.
type HealthHandler struct {
	hub    subscriberCounter
	stream streamState
	rules  ruleLister
}

// NewHealthHandler creates the handler; stream may be nil when streaming ingestion is disabled.
func NewHealthHandler(hub subscriberCounter, stream streamState, rules ruleLister) *HealthHandler {
	return &HealthHandler{hub: hub, stream: stream, rules: rules}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	r := HealthReport{Status: "ok", Rules: []string{}}
	if h.hub != nil {
		r.Subscribers = h.hub.Count()
	}
	if h.stream != nil {
		r.StreamConnected = h.stream.IsConnected()
	}
	if h.rules != nil {
		r.Rules = h.rules.Rules()
	}
	return xhttp.SuccessResponse(c, r)
}
