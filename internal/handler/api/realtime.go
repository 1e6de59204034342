package api

import (
	"net/http"

	xhttp "SignalDNA/pkg/http"
	applogger "SignalDNA/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// SubscriberServer attaches an upgraded websocket to the broadcast hub.
type SubscriberServer interface {
	Serve(ws *websocket.Conn) error
}

// Limiter decides whether a remote may open another connection.
type Limiter interface {
	Allow(key string) bool
}

// RealtimeHandler upgrades dashboard clients to websocket subscribers.
type RealtimeHandler struct {
	hub      SubscriberServer
	limiter  Limiter
	upgrader websocket.Upgrader
	logger   *applogger.Logger
}

// NewRealtimeHandler creates the /ws handler. A nil limiter admits everyone.
func NewRealtimeHandler(hub SubscriberServer, limiter Limiter, l *applogger.Logger) *RealtimeHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RealtimeHandler{
		hub:     hub,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the dashboard is embedded cross-origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: l.With(applogger.String("component", "realtime")),
	}
}

func (h *RealtimeHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

// Connect upgrades the request and blocks until the subscriber disconnects.
func (h *RealtimeHandler) Connect(c echo.Context) error {
	ip := c.RealIP()
	if h.limiter != nil && !h.limiter.Allow(ip) {
		h.logger.Warn("subscriber rate limited", applogger.String("remote_ip", ip))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many connection attempts"))
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed", applogger.String("remote_ip", ip), applogger.Error(err))
		return nil
	}

	h.logger.Info("subscriber connected", applogger.String("remote_ip", ip))
	if err := h.hub.Serve(ws); err != nil {
		h.logger.Warn("subscriber rejected", applogger.String("remote_ip", ip), applogger.Error(err))
		return nil
	}
	h.logger.Info("subscriber disconnected", applogger.String("remote_ip", ip))
	return nil
}
