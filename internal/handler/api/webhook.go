package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"SignalDNA/internal/domain/models"
	xhttp "SignalDNA/pkg/http"
	applogger "SignalDNA/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Finnhub-Secret"

// DefaultMaxBodyBytes bounds webhook bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// PayloadProcessor runs one raw payload through the signal pipeline.
type PayloadProcessor interface {
	Process(ctx context.Context, origin string, raw []byte)
}

// WebhookHandler receives Finnhub news pushes.
type WebhookHandler struct {
	secret   []byte
	maxBody  int64
	pipeline PayloadProcessor
	logger   *applogger.Logger
}

// NewWebhookHandler creates the webhook receiver. An empty secret rejects every request.
func NewWebhookHandler(secret string, maxBody int64, pipeline PayloadProcessor, l *applogger.Logger) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &WebhookHandler{
		secret:   []byte(secret),
		maxBody:  maxBody,
		pipeline: pipeline,
		logger:   l.With(applogger.String("component", "webhook")),
	}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook/finnhub", h.Receive)
}

// Receive authenticates the caller, acknowledges, then processes the body in the background.
func (h *WebhookHandler) Receive(c echo.Context) error {
	if !h.authorized(c.Request().Header.Get(SecretHeader)) {
		h.logger.Warn("unauthorized webhook attempt",
			applogger.String("remote_ip", c.RealIP()),
			applogger.String("user_agent", c.Request().UserAgent()),
		)
		return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid webhook secret"))
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBody+1))
	if err != nil {
		h.logger.Warn("webhook body read failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("unreadable body").WithError(err))
	}
	if int64(len(body)) > h.maxBody {
		h.logger.Warn("webhook body too large", applogger.Int64("max_bytes", h.maxBody))
		return xhttp.AppErrorResponse(c, xhttp.PayloadTooLargeError(h.maxBody))
	}

	go h.pipeline.Process(context.Background(), models.OriginWebhook, body)

	return xhttp.TextResponse(c, http.StatusOK, "Acknowledged")
}

func (h *WebhookHandler) authorized(got string) bool {
	if len(h.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), h.secret) == 1
}
