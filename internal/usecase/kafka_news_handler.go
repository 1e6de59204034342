package usecase

import (
	"context"
	"errors"
	"time"

	"SignalDNA/internal/domain/models"
	"SignalDNA/internal/service/finnhub"
	pkgkafka "SignalDNA/pkg/kafka"
	applogger "SignalDNA/pkg/logger"
)

// PayloadHandler is the pipeline surface the Kafka handler needs.
type PayloadHandler interface {
	Handle(ctx context.Context, origin string, raw []byte) (models.SignalUpdate, bool, error)
}

// KafkaNewsHandler feeds news records from a Kafka topic into the signal pipeline.
type KafkaNewsHandler struct {
	topic    string
	pipeline PayloadHandler
	log      *applogger.Logger
}

func NewKafkaNewsHandler(topic string, pipeline PayloadHandler, l *applogger.Logger) *KafkaNewsHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaNewsHandler{topic: topic, pipeline: pipeline, log: l}
}

func (h *KafkaNewsHandler) Topic() string { return h.topic }

// Handle processes one record. Bad records are logged and acknowledged; retrying cannot fix them.
func (h *KafkaNewsHandler) Handle(ctx context.Context, b []byte) error {
	_, ok, err := h.pipeline.Handle(ctx, models.OriginKafka, b)
	if err != nil {
		if isPermanent(err) {
			h.log.Warn("kafka news record dropped",
				applogger.String("topic", h.topic),
				applogger.String("trace_id", pkgkafka.TraceID(ctx)),
				applogger.Error(err),
			)
			return nil
		}
		return err
	}
	if start, found := pkgkafka.StartTime(ctx); found && ok {
		h.log.Debug("kafka news record produced signal",
			applogger.String("topic", h.topic),
			applogger.Duration("took_ms", time.Since(start)),
		)
	}
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, finnhub.ErrMalformedPayload) ||
		errors.Is(err, finnhub.ErrEmptyBatch) ||
		errors.Is(err, finnhub.ErrMissingHeadline)
}

var _ pkgkafka.MessageHandler = (*KafkaNewsHandler)(nil)
