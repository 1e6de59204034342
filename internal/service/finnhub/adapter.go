package finnhub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SignalDNA/internal/domain/models"
	"SignalDNA/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// FrameTypeNews is the stream frame type that carries articles.
const FrameTypeNews = "news"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEmptyBatch       = errors.New("empty news batch")
	ErrMissingHeadline  = errors.New("article headline is missing")
)

var validate = validator.New()

// DecodeStreamFrame parses one stream frame. Frames that are not news, or carry no
// articles, yield (nil, nil).
func DecodeStreamFrame(raw []byte) ([]models.NewsArticle, error) {
	var batch models.NewsBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode stream frame: %w: %v", ErrMalformedPayload, err)
	}
	if batch.Type != FrameTypeNews || len(batch.Data) == 0 {
		return nil, nil
	}
	return batch.Data, nil
}

// DecodeWebhookBody parses a webhook body. The type field is not checked.
func DecodeWebhookBody(raw []byte) ([]models.NewsArticle, error) {
	var batch models.NewsBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w: %v", ErrMalformedPayload, err)
	}
	if len(batch.Data) == 0 {
		return nil, ErrEmptyBatch
	}
	return batch.Data, nil
}

// DecodeKafkaRecord accepts either a {type,data} envelope or a bare article.
func DecodeKafkaRecord(raw []byte) ([]models.NewsArticle, error) {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode kafka record: %w: %v", ErrMalformedPayload, err)
	}

	trimmed := bytes.TrimSpace(probe.Data)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var arts []models.NewsArticle
		if err := json.Unmarshal(trimmed, &arts); err != nil {
			return nil, fmt.Errorf("decode kafka record data: %w: %v", ErrMalformedPayload, err)
		}
		if len(arts) == 0 {
			return nil, ErrEmptyBatch
		}
		return arts, nil
	}

	var art models.NewsArticle
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode kafka article: %w: %v", ErrMalformedPayload, err)
	}
	return []models.NewsArticle{art}, nil
}

// Decode dispatches on the payload origin.
func Decode(origin string, raw []byte) ([]models.NewsArticle, error) {
	switch origin {
	case models.OriginStream:
		return DecodeStreamFrame(raw)
	case models.OriginWebhook:
		return DecodeWebhookBody(raw)
	case models.OriginKafka:
		return DecodeKafkaRecord(raw)
	default:
		return nil, fmt.Errorf("unknown origin %q: %w", origin, ErrMalformedPayload)
	}
}

// Normalize builds the canonical event from the first article of a batch.
// Remaining articles are ignored.
func Normalize(articles []models.NewsArticle, source string, receivedAt time.Time) (models.CanonicalEvent, error) {
	if len(articles) == 0 {
		return models.CanonicalEvent{}, ErrEmptyBatch
	}

	art := articles[0]
	if strings.TrimSpace(art.Headline) == "" {
		return models.CanonicalEvent{}, ErrMissingHeadline
	}
	if err := defaults.Set(&art); err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("article defaults: %w", err)
	}
	if err := validate.Struct(&art); err != nil {
		return models.CanonicalEvent{}, fmt.Errorf("validate article: %w: %v", ErrMalformedPayload, err)
	}

	if source == "" {
		source = art.Source
	}

	ev := models.CanonicalEvent{
		Headline:    art.Headline,
		Body:        art.Summary,
		Source:      source,
		ReceivedAt:  receivedAt,
		PublishedAt: util.FromUnix(art.Datetime),
	}
	if art.ID != 0 {
		ev.ID = strconv.FormatInt(art.ID, 10)
	}
	return ev, nil
}
