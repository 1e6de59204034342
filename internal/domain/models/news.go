package models

import "time"

// NewsArticle is the provider-shaped article carried by Finnhub news frames and webhooks.
type NewsArticle struct {
	Category string `json:"category" default:"general"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline" validate:"required"`
	ID       int64  `json:"id"`
	Image    string `json:"image,omitempty"`
	Related  string `json:"related,omitempty"`
	Source   string `json:"source" default:"finnhub"`
	Summary  string `json:"summary,omitempty"`
	URL      string `json:"url,omitempty"`
}

// NewsBatch is the {type, data} envelope used by both the stream and the webhook.
type NewsBatch struct {
	Type string        `json:"type"`
	Data []NewsArticle `json:"data"`
}

// CanonicalEvent is the normalized news event the rule engine consumes.
// Note: built once by the adapter and passed by value; never persisted.
type CanonicalEvent struct {
	ID          string
	Headline    string
	Body        string
	Source      string
	ReceivedAt  time.Time
	PublishedAt time.Time // zero when the provider omitted it
}

// Origins of raw payloads entering the pipeline.
const (
	OriginStream  = "stream"
	OriginWebhook = "webhook"
	OriginKafka   = "kafka"
)
