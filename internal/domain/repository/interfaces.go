package repository

import (
	"context"

	"SignalDNA/internal/domain/models"
)

// NewsStream is a persistent provider connection that yields raw frames.
type NewsStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan []byte, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Broadcaster delivers updates to locally connected subscribers.
type Broadcaster interface {
	Broadcast(u models.SignalUpdate) int
	Count() int
}

// SignalPublisher relays broadcast updates to an external sink.
type SignalPublisher interface {
	Name() string
	Publish(ctx context.Context, u models.SignalUpdate) error
	Close() error
}

// Deduper reports whether an event was already processed recently.
type Deduper interface {
	Seen(ctx context.Context, ev models.CanonicalEvent) (bool, error)
}

type Metrics interface {
	RecordEvent(origin string)
	RecordSignal(instrument, signal string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetSubscribers(n int)
}
