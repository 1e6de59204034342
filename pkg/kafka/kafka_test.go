package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublishEncodesJSON(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &fakeWriter{}
	p := newProducer(w, &ProducerConfig{Compression: "snappy", Registerer: reg})

	require.NoError(t, p.Publish(context.Background(), "signals", []byte("XAU"), map[string]int{"conviction": 9}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "raw"))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "signals", w.msgs[0].Topic)
	assert.Equal(t, []byte("XAU"), w.msgs[0].Key)
	assert.JSONEq(t, `{"conviction":9}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Nil(t, w.msgs[1].Key)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("signals", "snappy", "ok")))
}

func TestProducerPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, &ProducerConfig{})

	err := p.Publish(context.Background(), "signals", nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

type recordingHandler struct {
	mu    sync.Mutex
	calls int
	fail  int // fail the first n calls
	seen  []string
}

func (h *recordingHandler) Topic() string { return "news" }

func (h *recordingHandler) Handle(ctx context.Context, b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.seen = append(h.seen, TraceID(ctx))
	if h.calls <= h.fail {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(hook ConsumerHook, dlq Writer) *Consumer {
	c := newConsumer(&ConsumerConfig{
		BufferSize: 1,
		RetryMax:   2,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
		DLQTopic:   "news.dlq",
		Hook:       hook,
	})
	c.dlq = dlq
	return c
}

func TestConsumerProcessRetriesThenSucceeds(t *testing.T) {
	h := &recordingHandler{fail: 2}
	c := newTestConsumer(TraceHook(), nil)
	c.RegisterHandler(h)

	c.process(&message{topic: "news", data: []byte(`{}`), km: kafka.Message{
		Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}},
	}})

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, []string{"abc", "abc", "abc"}, h.seen)
}

func TestConsumerProcessDeadLettersAfterRetries(t *testing.T) {
	h := &recordingHandler{fail: 100}
	dlq := &fakeWriter{}
	var errs int
	hook := HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { errs++ }}

	c := newTestConsumer(hook, dlq)
	c.RegisterHandler(h)
	c.process(&message{topic: "news", data: []byte(`{"headline":"x"}`)})

	assert.Equal(t, 3, h.calls, "initial attempt plus RetryMax retries")
	assert.Equal(t, 3, errs)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "news.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, "news", string(dlq.msgs[0].Headers[0].Value))
}

func TestConsumerBeforeHookErrorSkipsHandler(t *testing.T) {
	h := &recordingHandler{}
	dlq := &fakeWriter{}
	hook := HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
		panic("bad hook")
	}}

	c := newTestConsumer(hook, dlq)
	c.RegisterHandler(h)
	c.process(&message{topic: "news", data: []byte(`{}`)})

	assert.Zero(t, h.calls)
	assert.Len(t, dlq.msgs, 1)
}

func TestConsumerStartRequiresHandlers(t *testing.T) {
	c := newConsumer(&ConsumerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, c.Start())
}

func TestNewConsumerFetchBytes(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRegisterer(prometheus.NewRegistry()),
		WithConsumerFetchBytes(1024, 4<<20),
	)
	require.NoError(t, err)
	assert.Equal(t, 1024, c.cfg.MinBytes)
	assert.Equal(t, 4<<20, c.cfg.MaxBytes)

	c, err = NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRegisterer(prometheus.NewRegistry()),
		WithConsumerFetchBytes(0, -1),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, c.cfg.MinBytes)
	assert.Equal(t, int(10e6), c.cfg.MaxBytes)
}
