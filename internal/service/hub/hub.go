// Package hub fans signal updates out to connected websocket subscribers.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"SignalDNA/internal/domain/models"
	drepo "SignalDNA/internal/domain/repository"
	applogger "SignalDNA/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	defaultPingPeriod = (pongWait * 9) / 10

	// Clients only send control frames; anything larger is a misbehaving peer.
	maxMessageSize = 512

	defaultSendBuffer = 64
)

var ErrClosed = errors.New("hub closed")

// Conn is the write side of a subscriber connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one connected dashboard client.
type Subscriber struct {
	id   string
	conn Conn
	send chan []byte
	done chan struct{}
}

// ID returns the generated subscriber id.
func (s *Subscriber) ID() string { return s.id }

// Done is closed once the subscriber's writer has exited.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Hub owns the subscriber set.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool

	// serializes fan-out so every subscriber sees broadcasts in the same order
	bmu sync.Mutex
	wg  sync.WaitGroup

	sendBuffer int
	writeWait  time.Duration
	pingPeriod time.Duration
	log        *applogger.Logger
	metrics    drepo.Metrics
}

// Option configures Hub.
type Option func(*Hub)

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithWriteWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeWait = d
		}
	}
}

// WithPingPeriod sets the keep-alive interval; zero disables pings.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) { h.pingPeriod = d }
}

func WithLogger(l *applogger.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[*Subscriber]struct{}),
		sendBuffer: defaultSendBuffer,
		writeWait:  defaultWriteWait,
		pingPeriod: defaultPingPeriod,
		log:        applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers conn and starts its writer.
func (h *Hub) Subscribe(conn Conn) (*Subscriber, error) {
	s := &Subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.wg.Add(1)
	h.mu.Unlock()

	go h.writePump(s)

	h.reportCount(n)
	h.log.Info("subscriber connected", applogger.String("subscriber_id", s.id), applogger.Int("total", n))
	return s, nil
}

// Unsubscribe removes s. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		close(s.send)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.reportCount(n)
		h.log.Info("subscriber disconnected", applogger.String("subscriber_id", s.id), applogger.Int("total", n))
	}
}

// Broadcast encodes u once and queues it for every subscriber. It never blocks on a
// subscriber: one whose buffer is full is evicted. Returns the number of subscribers
// the frame was handed to.
func (h *Hub) Broadcast(u models.SignalUpdate) int {
	frame, err := json.Marshal(models.Envelope{Type: models.EventSignalUpdate, Data: u.Payload()})
	if err != nil {
		h.log.Error("encode signal update", applogger.Error(err))
		return 0
	}
	return h.BroadcastFrame(frame)
}

// BroadcastFrame queues a pre-encoded frame for every subscriber.
func (h *Hub) BroadcastFrame(frame []byte) int {
	h.bmu.Lock()
	defer h.bmu.Unlock()

	var (
		delivered int
		slow      []*Subscriber
	)

	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- frame:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("evicting slow subscriber", applogger.String("subscriber_id", s.id))
		if h.metrics != nil {
			h.metrics.RecordError("subscriber_slow")
		}
		h.Unsubscribe(s)
	}
	return delivered
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and waits for their writers to exit.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()

	h.reportCount(0)
	h.wg.Wait()
	return nil
}

func (h *Hub) reportCount(n int) {
	if h.metrics != nil {
		h.metrics.SetSubscribers(n)
	}
}

func (h *Hub) writePump(s *Subscriber) {
	var tick <-chan time.Time
	if h.pingPeriod > 0 {
		ticker := time.NewTicker(h.pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		_ = s.conn.Close()
		close(s.done)
		h.wg.Done()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Warn("subscriber write failed", applogger.String("subscriber_id", s.id), applogger.Error(err))
				if h.metrics != nil {
					h.metrics.RecordError("subscriber_write")
				}
				h.Unsubscribe(s)
				return
			}
		case <-tick:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Unsubscribe(s)
				return
			}
		}
	}
}

// Serve subscribes ws and blocks reading from it until the peer goes away.
// Client frames are discarded; reading only detects disconnects and handles pongs.
func (h *Hub) Serve(ws *websocket.Conn) error {
	s, err := h.Subscribe(ws)
	if err != nil {
		_ = ws.Close()
		return err
	}
	defer h.Unsubscribe(s)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("subscriber read error", applogger.String("subscriber_id", s.id), applogger.Error(err))
			}
			return nil
		}
	}
}

var _ drepo.Broadcaster = (*Hub)(nil)
