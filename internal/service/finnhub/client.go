package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	drepo "SignalDNA/internal/domain/repository"
	applogger "SignalDNA/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	DefaultStreamURL = "wss://ws.finnhub.io"
	DefaultTopic     = "general"

	writeWait = 10 * time.Second
)

var ErrNotConnected = errors.New("finnhub not connected")

// Client is a NewsStream backed by the Finnhub websocket.
type Client struct {
	apiKey       string
	streamURL    string
	topics       []string
	pingInterval time.Duration
	dialer       *websocket.Dialer
	log          *applogger.Logger

	mu        sync.Mutex // guards conn and serializes writes
	conn      *websocket.Conn
	connected atomic.Bool
}

// Option configures Client.
type Option func(*Client)

func WithStreamURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.streamURL = u
		}
	}
}

func WithTopics(topics ...string) Option {
	return func(c *Client) {
		if len(topics) > 0 {
			c.topics = append([]string(nil), topics...)
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Finnhub news stream.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		streamURL:    DefaultStreamURL,
		topics:       []string{DefaultTopic},
		pingInterval: 30 * time.Second,
		dialer:       websocket.DefaultDialer,
		log:          applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.streamURL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	c.log.Info("finnhub stream connected", applogger.String("url", c.streamURL))
	return nil
}

type subscribeMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe requests news for every configured topic.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	for _, topic := range c.topics {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(subscribeMessage{Type: "subscribe-news", Symbol: topic}); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		c.log.Info("finnhub news subscribed", applogger.String("topic", topic))
	}
	return nil
}

// Read streams raw frames until the connection fails or ctx is done.
// The error channel receives at most one value; both channels are closed on exit.
func (c *Client) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 256)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		errs <- ErrNotConnected
		close(frames)
		close(errs)
		return frames, errs
	}

	done := make(chan struct{})
	go c.pingLoop(ctx, conn, done)

	go func() {
		defer close(done)
		defer close(frames)
		defer close(errs)

		// unblock ReadMessage on cancellation
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			select {
			case frames <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				c.log.Warn("finnhub ping failed", applogger.Error(err))
				return
			}
		}
	}
}

// Reconnect closes the current connection, dials again and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ drepo.NewsStream = (*Client)(nil)
