package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"SignalDNA/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream serves one batch of frames per connection, then fails.
type fakeStream struct {
	mu         sync.Mutex
	sessions   [][]string
	reconnects int
	failDial   int
	failFirst  bool
	connected  bool
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFirst {
		s.failFirst = false
		return errors.New("dial failed")
	}
	s.connected = true
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error { return nil }

func (s *fakeStream) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	s.mu.Lock()
	var frames []string
	if len(s.sessions) > 0 {
		frames, s.sessions = s.sessions[0], s.sessions[1:]
	}
	s.mu.Unlock()

	out := make(chan []byte, len(frames))
	errs := make(chan error, 1)
	for _, f := range frames {
		out <- []byte(f)
	}
	errs <- errors.New("connection reset")
	close(out)
	close(errs)
	return out, errs
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	if s.failDial > 0 {
		s.failDial--
		return errors.New("dial failed")
	}
	if len(s.sessions) == 0 {
		return errors.New("server gone")
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type recordingProcessor struct {
	mu     sync.Mutex
	frames []string
}

func (p *recordingProcessor) Process(_ context.Context, origin string, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, origin+":"+string(raw))
}

func (p *recordingProcessor) got() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.frames...)
}

func waitDone(t *testing.T, c *NewsCollector) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestCollectorStopsOnErrorWithoutReconnect(t *testing.T) {
	stream := &fakeStream{sessions: [][]string{{"a", "b"}, {"c"}}}
	proc := &recordingProcessor{}
	c := NewNewsCollector(stream, proc, metrics.Noop{}, ReconnectPolicy{}, nil)

	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	assert.Equal(t, []string{"stream:a", "stream:b"}, proc.got())
	assert.Zero(t, stream.reconnects)
}

func TestCollectorReconnectsWhenEnabled(t *testing.T) {
	stream := &fakeStream{sessions: [][]string{{"a"}, {"b"}}, failDial: 1}
	proc := &recordingProcessor{}
	policy := ReconnectPolicy{Enabled: true, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, MaxAttempts: 2}
	c := NewNewsCollector(stream, proc, metrics.Noop{}, policy, nil)

	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	// session a, one failed dial, session b, then both attempts fail and the collector gives up
	assert.Equal(t, []string{"stream:a", "stream:b"}, proc.got())
	assert.Equal(t, 4, stream.reconnects)
}

func TestCollectorProcessesFramesBufferedBeforeError(t *testing.T) {
	var session []string
	var want []string
	for i := 0; i < 100; i++ {
		f := fmt.Sprintf("f%d", i)
		session = append(session, f)
		want = append(want, "stream:"+f)
	}
	stream := &fakeStream{sessions: [][]string{session}}
	proc := &recordingProcessor{}
	c := NewNewsCollector(stream, proc, metrics.Noop{}, ReconnectPolicy{}, nil)

	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	assert.Equal(t, want, proc.got())
}

func TestCollectorFirstConnectFailure(t *testing.T) {
	t.Run("reconnect disabled", func(t *testing.T) {
		stream := &fakeStream{sessions: [][]string{{"a"}}, failFirst: true}
		c := NewNewsCollector(stream, &recordingProcessor{}, metrics.Noop{}, ReconnectPolicy{}, nil)
		assert.Error(t, c.Start(context.Background()))
	})

	t.Run("reconnect enabled", func(t *testing.T) {
		stream := &fakeStream{sessions: [][]string{{"a"}}, failFirst: true}
		proc := &recordingProcessor{}
		policy := ReconnectPolicy{Enabled: true, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, MaxAttempts: 1}
		c := NewNewsCollector(stream, proc, metrics.Noop{}, policy, nil)

		require.NoError(t, c.Start(context.Background()))
		waitDone(t, c)

		// one dial that recovers, session a, then the single attempt finds the server gone
		assert.Equal(t, []string{"stream:a"}, proc.got())
		assert.Equal(t, 2, stream.reconnects)
	})
}

func TestCollectorStopsOnCancel(t *testing.T) {
	stream := &blockingStream{fakeStream: fakeStream{}}
	c := NewNewsCollector(stream, &recordingProcessor{}, metrics.Noop{}, ReconnectPolicy{Enabled: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsConnected())
	cancel()
	waitDone(t, c)
	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.IsConnected())
}

// blockingStream never yields frames until ctx ends.
type blockingStream struct{ fakeStream }

func (s *blockingStream) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errs := make(chan error)
	go func() {
		<-ctx.Done()
		close(out)
		close(errs)
	}()
	return out, errs
}
