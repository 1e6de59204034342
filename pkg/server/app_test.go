package server

import (
	"context"
	"testing"
	"time"

	xhttp "SignalDNA/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppRunStopsOnCancel(t *testing.T) {
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	app := New(nil, srv, nil, nil, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestAppRunFailsOnBadListenAddr(t *testing.T) {
	srv := xhttp.NewServer(nil, xhttp.WithHost("256.0.0.1"), xhttp.WithPort(1))
	app := New(nil, srv, nil, nil, nil, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.Error(t, app.Run(ctx))
}
