package di

import (
	"context"
	"testing"

	"SignalDNA/internal/domain/models"
	"SignalDNA/pkg/config"
	applogger "SignalDNA/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineBroadcastsRepeatedHeadlines(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	l := applogger.NewNop()

	dedupe, cleanupDedupe, err := ProvideDeduper(cfg, nil)
	require.NoError(t, err)
	defer cleanupDedupe()
	assert.Nil(t, dedupe)

	tracer, cleanupTracer, err := ProvideTracer(cfg, l)
	require.NoError(t, err)
	defer cleanupTracer()

	m := ProvideMetrics(prometheus.NewRegistry())
	h, cleanupHub := ProvideHub(cfg, m, l)
	defer cleanupHub()

	p := ProvideSignalPipeline(cfg, ProvideRuleEngine(), h, nil, dedupe, m, tracer, l)

	for _, src := range []string{"Reuters", "Bloomberg"} {
		body := `{"type":"news","data":[{"headline":"Geopolitical tensions flare in the Gulf","source":"` + src + `"}]}`
		u, ok, err := p.Handle(context.Background(), models.OriginWebhook, []byte(body))
		require.NoError(t, err)
		assert.True(t, ok, src)
		assert.Equal(t, models.InstrumentGold, u.Instrument)
	}
}

func TestProvideDeduperMemoryWhenEnabled(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Dedupe.Enabled = true

	d, cleanup, err := ProvideDeduper(cfg, nil)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, d)

	ev := models.CanonicalEvent{ID: "9", Headline: "Fed holds rates"}
	seen, err := d.Seen(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = d.Seen(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestProvideDeduperRedisNeedsClient(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Dedupe.Enabled = true
	cfg.Dedupe.Backend = "redis"

	_, _, err = ProvideDeduper(cfg, nil)
	assert.Error(t, err)
}
