package rules

import (
	"testing"
	"time"

	"SignalDNA/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(h string) models.CanonicalEvent {
	return models.CanonicalEvent{Headline: h, Source: "test", ReceivedAt: time.Unix(1700000000, 0)}
}

func TestEvaluateRuleTable(t *testing.T) {
	e := NewDefaultEngine()

	tests := []struct {
		headline   string
		instrument models.Instrument
		signal     models.SignalKind
		conviction int
		dna        [3]int
	}{
		{"Geopolitical risk rises in the Gulf", models.InstrumentGold, models.SignalStrongBuy, 9, [3]int{20, 70, 10}},
		{"Border CONFLICT escalates", models.InstrumentGold, models.SignalStrongBuy, 9, [3]int{20, 70, 10}},
		{"Trade tensions weigh on Asia", models.InstrumentGold, models.SignalStrongBuy, 9, [3]int{20, 70, 10}},
		{"Inflation cools in October", models.InstrumentUS10Y, models.SignalSell, 8, [3]int{20, 70, 10}},
		{"US CPI beats estimates", models.InstrumentUS10Y, models.SignalSell, 8, [3]int{20, 70, 10}},
		{"Consumer Price index steady", models.InstrumentUS10Y, models.SignalSell, 8, [3]int{20, 70, 10}},
		{"Fed holds rates", models.InstrumentSPX, models.SignalBuy, 7, [3]int{30, 60, 10}},
		{"FOMC minutes released", models.InstrumentSPX, models.SignalBuy, 7, [3]int{30, 60, 10}},
		{"Markets price in a rate cut", models.InstrumentSPX, models.SignalBuy, 7, [3]int{30, 60, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.headline, func(t *testing.T) {
			u, ok := e.Evaluate(event(tt.headline))
			require.True(t, ok)
			assert.Equal(t, tt.instrument, u.Instrument)
			assert.Equal(t, tt.signal, u.Signal)
			assert.Equal(t, tt.conviction, u.Conviction)
			assert.Equal(t, tt.dna, u.DNA)
			assert.Contains(t, u.Analysis, `"`+tt.headline+`"`)
			assert.NoError(t, u.Validate())
		})
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	e := NewDefaultEngine()

	u, ok := e.Evaluate(event("Geopolitical tensions spike as inflation data due"))
	require.True(t, ok)
	assert.Equal(t, models.InstrumentGold, u.Instrument)

	u, ok = e.Evaluate(event("Fed warns inflation is sticky"))
	require.True(t, ok)
	assert.Equal(t, models.InstrumentUS10Y, u.Instrument)
}

func TestEvaluateShortCircuits(t *testing.T) {
	called := false
	first := KeywordRule("first", []string{"alpha"},
		models.SignalUpdate{Instrument: models.InstrumentGold, Signal: models.SignalHold, Conviction: 1, DNA: [3]int{100, 0, 0}}, "%s")
	second := Rule{
		Name:    "second",
		Match:   func(models.CanonicalEvent) bool { called = true; return true },
		Produce: func(models.CanonicalEvent) models.SignalUpdate { return models.SignalUpdate{} },
	}
	e := NewEngine(first, second)

	_, ok := e.Evaluate(event("alpha beta"))
	require.True(t, ok)
	assert.False(t, called, "later rules must not be evaluated after a match")
}

func TestEvaluateNoMatch(t *testing.T) {
	e := NewDefaultEngine()
	for _, h := range []string{"Local bakery wins award", "", "   "} {
		_, ok := e.Evaluate(event(h))
		assert.False(t, ok, h)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := NewDefaultEngine()
	ev := event("Inflation surprises to the upside")

	a, okA := e.Evaluate(ev)
	b, okB := e.Evaluate(ev)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}

func TestAnalysisKeepsOriginalCase(t *testing.T) {
	u, ok := NewDefaultEngine().Evaluate(event("FOMC Signals Patience"))
	require.True(t, ok)
	assert.Equal(t,
		`Signal updated on Fed news: "FOMC Signals Patience". Dovish signals from the Fed boost investor sentiment and increase appetite for risk assets like stocks.`,
		u.Analysis)
}

func TestNewEngineCopiesRules(t *testing.T) {
	rs := DefaultRules()
	e := NewEngine(rs...)
	rs[0] = Rule{Name: "mutated", Match: func(models.CanonicalEvent) bool { return false }, Produce: func(models.CanonicalEvent) models.SignalUpdate { return models.SignalUpdate{} }}

	assert.Equal(t, []string{"geopolitical-gold", "inflation-treasury", "fed-spx"}, e.Rules())
	_, ok := e.Evaluate(event("conflict"))
	assert.True(t, ok)
}
