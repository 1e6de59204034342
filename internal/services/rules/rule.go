package rules

import (
	"fmt"
	"strings"

	"SignalDNA/internal/domain/models"
)

// Rule maps matching events to a signal update.
type Rule struct {
	Name    string
	Match   func(ev models.CanonicalEvent) bool
	Produce func(ev models.CanonicalEvent) models.SignalUpdate
}

// KeywordRule builds a rule that fires when the lowercased headline contains any keyword.
// analysisFmt receives the original headline as its single %s verb.
func KeywordRule(name string, keywords []string, tmpl models.SignalUpdate, analysisFmt string) Rule {
	kws := make([]string, len(keywords))
	for i, k := range keywords {
		kws[i] = strings.ToLower(k)
	}
	return Rule{
		Name: name,
		Match: func(ev models.CanonicalEvent) bool {
			return containsAny(strings.ToLower(ev.Headline), kws)
		},
		Produce: func(ev models.CanonicalEvent) models.SignalUpdate {
			u := tmpl
			u.Analysis = fmt.Sprintf(analysisFmt, ev.Headline)
			return u
		},
	}
}

func containsAny(s string, kws []string) bool {
	for _, k := range kws {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// DefaultRules returns the production rule table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		KeywordRule("geopolitical-gold",
			[]string{"geopolitical", "conflict", "tensions"},
			models.SignalUpdate{
				Instrument: models.InstrumentGold,
				Signal:     models.SignalStrongBuy,
				Conviction: 9,
				DNA:        [3]int{20, 70, 10}, // heavy macro/geopolitical influence
			},
			`Signal updated on breaking news: "%s". Major geopolitical events create a powerful flight-to-safety bid for gold.`,
		),
		KeywordRule("inflation-treasury",
			[]string{"inflation", "cpi", "consumer price"},
			models.SignalUpdate{
				Instrument: models.InstrumentUS10Y,
				Signal:     models.SignalSell,
				Conviction: 8,
				DNA:        [3]int{20, 70, 10},
			},
			`Signal updated on economic data: "%s". Hotter inflation data implies the Fed will remain hawkish, putting downward pressure on bond prices (and raising yields).`,
		),
		KeywordRule("fed-spx",
			[]string{"fed", "fomc", "rate cut"},
			models.SignalUpdate{
				Instrument: models.InstrumentSPX,
				Signal:     models.SignalBuy,
				Conviction: 7,
				DNA:        [3]int{30, 60, 10},
			},
			`Signal updated on Fed news: "%s". Dovish signals from the Fed boost investor sentiment and increase appetite for risk assets like stocks.`,
		),
	}
}
