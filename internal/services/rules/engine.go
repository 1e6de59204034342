package rules

import (
	"SignalDNA/internal/domain/models"
	domsvc "SignalDNA/internal/domain/service"
)

// Engine evaluates an immutable, ordered rule table. First match wins.
type Engine struct {
	rules []Rule
}

// NewEngine copies rules so later mutation of the caller's slice has no effect.
func NewEngine(rules ...Rule) *Engine {
	rs := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Match == nil || r.Produce == nil {
			continue
		}
		rs = append(rs, r)
	}
	return &Engine{rules: rs}
}

// NewDefaultEngine builds an engine over DefaultRules.
func NewDefaultEngine() *Engine { return NewEngine(DefaultRules()...) }

// Evaluate returns the update of the first matching rule; later rules are not consulted.
func (e *Engine) Evaluate(ev models.CanonicalEvent) (models.SignalUpdate, bool) {
	for _, r := range e.rules {
		if r.Match(ev) {
			return r.Produce(ev), true
		}
	}
	return models.SignalUpdate{}, false
}

// Rules returns rule names in priority order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

var _ domsvc.SignalEvaluator = (*Engine)(nil)
