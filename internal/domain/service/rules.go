package service

import "SignalDNA/internal/domain/models"

// SignalEvaluator maps a canonical event to at most one signal update.
type SignalEvaluator interface {
	Evaluate(ev models.CanonicalEvent) (models.SignalUpdate, bool)
}
