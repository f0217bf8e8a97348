// Package nlu maps free-form utterances to intents and any field values
// the utterance already supplied. Classification is advisory: the dialogue
// engine re-validates every extracted value before accepting it.
package nlu

import (
	"context"

	"github.com/akulikov/regdesk/internal/domain"
)

// Result is one classification outcome. Fields holds raw extracted values
// keyed by field name; they have not been validated.
type Result struct {
	Intent domain.Intent
	Fields map[string]string
}

// Classifier turns an utterance plus session context into an intent and
// extracted fields. Exactly one classification happens per utterance,
// synchronously.
type Classifier interface {
	Classify(ctx context.Context, utterance string, sess *domain.Session) (Result, error)
}
