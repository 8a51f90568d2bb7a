// Package mock provides a canned classifier for tests and demos. It is, of
// course, deterministic and only serves to exercise the runtime's paths
// without a model. Real classifiers may not be so kind :)
package mock

import (
	"context"

	"mealagent"
)

// Classifier returns pre-seeded intents in order, then repeats the last one.
// With an Err set it always fails, which exercises the heuristic fallback.
type Classifier struct {
	Intents []mealagent.Intent
	Err     error
	calls   int
}

func New(intents ...mealagent.Intent) *Classifier {
	return &Classifier{Intents: intents}
}

func NewFailing(err error) *Classifier {
	return &Classifier{Err: err}
}

func (c *Classifier) Classify(ctx context.Context, input mealagent.ClassifyInput) (mealagent.Intent, error) {
	if c.Err != nil {
		return mealagent.Intent{}, c.Err
	}
	if len(c.Intents) == 0 {
		return mealagent.Intent{Action: mealagent.ActionClarify, Confidence: 0.5}, nil
	}
	i := c.calls
	if i >= len(c.Intents) {
		i = len(c.Intents) - 1
	}
	c.calls++
	return c.Intents[i], nil
}
