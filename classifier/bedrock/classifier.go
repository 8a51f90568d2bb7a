// Package bedrock implements the reasoning-backed intent classifier and the
// candidate-selection advisor on top of the Bedrock Converse API. Responses
// must match declared JSON schemas; anything else is an error the caller
// recovers from with the heuristic path.
package bedrock

import (
	"context"
	"fmt"
	"log/slog"

	"mealagent"
)

type llmClient interface {
	Invoke(ctx context.Context, system, user string) (string, error)
}

// Classifier implements mealagent.Classifier via a single-shot model call.
type Classifier struct {
	llm llmClient
}

func NewClassifier(llm llmClient) *Classifier {
	return &Classifier{llm: llm}
}

// intentResponse is the wire shape the model returns; field-compatible with
// mealagent.Intent.
type intentResponse struct {
	Action        string                      `json:"action"`
	MealRef       *int                        `json:"meal_ref,omitempty"`
	DeleteScope   string                      `json:"delete_scope,omitempty"`
	Items         []mealagent.MealItemMention `json:"items,omitempty"`
	Confidence    float64                     `json:"confidence"`
	RequiresInput *string                     `json:"requires_input,omitempty"`
	Reason        string                      `json:"reason,omitempty"`
}

// Classify sends the utterance plus session context to the model and
// validates the strict-JSON response against the declared schema.
func (c *Classifier) Classify(ctx context.Context, input mealagent.ClassifyInput) (mealagent.Intent, error) {
	user, err := newIntentUserMessage(input)
	if err != nil {
		return mealagent.Intent{}, err
	}

	raw, err := c.llm.Invoke(ctx, intentSystemPrompt, user)
	if err != nil {
		return mealagent.Intent{}, fmt.Errorf("failed to invoke LLM: %w", err)
	}

	var resp intentResponse
	if err := validateAgainst(intentSchema(), raw, &resp); err != nil {
		return mealagent.Intent{}, fmt.Errorf("intent response rejected: %w", err)
	}

	intent := mealagent.Intent{
		Action:        mealagent.Action(resp.Action),
		MealRef:       resp.MealRef,
		DeleteScope:   resp.DeleteScope,
		Items:         resp.Items,
		Confidence:    resp.Confidence,
		RequiresInput: resp.RequiresInput,
		Reason:        resp.Reason,
	}
	if !intent.IsValid() {
		return mealagent.Intent{}, fmt.Errorf("intent response structurally invalid: action=%q", resp.Action)
	}

	slog.Info("BEDROCK_CLASSIFIER: Classified",
		"action", intent.Action,
		"items", len(intent.Items),
		"confidence", intent.Confidence,
	)
	return intent, nil
}
