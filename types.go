package mealagent

import (
	"context"
	"net/http"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// Classifier turns one raw user utterance (plus conversation context) into a
// structured Intent. Implementations: heuristic (always available), bedrock
// (reasoning-backed), mock (canned).
type Classifier interface {
	Classify(ctx context.Context, input ClassifyInput) (Intent, error)
}

// Action is the resolved conversational action for a turn.
type Action string

const (
	ActionLog     Action = "log"
	ActionPatch   Action = "patch"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
	ActionList    Action = "list"
	ActionClarify Action = "clarify"
)

// DeleteScope narrows a delete action to one meal or the whole day.
const (
	DeleteScopeOne = "one"
	DeleteScopeAll = "all"
)

// HistoryMessage is one prior message of the conversation, oldest first.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ClassifyInput carries the utterance plus whatever session context is known.
type ClassifyInput struct {
	Text         string           `json:"text"`
	SessionID    string           `json:"session_id"`
	ActiveMealID string           `json:"active_meal_id,omitempty"`
	LastIntent   string           `json:"last_intent,omitempty"`
	History      []HistoryMessage `json:"history,omitempty"`
}

// MealItemMention is a single food reference extracted from user text, before
// any nutrition resolution. Immutable once produced by a classifier.
type MealItemMention struct {
	Name        string   `json:"name"`
	Display     string   `json:"display,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Size        string   `json:"size,omitempty"`
	AmountGrams *float64 `json:"amount_grams,omitempty"`
	Kcal        *float64 `json:"kcal,omitempty"`
	Protein     *float64 `json:"protein,omitempty"`
	Carbs       *float64 `json:"carbs,omitempty"`
	Fat         *float64 `json:"fat,omitempty"`
}

// HasUserNutrition reports whether the user supplied any nutrition value
// explicitly. Such values always win over looked-up values, per field.
func (m MealItemMention) HasUserNutrition() bool {
	return m.Kcal != nil || m.Protein != nil || m.Carbs != nil || m.Fat != nil
}

// Intent is the structured result of classifying one utterance.
type Intent struct {
	Action        Action            `json:"action"`
	MealRef       *int              `json:"meal_ref,omitempty"`
	DeleteScope   string            `json:"delete_scope,omitempty"`
	Items         []MealItemMention `json:"items,omitempty"`
	Confidence    float64           `json:"confidence"`
	RequiresInput *string           `json:"requires_input,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// IsValid checks basic structural soundness of a classified intent.
func (in *Intent) IsValid() bool {
	switch in.Action {
	case ActionLog, ActionPatch, ActionReplace, ActionDelete, ActionList, ActionClarify:
	default:
		return false
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return false
	}
	for _, it := range in.Items {
		if it.Name == "" {
			return false
		}
	}
	return true
}

// ItemConfidence is the per-item confidence breakdown included in an envelope.
type ItemConfidence struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Envelope is the machine-readable part of a turn's result.
type Envelope struct {
	OK             bool             `json:"ok"`
	Message        string           `json:"message"`
	Actions        []string         `json:"actions"`
	MealIDs        []string         `json:"meal_ids,omitempty"`
	EntryIDs       []string         `json:"entry_ids,omitempty"`
	ItemConfidence []ItemConfidence `json:"item_confidence,omitempty"`
	Confidence     float64          `json:"confidence"`
	RequiresInput  *string          `json:"requires_input,omitempty"`
}

// DraftItem is the UI-facing projection of one resolved item.
type DraftItem struct {
	Name        string   `json:"name"`
	Display     string   `json:"display,omitempty"`
	Grams       *float64 `json:"grams,omitempty"`
	Kcal        *float64 `json:"kcal,omitempty"`
	Protein     *float64 `json:"protein,omitempty"`
	Carbs       *float64 `json:"carbs,omitempty"`
	Fat         *float64 `json:"fat,omitempty"`
	Source      string   `json:"source"`
	Confidence  float64  `json:"confidence"`
	Assumptions []string `json:"assumptions,omitempty"`
}

// Draft is the normalized item list for UI consumption.
type Draft struct {
	Items []DraftItem `json:"items"`
}

// MealSummary is a human-readable meal rollup plus its totals.
type MealSummary struct {
	Text    string  `json:"text"`
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// RunResult is what one processed turn returns to the caller.
type RunResult struct {
	OK       bool         `json:"ok"`
	Action   string       `json:"action"`
	Message  string       `json:"message"`
	Envelope Envelope     `json:"envelope"`
	Draft    *Draft       `json:"draft,omitempty"`
	Summary  *MealSummary `json:"summary,omitempty"`
}

// Coarse confidence labels used at the parser boundary. The continuous score
// is the stored form; labels are derived from it.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ConfidenceLabel derives the coarse label from a continuous score.
func ConfidenceLabel(score float64) string {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ConfidenceScore maps a coarse label back to a representative score.
func ConfidenceScore(label string) float64 {
	switch label {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.65
	default:
		return 0.3
	}
}
