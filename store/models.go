// Package store persists meals, entries, revisions, sessions, actions, and
// the local product reference table in SQLite.
package store

import (
	"time"

	"mealagent/nutrition"
)

// Meal is an aggregation unit owning zero or more entries. Totals are always
// recomputed from the non-deleted entries, never adjusted incrementally.
type Meal struct {
	ID        string
	RawText   string
	Label     string
	Kcal      float64
	Protein   float64
	Carbs     float64
	Fat       float64
	Date      string // local calendar date, YYYY-MM-DD
	TimeOfDay string
	Timezone  string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// MealEntry is the persisted form of a resolved item. MealID is nullable:
// standalone entries are allowed.
type MealEntry struct {
	ID          string
	MealID      *string
	Name        string
	Display     string
	AmountGrams *float64
	Kcal        *float64
	Protein     *float64
	Carbs       *float64
	Fat         *float64
	Source      string
	Confidence  float64
	Assumptions []string
	Provenance  nutrition.Provenance
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// EntryRevision is an append-only audit record of one entry patch.
type EntryRevision struct {
	ID        string
	EntryID   string
	Actor     string
	Reason    string
	Before    MealEntry
	After     MealEntry
	CreatedAt time.Time
}

// ConversationSession tracks per-conversation state across turns.
// ActiveMealID is a reference, not ownership.
type ConversationSession struct {
	SessionID    string
	ActiveMealID *string
	LastIntent   string
	Metadata     map[string]string
	UpdatedAt    time.Time
}

// MealAction is one row of the append-only action log.
type MealAction struct {
	ID         string
	SessionID  string
	MealID     *string
	ActionType string
	Status     string // ok | noop | requires_input
	RawText    string
	Intent     string // resolved intent, JSON
	Reason     string
	EntryIDs   []string
	CreatedAt  time.Time
}

// Action statuses.
const (
	StatusOK            = "ok"
	StatusNoop          = "noop"
	StatusRequiresInput = "requires_input"
)
