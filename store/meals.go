package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced meal or entry does not exist.
var ErrNotFound = errors.New("not found")

// CreateMeal inserts a new meal. ID and CreatedAt are filled in when empty.
func (s *Store) CreateMeal(ctx context.Context, m *Meal) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meals (id, raw_text, label, kcal, protein, carbs, fat, date, time_of_day, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.RawText, m.Label, m.Kcal, m.Protein, m.Carbs, m.Fat, m.Date, m.TimeOfDay, m.Timezone, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert meal: %w", err)
	}
	return nil
}

// GetMeal returns a meal by id, including soft-deleted ones.
func (s *Store) GetMeal(ctx context.Context, id string) (*Meal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, raw_text, label, kcal, protein, carbs, fat, date, time_of_day, timezone, created_at, deleted_at
		FROM meals
		WHERE id = ?
	`, id)
	m, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// MealsForDate returns the non-deleted meals of a local calendar date, in
// creation order.
func (s *Store) MealsForDate(ctx context.Context, date string) ([]Meal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raw_text, label, kcal, protein, carbs, fat, date, time_of_day, timezone, created_at, deleted_at
		FROM meals
		WHERE date = ? AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query meals: %w", err)
	}
	defer rows.Close()

	var meals []Meal
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, *m)
	}
	return meals, rows.Err()
}

// MealByOrdinal resolves a "#N" / "meal N" reference: the Nth non-deleted
// meal of the date, 1-based, in creation order.
func (s *Store) MealByOrdinal(ctx context.Context, date string, n int) (*Meal, error) {
	meals, err := s.MealsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(meals) {
		return nil, ErrNotFound
	}
	return &meals[n-1], nil
}

// EntriesForMeal returns the meal's non-deleted entries in creation order.
func (s *Store) EntriesForMeal(ctx context.Context, mealID string) ([]MealEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meal_id, name, display, amount_grams, kcal, protein, carbs, fat,
		       source, confidence, assumptions, provenance, created_at, updated_at, deleted_at
		FROM meal_entries
		WHERE meal_id = ? AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, mealID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []MealEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// InsertEntry inserts a new entry and recomputes the owning meal's totals in
// the same transaction.
func (s *Store) InsertEntry(ctx context.Context, e *MealEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	assumptions, err := marshalJSON(append([]string{}, e.Assumptions...))
	if err != nil {
		return err
	}
	provenance, err := marshalJSON(e.Provenance)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meal_entries (id, meal_id, name, display, amount_grams, kcal, protein, carbs, fat,
			                          source, confidence, assumptions, provenance, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.MealID, e.Name, e.Display, e.AmountGrams, e.Kcal, e.Protein, e.Carbs, e.Fat,
			e.Source, e.Confidence, assumptions, provenance, e.CreatedAt, e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		return recomputeTotalsTx(ctx, tx, e.MealID)
	})
}

// UpdateEntry applies new values to an existing entry, writes exactly one
// revision with before/after snapshots, and recomputes the meal's totals —
// all in one transaction.
func (s *Store) UpdateEntry(ctx context.Context, updated *MealEntry, actor, reason string) error {
	before, err := s.getEntry(ctx, updated.ID)
	if err != nil {
		return err
	}
	updated.MealID = before.MealID
	updated.CreatedAt = before.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	assumptions, err := marshalJSON(append([]string{}, updated.Assumptions...))
	if err != nil {
		return err
	}
	provenance, err := marshalJSON(updated.Provenance)
	if err != nil {
		return err
	}
	beforeSnap, err := marshalJSON(before)
	if err != nil {
		return err
	}
	afterSnap, err := marshalJSON(updated)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE meal_entries
			SET name = ?, display = ?, amount_grams = ?, kcal = ?, protein = ?, carbs = ?, fat = ?,
			    source = ?, confidence = ?, assumptions = ?, provenance = ?, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL
		`, updated.Name, updated.Display, updated.AmountGrams, updated.Kcal, updated.Protein, updated.Carbs, updated.Fat,
			updated.Source, updated.Confidence, assumptions, provenance, updated.UpdatedAt, updated.ID)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entry_revisions (id, entry_id, actor, reason, before_state, after_state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), updated.ID, actor, reason, beforeSnap, afterSnap, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		return recomputeTotalsTx(ctx, tx, updated.MealID)
	})
}

// SoftDeleteMealEntries marks all non-deleted entries of a meal deleted and
// recomputes totals (to zero).
func (s *Store) SoftDeleteMealEntries(ctx context.Context, mealID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE meal_entries SET deleted_at = ? WHERE meal_id = ? AND deleted_at IS NULL
		`, at.UTC(), mealID)
		if err != nil {
			return fmt.Errorf("soft delete entries: %w", err)
		}
		return recomputeTotalsTx(ctx, tx, &mealID)
	})
}

// SoftDeleteMeal marks the meal and all its entries deleted and zeroes the
// cached totals.
func (s *Store) SoftDeleteMeal(ctx context.Context, mealID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE meals SET deleted_at = ?, kcal = 0, protein = 0, carbs = 0, fat = 0
			WHERE id = ? AND deleted_at IS NULL
		`, at.UTC(), mealID)
		if err != nil {
			return fmt.Errorf("soft delete meal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE meal_entries SET deleted_at = ? WHERE meal_id = ? AND deleted_at IS NULL
		`, at.UTC(), mealID)
		if err != nil {
			return fmt.Errorf("soft delete entries: %w", err)
		}
		return nil
	})
}

// RecomputeTotals recalculates a meal's totals from its non-deleted entries.
// Normally totals are maintained by the entry mutations themselves; this is
// for callers that need to self-heal explicitly.
func (s *Store) RecomputeTotals(ctx context.Context, mealID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return recomputeTotalsTx(ctx, tx, &mealID)
	})
}

// recomputeTotalsTx sets the meal's totals to the sum over non-deleted
// entries, nulls as 0, rounded to one decimal. A single statement, so
// concurrent turns racing on the same meal settle on last-writer-wins over a
// full recompute.
func recomputeTotalsTx(ctx context.Context, tx *sql.Tx, mealID *string) error {
	if mealID == nil {
		return nil // standalone entry, no totals to maintain
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE meals SET
			kcal    = round(coalesce((SELECT sum(coalesce(kcal, 0))    FROM meal_entries WHERE meal_id = meals.id AND deleted_at IS NULL), 0), 1),
			protein = round(coalesce((SELECT sum(coalesce(protein, 0)) FROM meal_entries WHERE meal_id = meals.id AND deleted_at IS NULL), 0), 1),
			carbs   = round(coalesce((SELECT sum(coalesce(carbs, 0))   FROM meal_entries WHERE meal_id = meals.id AND deleted_at IS NULL), 0), 1),
			fat     = round(coalesce((SELECT sum(coalesce(fat, 0))     FROM meal_entries WHERE meal_id = meals.id AND deleted_at IS NULL), 0), 1)
		WHERE id = ?
	`, *mealID)
	if err != nil {
		return fmt.Errorf("recompute totals: %w", err)
	}
	return nil
}

// RevisionsForEntry returns the entry's revisions, oldest first.
func (s *Store) RevisionsForEntry(ctx context.Context, entryID string) ([]EntryRevision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, actor, reason, before_state, after_state, created_at
		FROM entry_revisions
		WHERE entry_id = ?
		ORDER BY created_at ASC
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var revisions []EntryRevision
	for rows.Next() {
		var r EntryRevision
		var beforeRaw, afterRaw string
		if err := rows.Scan(&r.ID, &r.EntryID, &r.Actor, &r.Reason, &beforeRaw, &afterRaw, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		if err := unmarshalEntrySnapshot(beforeRaw, &r.Before); err != nil {
			return nil, err
		}
		if err := unmarshalEntrySnapshot(afterRaw, &r.After); err != nil {
			return nil, err
		}
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) getEntry(ctx context.Context, id string) (*MealEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, meal_id, name, display, amount_grams, kcal, protein, carbs, fat,
		       source, confidence, assumptions, provenance, created_at, updated_at, deleted_at
		FROM meal_entries
		WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (*Meal, error) {
	var m Meal
	var deletedAt sql.NullTime
	if err := row.Scan(&m.ID, &m.RawText, &m.Label, &m.Kcal, &m.Protein, &m.Carbs, &m.Fat,
		&m.Date, &m.TimeOfDay, &m.Timezone, &m.CreatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan meal: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	return &m, nil
}

func scanEntry(row rowScanner) (*MealEntry, error) {
	var e MealEntry
	var mealID sql.NullString
	var grams, kcal, protein, carbs, fat sql.NullFloat64
	var assumptionsRaw, provenanceRaw string
	var deletedAt sql.NullTime

	if err := row.Scan(&e.ID, &mealID, &e.Name, &e.Display, &grams, &kcal, &protein, &carbs, &fat,
		&e.Source, &e.Confidence, &assumptionsRaw, &provenanceRaw, &e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}

	if mealID.Valid {
		v := mealID.String
		e.MealID = &v
	}
	e.AmountGrams = nullFloat(grams)
	e.Kcal = nullFloat(kcal)
	e.Protein = nullFloat(protein)
	e.Carbs = nullFloat(carbs)
	e.Fat = nullFloat(fat)
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}

	var err error
	if e.Assumptions, err = unmarshalStrings(assumptionsRaw); err != nil {
		return nil, err
	}
	if e.Provenance, err = unmarshalProvenance(provenanceRaw); err != nil {
		return nil, err
	}
	return &e, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func unmarshalEntrySnapshot(raw string, out *MealEntry) error {
	if raw == "" {
		return nil
	}
	if err := jsonUnmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal entry snapshot: %w", err)
	}
	return nil
}
