package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAction writes one row of the append-only action log.
func (s *Store) AppendAction(ctx context.Context, a *MealAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	entryIDs, err := marshalJSON(append([]string{}, a.EntryIDs...))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meal_actions (id, session_id, meal_id, action_type, status, raw_text, intent, reason, entry_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.SessionID, a.MealID, a.ActionType, a.Status, a.RawText, a.Intent, a.Reason, entryIDs, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// ActionsForSession returns the session's action log, oldest first.
func (s *Store) ActionsForSession(ctx context.Context, sessionID string) ([]MealAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, meal_id, action_type, status, raw_text, intent, reason, entry_ids, created_at
		FROM meal_actions
		WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []MealAction
	for rows.Next() {
		var a MealAction
		var mealID sql.NullString
		var entryIDsRaw string
		if err := rows.Scan(&a.ID, &a.SessionID, &mealID, &a.ActionType, &a.Status, &a.RawText, &a.Intent, &a.Reason, &entryIDsRaw, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if mealID.Valid {
			v := mealID.String
			a.MealID = &v
		}
		if a.EntryIDs, err = unmarshalStrings(entryIDsRaw); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
