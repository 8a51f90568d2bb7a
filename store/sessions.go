package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertSession writes the per-conversation state. Called once per turn.
func (s *Store) UpsertSession(ctx context.Context, session *ConversationSession) error {
	session.UpdatedAt = time.Now().UTC()
	metadata, err := marshalJSON(session.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (session_id, active_meal_id, last_intent, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			active_meal_id = excluded.active_meal_id,
			last_intent = excluded.last_intent,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, session.SessionID, session.ActiveMealID, session.LastIntent, metadata, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession returns the session state, or ErrNotFound for a fresh
// conversation.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*ConversationSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, active_meal_id, last_intent, metadata, updated_at
		FROM conversation_sessions
		WHERE session_id = ?
	`, sessionID)

	var session ConversationSession
	var activeMealID sql.NullString
	var metadataRaw string
	if err := row.Scan(&session.SessionID, &activeMealID, &session.LastIntent, &metadataRaw, &session.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if activeMealID.Valid {
		v := activeMealID.String
		session.ActiveMealID = &v
	}
	if metadataRaw != "" && metadataRaw != "null" {
		if err := jsonUnmarshal(metadataRaw, &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return &session, nil
}
