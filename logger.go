package mealagent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// TurnLogger is the interface for per-turn audit logging.
type TurnLogger interface {
	LogTurn(turn TurnLog) error
}

// NewTurnLogFilePath returns a file path based on the session id so logs from
// different conversations are easy to tell apart.
func NewTurnLogFilePath(sessionID string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(sessionID), ":", "_"),
	)
}

// TurnLog represents a single processed conversation turn.
type TurnLog struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Intent    any       `json:"intent,omitempty"`
	MealIDs   []string  `json:"meal_ids,omitempty"`
	EntryIDs  []string  `json:"entry_ids,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// FileTurnLogger logs to a writer, accumulating turns and flushing at the end.
type FileTurnLogger struct {
	turns  []TurnLog
	writer io.Writer
}

// NewFileTurnLogger creates a new file-based turn logger.
func NewFileTurnLogger(writer io.Writer) *FileTurnLogger {
	return &FileTurnLogger{
		turns:  make([]TurnLog, 0),
		writer: writer,
	}
}

// LogTurn logs a turn to the buffer (does not flush immediately).
func (ftl *FileTurnLogger) LogTurn(turn TurnLog) error {
	ftl.turns = append(ftl.turns, turn)
	return nil
}

// Flush flushes all accumulated turns to the writer.
func (ftl *FileTurnLogger) Flush() error {
	if ftl.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"conversation_log": map[string]any{
			"timestamp": time.Now(),
			"turns":     ftl.turns,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal turn log: %w", err)
	}

	if _, err := ftl.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write turn log: %w", err)
	}

	// Clear the buffer after successful write
	ftl.turns = ftl.turns[:0]
	return nil
}

// NoOpTurnLogger is a logger that discards all log entries.
type NoOpTurnLogger struct{}

// NewNoOpTurnLogger creates a new no-op turn logger.
func NewNoOpTurnLogger() *NoOpTurnLogger {
	return &NoOpTurnLogger{}
}

// LogTurn discards the turn log (no-op).
func (nop *NoOpTurnLogger) LogTurn(turn TurnLog) error {
	return nil
}

// StdoutTurnLogger logs each turn as a JSON line to stdout (for Lambda/CloudWatch).
type StdoutTurnLogger struct{}

// NewStdoutTurnLogger creates a new stdout-based turn logger.
func NewStdoutTurnLogger() *StdoutTurnLogger {
	return &StdoutTurnLogger{}
}

// LogTurn writes the turn as a JSON line to os.Stdout.
func (l *StdoutTurnLogger) LogTurn(turn TurnLog) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
