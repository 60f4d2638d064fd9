package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ChurnRepository is the SQLite-backed entity store for accounts, organizations,
// tickets, links and computed results.
type ChurnRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewChurnRepository(db *sql.DB, logger *zap.Logger) *ChurnRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChurnRepository{db: db, logger: logger.Named("churn-repository")}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction; any error rolls the whole write set back.
func (r *ChurnRepository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime accepts the storage layout and the common RFC3339 spellings
// written by other tools.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// parseTimePtr degrades malformed values to nil.
func (r *ChurnRepository) parseTimePtr(field, id string, v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		r.logger.Warn("dropping malformed timestamp",
			zap.String("field", field), zap.String("id", id), zap.Error(err))
		return nil
	}
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeJSON degrades malformed blobs to the zero value of dest.
func (r *ChurnRepository) decodeJSON(field, id, raw string, dest any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		r.logger.Warn("dropping malformed json column",
			zap.String("field", field), zap.String("id", id), zap.Error(err))
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
