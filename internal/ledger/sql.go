package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"holdem-rooms/internal/store"
)

// SQLService persists hands to sqlite or postgres.
type SQLService struct {
	db          *store.DB
	recentLimit int
	savedLimit  int
}

func NewSQLService(ctx context.Context, db *store.DB) (*SQLService, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, ledgerSchema(db)); err != nil {
		return nil, err
	}
	log.Printf("[Ledger] %s store ready", db.Dialect)
	return &SQLService{
		db:          db,
		recentLimit: defaultRecentLimit,
		savedLimit:  defaultSavedLimit,
	}, nil
}

func ledgerSchema(db *store.DB) []string {
	return []string{
		`
CREATE TABLE IF NOT EXISTS ledger_event_stream (
    id ` + db.AutoIncrement() + `,
    hand_id TEXT NOT NULL,
    seq BIGINT NOT NULL,
    event_type TEXT NOT NULL,
    envelope_b64 TEXT NOT NULL DEFAULT '',
    server_ts_ms BIGINT,
    UNIQUE (hand_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_event_stream_hand_seq ON ledger_event_stream(hand_id, seq)`,
		`
CREATE TABLE IF NOT EXISTS user_hand_history (
    id ` + db.AutoIncrement() + `,
    username TEXT NOT NULL,
    session_id TEXT NOT NULL,
    hand_id TEXT NOT NULL,
    hand_no INTEGER NOT NULL DEFAULT 0,
    played_at_ms BIGINT NOT NULL,
    delta BIGINT NOT NULL DEFAULT 0,
    summary_json TEXT NOT NULL DEFAULT '{}',
    is_saved INTEGER NOT NULL DEFAULT 0,
    saved_at_ms BIGINT,
    UNIQUE (username, hand_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_user_hand_history_recent ON user_hand_history(username, played_at_ms DESC)`,
	}
}

func (s *SQLService) Close() error { return nil }

func (s *SQLService) RecordHand(ctx context.Context, rec HandRecord) error {
	if strings.TrimSpace(rec.HandID) == "" {
		return errors.New("empty hand id")
	}
	if rec.PlayedAt.IsZero() {
		rec.PlayedAt = time.Now().UTC()
	}
	summary := rec.Summary
	if summary == nil {
		summary = map[string]any{}
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range rec.Events {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
INSERT INTO ledger_event_stream (hand_id, seq, event_type, envelope_b64, server_ts_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (hand_id, seq) DO NOTHING
`), rec.HandID, int64(e.Seq), e.EventType, e.EnvelopeB64, nullableInt64Ptr(e.ServerTsMs)); err != nil {
			return err
		}
	}

	for user, delta := range rec.Deltas {
		user = normalizeUser(user)
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
INSERT INTO user_hand_history (username, session_id, hand_id, hand_no, played_at_ms, delta, summary_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (username, hand_id) DO UPDATE
SET played_at_ms = excluded.played_at_ms,
    delta = excluded.delta,
    summary_json = excluded.summary_json
`), user, rec.SessionID, rec.HandID, rec.HandNo, rec.PlayedAt.UnixMilli(), delta, string(summaryRaw)); err != nil {
			return err
		}
		if err := s.trimTx(ctx, tx, user); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLService) trimTx(ctx context.Context, tx *sql.Tx, user string) error {
	if s.recentLimit <= 0 {
		return nil
	}
	limitAll := "LIMIT -1"
	if s.db.Dialect == store.Postgres {
		limitAll = "LIMIT ALL"
	}
	_, err := tx.ExecContext(ctx, s.db.Rebind(`
DELETE FROM user_hand_history
WHERE username = ?
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM user_hand_history
      WHERE username = ?
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      `+limitAll+` OFFSET ?
  )
`), user, user, s.recentLimit)
	return err
}

func (s *SQLService) ListRecent(ctx context.Context, user string, limit int) ([]HistoryItem, error) {
	user = normalizeUser(user)
	if user == "" {
		return []HistoryItem{}, nil
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
SELECT hand_id, session_id, hand_no, played_at_ms, delta, summary_json, is_saved, saved_at_ms
FROM user_hand_history
WHERE username = ?
ORDER BY played_at_ms DESC, id DESC
LIMIT ?
`), user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]HistoryItem, 0, limit)
	for rows.Next() {
		var item HistoryItem
		var playedAt int64
		var summaryRaw string
		var saved int
		var savedAt sql.NullInt64
		if err := rows.Scan(&item.HandID, &item.SessionID, &item.HandNo, &playedAt, &item.Delta, &summaryRaw, &saved, &savedAt); err != nil {
			return nil, err
		}
		item.PlayedAt = time.UnixMilli(playedAt).UTC()
		item.IsSaved = saved != 0
		if savedAt.Valid {
			t := time.UnixMilli(savedAt.Int64).UTC()
			item.SavedAt = &t
		}
		if summaryRaw != "" {
			_ = json.Unmarshal([]byte(summaryRaw), &item.Summary)
		}
		if item.Summary == nil {
			item.Summary = map[string]any{}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLService) GetHandEvents(ctx context.Context, user, handID string) ([]EventItem, error) {
	user = normalizeUser(user)
	if user == "" || strings.TrimSpace(handID) == "" {
		return nil, ErrNotFound
	}

	var exists int
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
SELECT 1 FROM user_hand_history WHERE username = ? AND hand_id = ?
`), user, handID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
SELECT seq, event_type, envelope_b64, server_ts_ms
FROM ledger_event_stream
WHERE hand_id = ?
ORDER BY seq ASC
`), handID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]EventItem, 0, 64)
	for rows.Next() {
		var e EventItem
		var seq int64
		var serverTs sql.NullInt64
		if err := rows.Scan(&seq, &e.EventType, &e.EnvelopeB64, &serverTs); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		if serverTs.Valid {
			v := serverTs.Int64
			e.ServerTsMs = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

func (s *SQLService) SetSaved(ctx context.Context, user, handID string, saved bool) error {
	user = normalizeUser(user)
	if user == "" || strings.TrimSpace(handID) == "" {
		return ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	if err := tx.QueryRowContext(ctx, s.db.Rebind(`
SELECT is_saved FROM user_hand_history WHERE username = ? AND hand_id = ?
`), user, handID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if (current != 0) == saved {
		return tx.Commit()
	}

	if saved {
		var count int
		if err := tx.QueryRowContext(ctx, s.db.Rebind(`
SELECT COUNT(1) FROM user_hand_history WHERE username = ? AND is_saved = 1
`), user).Scan(&count); err != nil {
			return err
		}
		if count >= s.savedLimit {
			return ErrSavedLimitReach
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
UPDATE user_hand_history SET is_saved = 1, saved_at_ms = ? WHERE username = ? AND hand_id = ?
`), time.Now().UnixMilli(), user, handID); err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`
UPDATE user_hand_history SET is_saved = 0, saved_at_ms = NULL WHERE username = ? AND hand_id = ?
`), user, handID); err != nil {
		return err
	}
	if err := s.trimTx(ctx, tx, user); err != nil {
		return err
	}
	return tx.Commit()
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
