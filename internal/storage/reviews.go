package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/marginalia/internal/domain"
)

const settingsKey = "settings"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCard(ctx context.Context, ex execer, c domain.StudyCard) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO study_cards (id, highlight_id, ease_factor, interval, repetitions, next_review_date, last_reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ease_factor = excluded.ease_factor,
			interval = excluded.interval,
			repetitions = excluded.repetitions,
			next_review_date = excluded.next_review_date,
			last_reviewed_at = excluded.last_reviewed_at
	`, c.ID, c.HighlightID, c.EaseFactor, c.Interval, c.Repetitions, c.NextReviewDate, nullTime(c.LastReviewedAt), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", c.ID, err)
	}
	return nil
}

// UpsertCard inserts a card or overwrites its scheduling state.
func (db *DB) UpsertCard(ctx context.Context, c domain.StudyCard) error {
	return upsertCard(ctx, db.conn, c)
}

// ListCards returns every study card.
func (db *DB) ListCards(ctx context.Context) ([]domain.StudyCard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, highlight_id, ease_factor, interval, repetitions, next_review_date, last_reviewed_at, created_at
		FROM study_cards ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.StudyCard
	for rows.Next() {
		var c domain.StudyCard
		var last sql.NullTime
		if err := rows.Scan(&c.ID, &c.HighlightID, &c.EaseFactor, &c.Interval, &c.Repetitions, &c.NextReviewDate, &last, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		c.LastReviewedAt = timePtr(last)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// InsertReviewLog appends an entry to the review log.
func (db *DB) InsertReviewLog(ctx context.Context, l domain.ReviewLog) error {
	var duration sql.NullInt64
	if l.DurationMs != nil {
		duration = sql.NullInt64{Int64: *l.DurationMs, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO review_logs (id, card_id, quality, reviewed_at, interval, ease_factor, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.CardID, int(l.Quality), l.ReviewedAt, l.Interval, l.EaseFactor, duration)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", l.CardID, err)
	}
	return nil
}

// DeleteReviewLog removes a review log entry. Deleting a missing entry is not an error.
func (db *DB) DeleteReviewLog(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM review_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete review log %s: %w", id, err)
	}
	return nil
}

// ListReviewLogs returns a card's review history, oldest first. An empty
// cardID returns the history of every card.
func (db *DB) ListReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, card_id, quality, reviewed_at, interval, ease_factor, duration_ms
		FROM review_logs WHERE ? = '' OR card_id = ? ORDER BY reviewed_at, id
	`, cardID, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		var quality int
		var duration sql.NullInt64
		if err := rows.Scan(&l.ID, &l.CardID, &quality, &l.ReviewedAt, &l.Interval, &l.EaseFactor, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		l.Quality = domain.Quality(quality)
		if duration.Valid {
			v := duration.Int64
			l.DurationMs = &v
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetSettings returns the stored user settings, or zero settings if none were saved.
func (db *DB) GetSettings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to get settings: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return settings, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

// UpsertSettings replaces the stored user settings.
func (db *DB) UpsertSettings(ctx context.Context, s domain.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingsKey, string(raw))
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
