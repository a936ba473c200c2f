package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/marginalia/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	// Every pooled connection enforces foreign keys so deletes cascade.
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+"_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; background writes queue on this connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// InsertBook stores a new book.
func (db *DB) InsertBook(ctx context.Context, b domain.Book) error {
	var limit sql.NullInt64
	if b.DailyReviewLimit != nil {
		limit = sql.NullInt64{Int64: int64(*b.DailyReviewLimit), Valid: true}
	}
	var ease sql.NullFloat64
	if b.InitialEaseFactor != nil {
		ease = sql.NullFloat64{Float64: *b.InitialEaseFactor, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO books (id, title, author, daily_review_limit, initial_ease_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.Title, b.Author, limit, ease, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert book %q: %w", b.Title, err)
	}
	return nil
}

const bookColumns = `id, title, author, daily_review_limit, initial_ease_factor, created_at`

func scanBook(row scanner) (domain.Book, error) {
	var b domain.Book
	var limit sql.NullInt64
	var ease sql.NullFloat64
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &limit, &ease, &b.CreatedAt); err != nil {
		return b, err
	}
	if limit.Valid {
		v := int(limit.Int64)
		b.DailyReviewLimit = &v
	}
	if ease.Valid {
		v := ease.Float64
		b.InitialEaseFactor = &v
	}
	return b, nil
}

// FindBookByTitle retrieves a book by its exact title.
func (db *DB) FindBookByTitle(ctx context.Context, title string) (*domain.Book, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE title = ?`, title)
	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Book not found
		}
		return nil, fmt.Errorf("failed to find book %q: %w", title, err)
	}
	return &b, nil
}

// ListBooks returns every book ordered by title.
func (db *DB) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book row: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBookSettings sets or clears a book's review overrides.
func (db *DB) UpdateBookSettings(ctx context.Context, id string, dailyLimit *int, initialEase *float64) error {
	var limit sql.NullInt64
	if dailyLimit != nil {
		limit = sql.NullInt64{Int64: int64(*dailyLimit), Valid: true}
	}
	var ease sql.NullFloat64
	if initialEase != nil {
		ease = sql.NullFloat64{Float64: *initialEase, Valid: true}
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE books SET daily_review_limit = ?, initial_ease_factor = ? WHERE id = ?
	`, limit, ease, id)
	if err != nil {
		return fmt.Errorf("failed to update settings for book %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %s: %w", id, domain.ErrBookNotFound)
	}
	return nil
}

const highlightColumns = `id, book_id, text, note, location, fingerprint, added_at, created_at`

func scanHighlight(row scanner) (domain.Highlight, error) {
	var h domain.Highlight
	var added sql.NullTime
	err := row.Scan(&h.ID, &h.BookID, &h.Text, &h.Note, &h.Location, &h.Fingerprint, &added, &h.CreatedAt)
	h.AddedAt = timePtr(added)
	return h, err
}

// FindHighlightByFingerprint retrieves a highlight by its content fingerprint.
func (db *DB) FindHighlightByFingerprint(ctx context.Context, fingerprint string) (*domain.Highlight, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+highlightColumns+` FROM highlights WHERE fingerprint = ?`, fingerprint)
	h, err := scanHighlight(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Highlight not found
		}
		return nil, fmt.Errorf("failed to find highlight %s: %w", fingerprint, err)
	}
	return &h, nil
}

// ListHighlights returns every highlight.
func (db *DB) ListHighlights(ctx context.Context) ([]domain.Highlight, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+highlightColumns+` FROM highlights ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}
	defer rows.Close()

	var highlights []domain.Highlight
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan highlight row: %w", err)
		}
		highlights = append(highlights, h)
	}
	return highlights, rows.Err()
}

// ImportHighlight inserts a highlight together with its study card.
func (db *DB) ImportHighlight(ctx context.Context, h domain.Highlight, card domain.StudyCard) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import of %s: %w", h.Fingerprint, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO highlights (id, book_id, text, note, location, fingerprint, added_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.BookID, h.Text, h.Note, h.Location, h.Fingerprint, nullTime(h.AddedAt), h.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert highlight %s: %w", h.Fingerprint, err)
	}
	if err := upsertCard(ctx, tx, card); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import of %s: %w", h.Fingerprint, err)
	}
	return nil
}

// DeleteHighlight removes a highlight; its card goes with it.
func (db *DB) DeleteHighlight(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM highlights WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete highlight %s: %w", id, err)
	}
	return nil
}
