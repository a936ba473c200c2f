package storage

const schema = `
-- One row per source book; the deck a highlight's card belongs to.
CREATE TABLE IF NOT EXISTS books (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL UNIQUE,
    author TEXT NOT NULL DEFAULT '',
    daily_review_limit INTEGER,
    initial_ease_factor REAL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS highlights (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    text TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL UNIQUE,
    added_at DATETIME,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(book_id) REFERENCES books(id) ON DELETE CASCADE
);

-- At most one study card per highlight.
CREATE TABLE IF NOT EXISTS study_cards (
    id TEXT PRIMARY KEY,
    highlight_id TEXT NOT NULL UNIQUE,
    ease_factor REAL NOT NULL,
    interval INTEGER NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_date DATETIME NOT NULL,
    last_reviewed_at DATETIME,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(highlight_id) REFERENCES highlights(id) ON DELETE CASCADE
);

-- Append-only; interval and ease_factor are the card's values before the review.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    quality INTEGER NOT NULL CHECK (quality BETWEEN 1 AND 4),
    reviewed_at DATETIME NOT NULL,
    interval INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    duration_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id, reviewed_at);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Where highlights are imported from: a local path or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);
`
