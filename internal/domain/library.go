package domain

import "time"

// Book is a deck: the highlights taken from one source book.
type Book struct {
	ID     string
	Title  string
	Author string
	// Optional overrides; nil means fall back to the global settings.
	DailyReviewLimit  *int
	InitialEaseFactor *float64
	CreatedAt         time.Time
}

// Highlight is a passage marked in a book, optionally annotated.
type Highlight struct {
	ID       string
	BookID   string
	Text     string
	Note     string
	Location string
	// Fingerprint identifies the highlight's content across imports.
	Fingerprint string
	AddedAt     *time.Time
	CreatedAt   time.Time
}

// Settings are the user's global review preferences.
type Settings struct {
	DailyReviewLimit int           `json:"dailyReviewLimit"`
	DailyProgress    DailyProgress `json:"dailyProgress"`
}

// Source is a location highlights are imported from: a local path or a git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned *time.Time
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)
