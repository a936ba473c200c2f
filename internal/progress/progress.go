// Package progress keeps the per-deck review counters for the current day.
//
// Ledger values are treated as immutable: every operation returns a new
// DailyProgress and never mutates the map it was given.
package progress

import (
	"maps"
	"time"

	"github.com/conorfennell/marginalia/internal/domain"
)

const dateLayout = "2006-01-02"

// DateKey formats t's calendar date in t's own location.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// Today returns stored unchanged when it belongs to now's calendar date,
// otherwise an empty ledger for today. Call it at every read site so a
// process left open past midnight starts counting afresh.
func Today(stored domain.DailyProgress, now time.Time) domain.DailyProgress {
	today := DateKey(now)
	if stored.Date == today && stored.BookReviews != nil {
		return stored
	}
	return domain.DailyProgress{Date: today, BookReviews: map[string]int{}}
}

// Count returns the reviews recorded today for bookID.
func Count(p domain.DailyProgress, bookID string, now time.Time) int {
	return Today(p, now).BookReviews[bookID]
}

// Increment records one more review for bookID today.
func Increment(p domain.DailyProgress, bookID string, now time.Time) domain.DailyProgress {
	out := clone(Today(p, now))
	out.BookReviews[bookID]++
	return out
}

// Decrement removes one review for bookID today, never going below zero.
func Decrement(p domain.DailyProgress, bookID string, now time.Time) domain.DailyProgress {
	out := clone(Today(p, now))
	if out.BookReviews[bookID] > 1 {
		out.BookReviews[bookID]--
	} else {
		delete(out.BookReviews, bookID)
	}
	return out
}

func clone(p domain.DailyProgress) domain.DailyProgress {
	return domain.DailyProgress{Date: p.Date, BookReviews: maps.Clone(p.BookReviews)}
}
