// Package due selects the study cards eligible for review on a given day.
package due

import (
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/progress"
)

// FallbackDailyLimit applies when neither the deck nor the settings set a limit.
const FallbackDailyLimit = 15

// SameDay reports whether t falls on now's calendar date in now's location.
func SameDay(t, now time.Time) bool {
	y1, m1, d1 := t.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// IsDue reports whether the card's review date is on or before now's date.
// Time of day is ignored.
func IsDue(card domain.StudyCard, now time.Time) bool {
	y, m, d := card.NextReviewDate.In(now.Location()).Date()
	reviewDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	ny, nm, nd := now.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())
	return !reviewDay.After(today)
}

// Cards returns the cards due on or before now's calendar date.
func Cards(cards []domain.StudyCard, now time.Time) []domain.StudyCard {
	return lo.Filter(cards, func(c domain.StudyCard, _ int) bool {
		return IsDue(c, now)
	})
}

// DeckCards returns the due cards whose highlight belongs to bookID. Cards
// whose highlight cannot be found are dropped.
func DeckCards(bookID string, cards []domain.StudyCard, highlights []domain.Highlight, now time.Time) []domain.StudyCard {
	byID := lo.KeyBy(highlights, func(h domain.Highlight) string { return h.ID })
	return lo.Filter(Cards(cards, now), func(c domain.StudyCard, _ int) bool {
		h, ok := byID[c.HighlightID]
		return ok && h.BookID == bookID
	})
}

// NotReviewedToday drops cards already reviewed on now's calendar date.
// Cards never reviewed always pass.
func NotReviewedToday(cards []domain.StudyCard, now time.Time) []domain.StudyCard {
	return lo.Filter(cards, func(c domain.StudyCard, _ int) bool {
		return c.LastReviewedAt == nil || !SameDay(*c.LastReviewedAt, now)
	})
}

// DailyLimit resolves a deck's limit: deck override, then the global
// setting, then FallbackDailyLimit. Non-positive values count as unset.
func DailyLimit(book *domain.Book, settings domain.Settings) int {
	if book != nil && book.DailyReviewLimit != nil && *book.DailyReviewLimit > 0 {
		return *book.DailyReviewLimit
	}
	if settings.DailyReviewLimit > 0 {
		return settings.DailyReviewLimit
	}
	return FallbackDailyLimit
}

// RemainingQuota is how many more reviews the deck allows today. It is never
// negative.
func RemainingQuota(bookID string, book *domain.Book, settings domain.Settings, ledger domain.DailyProgress, now time.Time) int {
	done := progress.Count(ledger, bookID, now)
	return max(0, DailyLimit(book, settings)-done)
}
