package session

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/due"
	"github.com/conorfennell/marginalia/internal/progress"
)

// Library is the snapshot of the user's collection a session is built from.
type Library struct {
	Books      []domain.Book
	Highlights []domain.Highlight
	Cards      []domain.StudyCard
	Settings   domain.Settings
}

func (l Library) book(id string) *domain.Book {
	for i := range l.Books {
		if l.Books[i].ID == id {
			return &l.Books[i]
		}
	}
	return nil
}

// deckQueue returns the deck's cards for today: due, not yet reviewed today,
// oldest due first and capped at the remaining quota.
func deckQueue(bookID string, lib Library, ledger domain.DailyProgress, now time.Time) []domain.StudyCard {
	quota := due.RemainingQuota(bookID, lib.book(bookID), lib.Settings, ledger, now)
	if quota == 0 {
		return nil
	}
	cards := due.NotReviewedToday(due.DeckCards(bookID, lib.Cards, lib.Highlights, now), now)
	slices.SortStableFunc(cards, func(a, b domain.StudyCard) int {
		return a.NextReviewDate.Compare(b.NextReviewDate)
	})
	if len(cards) > quota {
		cards = cards[:quota]
	}
	return cards
}

func cardIDs(cards []domain.StudyCard) []string {
	return lo.Map(cards, func(c domain.StudyCard, _ int) string { return c.ID })
}

// BuildDeck returns the ordered card ids for a single-deck session. An empty
// result means there is nothing to study.
func BuildDeck(bookID string, lib Library, ledger domain.DailyProgress, now time.Time) []string {
	return cardIDs(deckQueue(bookID, lib, ledger, now))
}

// BuildAllDecks interleaves every deck's queue round-robin, one card per deck
// per pass in library order, so no deck dominates a mixed session.
func BuildAllDecks(lib Library, ledger domain.DailyProgress, now time.Time) []string {
	var queues [][]string
	for _, b := range lib.Books {
		if q := BuildDeck(b.ID, lib, ledger, now); len(q) > 0 {
			queues = append(queues, q)
		}
	}

	var out []string
	for pass := 0; len(queues) > 0; pass++ {
		remaining := queues[:0]
		for _, q := range queues {
			out = append(out, q[pass])
			if pass+1 < len(q) {
				remaining = append(remaining, q)
			}
		}
		queues = remaining
	}
	return out
}

// NeedsReplacement reports whether a start request for bookID must discard
// existing and build a new session: it is from another day, it has another
// deck scope, or its queue is empty.
func NeedsReplacement(existing *domain.StudySession, bookID string, now time.Time) bool {
	if existing == nil {
		return true
	}
	return !due.SameDay(existing.Date, now) || existing.BookID != bookID || len(existing.CardIDs) == 0
}

// DeckSummary is a deck's review status for today.
type DeckSummary struct {
	Book          domain.Book
	Cards         int
	Due           int
	ReviewedToday int
	Remaining     int
}

// Overview summarises every deck in library order.
func Overview(lib Library, ledger domain.DailyProgress, now time.Time) []DeckSummary {
	bookOf := lo.Associate(lib.Highlights, func(h domain.Highlight) (string, string) { return h.ID, h.BookID })
	cardsPerBook := map[string]int{}
	for _, c := range lib.Cards {
		cardsPerBook[bookOf[c.HighlightID]]++
	}

	return lo.Map(lib.Books, func(b domain.Book, _ int) DeckSummary {
		quota := due.RemainingQuota(b.ID, &b, lib.Settings, ledger, now)
		dueToday := due.NotReviewedToday(due.DeckCards(b.ID, lib.Cards, lib.Highlights, now), now)
		return DeckSummary{
			Book:          b,
			Cards:         cardsPerBook[b.ID],
			Due:           len(dueToday),
			ReviewedToday: progress.Count(ledger, b.ID, now),
			Remaining:     quota,
		}
	})
}
