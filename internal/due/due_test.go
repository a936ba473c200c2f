package due

import (
	"testing"
	"time"

	"github.com/conorfennell/marginalia/internal/domain"
)

var now = time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func card(id, highlightID string, due time.Time) domain.StudyCard {
	return domain.StudyCard{ID: id, HighlightID: highlightID, EaseFactor: 2.5, NextReviewDate: due}
}

func ids(cards []domain.StudyCard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCards(t *testing.T) {
	startOfDay := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	endOfDay := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)
	cards := []domain.StudyCard{
		card("overdue", "h", now.AddDate(0, 0, -3)),
		card("midnight", "h", startOfDay),
		card("late-today", "h", endOfDay),
		card("tomorrow", "h", startOfDay.AddDate(0, 0, 1)),
	}

	got := ids(Cards(cards, now))
	expected := []string{"overdue", "midnight", "late-today"}
	if !equal(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestCardsUsesViewerZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	viewerNow := time.Date(2024, 6, 11, 7, 0, 0, 0, tokyo) // 2024-06-10 22:00 UTC
	// 2024-06-11 01:00 UTC is 10:00 on the 11th in Tokyo: due today there.
	c := card("c", "h", time.Date(2024, 6, 11, 1, 0, 0, 0, time.UTC))
	if !IsDue(c, viewerNow) {
		t.Errorf("Expected card due in the viewer's zone")
	}
	if IsDue(c, viewerNow.UTC()) {
		t.Errorf("Expected card not yet due in UTC")
	}
}

func TestDeckCardsDropsOrphans(t *testing.T) {
	highlights := []domain.Highlight{
		{ID: "h1", BookID: "b1"},
		{ID: "h2", BookID: "b2"},
	}
	cards := []domain.StudyCard{
		card("c1", "h1", now),
		card("c2", "h2", now),
		card("orphan", "missing", now),
		card("future", "h1", now.AddDate(0, 0, 2)),
	}
	got := ids(DeckCards("b1", cards, highlights, now))
	if !equal(got, []string{"c1"}) {
		t.Errorf("Expected [c1], got %v", got)
	}
}

func TestNotReviewedToday(t *testing.T) {
	earlier := now.Add(-3 * time.Hour)
	yesterday := now.AddDate(0, 0, -1)
	cards := []domain.StudyCard{
		{ID: "never"},
		{ID: "today", LastReviewedAt: &earlier},
		{ID: "yesterday", LastReviewedAt: &yesterday},
	}
	got := ids(NotReviewedToday(cards, now))
	if !equal(got, []string{"never", "yesterday"}) {
		t.Errorf("Expected [never yesterday], got %v", got)
	}
}

func TestRemainingQuota(t *testing.T) {
	today := domain.DailyProgress{Date: "2024-06-10", BookReviews: map[string]int{"b1": 5}}
	stale := domain.DailyProgress{Date: "2024-06-09", BookReviews: map[string]int{"b1": 5}}

	testCases := []struct {
		name     string
		book     *domain.Book
		settings domain.Settings
		ledger   domain.DailyProgress
		expected int
	}{
		{"deck limit reached", &domain.Book{DailyReviewLimit: ptr(5)}, domain.Settings{DailyReviewLimit: 30}, today, 0},
		{"deck limit exceeded never negative", &domain.Book{DailyReviewLimit: ptr(3)}, domain.Settings{}, today, 0},
		{"global limit", &domain.Book{}, domain.Settings{DailyReviewLimit: 8}, today, 3},
		{"fallback limit", nil, domain.Settings{}, today, 10},
		{"stale ledger is ignored", &domain.Book{DailyReviewLimit: ptr(5)}, domain.Settings{}, stale, 5},
		{"zero override falls through", &domain.Book{DailyReviewLimit: ptr(0)}, domain.Settings{DailyReviewLimit: 7}, today, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := RemainingQuota("b1", tc.book, tc.settings, tc.ledger, now)
			if got != tc.expected {
				t.Errorf("Expected quota %d, got %d", tc.expected, got)
			}
		})
	}
}
