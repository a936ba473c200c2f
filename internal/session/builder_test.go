package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/due"
)

var t0 = time.Date(2024, 9, 2, 19, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// newLibrary builds a library with one book per entry of dueCounts; each book
// gets that many cards, due on successive earlier days.
func newLibrary(dueCounts map[string]int, order ...string) Library {
	var lib Library
	for _, bookID := range order {
		lib.Books = append(lib.Books, domain.Book{ID: bookID, Title: "Book " + bookID})
		for i := 0; i < dueCounts[bookID]; i++ {
			hid := fmt.Sprintf("%s-h%d", bookID, i)
			lib.Highlights = append(lib.Highlights, domain.Highlight{ID: hid, BookID: bookID})
			lib.Cards = append(lib.Cards, domain.StudyCard{
				ID:             fmt.Sprintf("%s-c%d", bookID, i),
				HighlightID:    hid,
				EaseFactor:     2.5,
				NextReviewDate: t0.AddDate(0, 0, -i),
			})
		}
	}
	return lib
}

func TestBuildDeckOrdersOldestFirstAndCaps(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 6}, "a")
	lib.Books[0].DailyReviewLimit = ptr(4)

	got := BuildDeck("a", lib, domain.DailyProgress{}, t0)
	expected := []string{"a-c5", "a-c4", "a-c3", "a-c2"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestBuildDeckStableOnTies(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 3}, "a")
	for i := range lib.Cards {
		lib.Cards[i].NextReviewDate = t0
	}
	got := BuildDeck("a", lib, domain.DailyProgress{}, t0)
	expected := []string{"a-c0", "a-c1", "a-c2"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected ties in original order %v, got %v", expected, got)
	}
}

func TestBuildDeckExcludesReviewedToday(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 3}, "a")
	earlier := t0.Add(-2 * time.Hour)
	lib.Cards[1].LastReviewedAt = &earlier

	got := BuildDeck("a", lib, domain.DailyProgress{}, t0)
	for _, id := range got {
		if id == "a-c1" {
			t.Errorf("Card reviewed today was queued: %v", got)
		}
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 cards, got %v", got)
	}
}

func TestBuildDeckDailyLimitReached(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 9}, "a")
	lib.Books[0].DailyReviewLimit = ptr(5)
	ledger := domain.DailyProgress{Date: "2024-09-02", BookReviews: map[string]int{"a": 5}}

	if q := due.RemainingQuota("a", &lib.Books[0], lib.Settings, ledger, t0); q != 0 {
		t.Errorf("Expected remaining quota 0, got %d", q)
	}
	if got := BuildDeck("a", lib, ledger, t0); len(got) != 0 {
		t.Errorf("Expected empty session, got %v", got)
	}
}

func TestBuildDeckNeverExceedsQuota(t *testing.T) {
	for limit := 1; limit <= 12; limit++ {
		for done := 0; done <= limit+1; done++ {
			lib := newLibrary(map[string]int{"a": 10}, "a")
			lib.Settings.DailyReviewLimit = limit
			ledger := domain.DailyProgress{Date: "2024-09-02", BookReviews: map[string]int{"a": done}}
			quota := due.RemainingQuota("a", &lib.Books[0], lib.Settings, ledger, t0)
			if got := BuildDeck("a", lib, ledger, t0); len(got) > quota {
				t.Errorf("limit=%d done=%d: %d cards exceed quota %d", limit, done, len(got), quota)
			}
		}
	}
}

func TestBuildAllDecksInterleaves(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 5, "b": 2}, "a", "b")

	got := BuildAllDecks(lib, domain.DailyProgress{}, t0)
	expected := []string{"a-c4", "b-c1", "a-c3", "b-c0", "a-c2", "a-c1", "a-c0"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}

	deckOf := func(id string) byte { return id[0] }
	remaining := map[byte]int{'a': 5, 'b': 2}
	for i := 0; i+2 < len(got); i++ {
		d := deckOf(got[i])
		if deckOf(got[i+1]) == d && deckOf(got[i+2]) == d {
			other := byte('a')
			if d == 'a' {
				other = 'b'
			}
			consumed := 0
			for _, id := range got[:i] {
				if deckOf(id) == other {
					consumed++
				}
			}
			if consumed < remaining[other] {
				t.Errorf("Three consecutive %c cards at %d while %c still had cards", d, i, other)
			}
		}
	}
}

func TestBuildAllDecksRespectsPerDeckQuota(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 4, "b": 4, "c": 0}, "a", "b", "c")
	lib.Books[0].DailyReviewLimit = ptr(2)
	ledger := domain.DailyProgress{Date: "2024-09-02", BookReviews: map[string]int{"b": 15}}

	got := BuildAllDecks(lib, ledger, t0)
	expected := []string{"a-c3", "a-c2"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestNeedsReplacement(t *testing.T) {
	current := &domain.StudySession{Date: t0.Add(-time.Hour), CardIDs: []string{"x"}, BookID: "a"}

	testCases := []struct {
		name     string
		existing *domain.StudySession
		bookID   string
		now      time.Time
		expected bool
	}{
		{"no session", nil, "a", t0, true},
		{"same scope same day", current, "a", t0, false},
		{"different scope", current, "", t0, true},
		{"next day", current, "a", t0.AddDate(0, 0, 1), true},
		{"empty queue", &domain.StudySession{Date: t0, BookID: "a"}, "a", t0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsReplacement(tc.existing, tc.bookID, tc.now); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestOverview(t *testing.T) {
	lib := newLibrary(map[string]int{"a": 3, "b": 1}, "a", "b")
	lib.Cards = append(lib.Cards, domain.StudyCard{ID: "future", HighlightID: "a-h0", NextReviewDate: t0.AddDate(0, 0, 3)})
	ledger := domain.DailyProgress{Date: "2024-09-02", BookReviews: map[string]int{"a": 4}}

	got := Overview(lib, ledger, t0)
	if len(got) != 2 {
		t.Fatalf("Expected 2 decks, got %d", len(got))
	}
	a := got[0]
	if a.Cards != 4 || a.Due != 3 || a.ReviewedToday != 4 || a.Remaining != due.FallbackDailyLimit-4 {
		t.Errorf("unexpected summary for a: %+v", a)
	}
	if got[1].Cards != 1 || got[1].Due != 1 || got[1].Remaining != due.FallbackDailyLimit {
		t.Errorf("unexpected summary for b: %+v", got[1])
	}
}
