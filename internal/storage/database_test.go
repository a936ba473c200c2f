package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/marginalia/internal/domain"
)

var t0 = time.Date(2024, 9, 2, 19, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedBook(t *testing.T, db *DB, id, title string) domain.Book {
	t.Helper()
	b := domain.Book{ID: id, Title: title, Author: "Author", CreatedAt: t0}
	if err := db.InsertBook(context.Background(), b); err != nil {
		t.Fatalf("InsertBook failed: %v", err)
	}
	return b
}

func TestBooks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBook(t, db, "b2", "Walden")
	seedBook(t, db, "b1", "Meditations")

	books, err := db.ListBooks(ctx)
	if err != nil {
		t.Fatalf("ListBooks failed: %v", err)
	}
	if len(books) != 2 || books[0].Title != "Meditations" || books[1].Title != "Walden" {
		t.Fatalf("Expected books ordered by title, got %+v", books)
	}
	if books[0].DailyReviewLimit != nil || books[0].InitialEaseFactor != nil {
		t.Errorf("Expected no overrides, got %+v", books[0])
	}

	limit, ease := 7, 2.1
	if err := db.UpdateBookSettings(ctx, "b1", &limit, &ease); err != nil {
		t.Fatalf("UpdateBookSettings failed: %v", err)
	}
	b, err := db.FindBookByTitle(ctx, "Meditations")
	if err != nil || b == nil {
		t.Fatalf("FindBookByTitle failed: %v", err)
	}
	if b.DailyReviewLimit == nil || *b.DailyReviewLimit != 7 || b.InitialEaseFactor == nil || *b.InitialEaseFactor != 2.1 {
		t.Errorf("Overrides not stored: %+v", b)
	}

	if err := db.UpdateBookSettings(ctx, "missing", nil, nil); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("Expected ErrBookNotFound, got %v", err)
	}
	if b, err := db.FindBookByTitle(ctx, "Nope"); err != nil || b != nil {
		t.Errorf("Expected (nil, nil) for unknown title, got (%v, %v)", b, err)
	}
}

func TestImportHighlightAndCards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedBook(t, db, "b1", "Walden")

	added := t0.Add(-24 * time.Hour)
	h := domain.Highlight{ID: "h1", BookID: "b1", Text: "Simplify, simplify.", Location: "120-121", Fingerprint: "fp1", AddedAt: &added, CreatedAt: t0}
	card := domain.StudyCard{ID: "c1", HighlightID: "h1", EaseFactor: 2.5, NextReviewDate: t0, CreatedAt: t0}
	if err := db.ImportHighlight(ctx, h, card); err != nil {
		t.Fatalf("ImportHighlight failed: %v", err)
	}

	if err := db.ImportHighlight(ctx, domain.Highlight{ID: "h2", BookID: "b1", Text: "dup", Fingerprint: "fp1", CreatedAt: t0},
		domain.StudyCard{ID: "c2", HighlightID: "h2", NextReviewDate: t0, CreatedAt: t0}); err == nil {
		t.Fatal("Expected duplicate fingerprint to fail")
	}
	cards, err := db.ListCards(ctx)
	if err != nil {
		t.Fatalf("ListCards failed: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("Expected failed import to roll back its card, got %d cards", len(cards))
	}

	found, err := db.FindHighlightByFingerprint(ctx, "fp1")
	if err != nil || found == nil {
		t.Fatalf("FindHighlightByFingerprint failed: %v", err)
	}
	if found.AddedAt == nil || !found.AddedAt.Equal(added) || found.Location != "120-121" {
		t.Errorf("Highlight round trip mismatch: %+v", found)
	}

	reviewed := t0.Add(time.Hour)
	updated := cards[0]
	updated.Interval, updated.Repetitions, updated.EaseFactor = 6, 2, 2.36
	updated.NextReviewDate = t0.AddDate(0, 0, 6)
	updated.LastReviewedAt = &reviewed
	if err := db.UpsertCard(ctx, updated); err != nil {
		t.Fatalf("UpsertCard failed: %v", err)
	}
	cards, _ = db.ListCards(ctx)
	got := cards[0]
	if got.Interval != 6 || got.Repetitions != 2 || got.EaseFactor != 2.36 || !got.NextReviewDate.Equal(updated.NextReviewDate) {
		t.Errorf("Upsert not applied: %+v", got)
	}
	if got.LastReviewedAt == nil || !got.LastReviewedAt.Equal(reviewed) {
		t.Errorf("Expected last reviewed %v, got %v", reviewed, got.LastReviewedAt)
	}

	if err := db.DeleteHighlight(ctx, "h1"); err != nil {
		t.Fatalf("DeleteHighlight failed: %v", err)
	}
	if cards, _ := db.ListCards(ctx); len(cards) != 0 {
		t.Errorf("Expected card to be deleted with its highlight, got %d", len(cards))
	}
}

func TestReviewLogs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	duration := int64(4200)
	logs := []domain.ReviewLog{
		{ID: "l1", CardID: "c1", Quality: domain.Good, ReviewedAt: t0, Interval: 0, EaseFactor: 2.5, DurationMs: &duration},
		{ID: "l2", CardID: "c1", Quality: domain.Hard, ReviewedAt: t0.AddDate(0, 0, 1), Interval: 1, EaseFactor: 2.5},
	}
	for _, l := range logs {
		if err := db.InsertReviewLog(ctx, l); err != nil {
			t.Fatalf("InsertReviewLog failed: %v", err)
		}
	}
	if err := db.InsertReviewLog(ctx, domain.ReviewLog{ID: "bad", CardID: "c1", Quality: 5, ReviewedAt: t0}); err == nil {
		t.Error("Expected out-of-range quality to be rejected")
	}

	got, err := db.ListReviewLogs(ctx, "c1")
	if err != nil {
		t.Fatalf("ListReviewLogs failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "l1" || got[1].Quality != domain.Hard {
		t.Fatalf("Unexpected logs: %+v", got)
	}
	if got[0].DurationMs == nil || *got[0].DurationMs != 4200 || got[1].DurationMs != nil {
		t.Errorf("Duration not round tripped: %+v", got)
	}

	if err := db.DeleteReviewLog(ctx, "l2"); err != nil {
		t.Fatalf("DeleteReviewLog failed: %v", err)
	}
	if err := db.DeleteReviewLog(ctx, "l2"); err != nil {
		t.Errorf("Deleting a missing log should not fail: %v", err)
	}
	if got, _ := db.ListReviewLogs(ctx, "c1"); len(got) != 1 {
		t.Errorf("Expected 1 log after delete, got %d", len(got))
	}

	if err := db.InsertReviewLog(ctx, domain.ReviewLog{ID: "l3", CardID: "c2", Quality: domain.Again, ReviewedAt: t0, EaseFactor: 2.5}); err != nil {
		t.Fatalf("InsertReviewLog failed: %v", err)
	}
	if got, _ := db.ListReviewLogs(ctx, ""); len(got) != 2 {
		t.Errorf("Expected 2 logs across cards, got %d", len(got))
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s, err := db.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if s.DailyReviewLimit != 0 || s.DailyProgress.Date != "" {
		t.Errorf("Expected zero settings, got %+v", s)
	}

	want := domain.Settings{
		DailyReviewLimit: 20,
		DailyProgress:    domain.DailyProgress{Date: "2024-09-02", BookReviews: map[string]int{"b1": 3}},
	}
	for i := 0; i < 2; i++ {
		if err := db.UpsertSettings(ctx, want); err != nil {
			t.Fatalf("UpsertSettings failed: %v", err)
		}
	}
	s, err = db.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if s.DailyReviewLimit != 20 || s.DailyProgress.BookReviews["b1"] != 3 {
		t.Errorf("Settings round trip mismatch: %+v", s)
	}
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "/tmp/kindle", domain.SourceLocal)
	if err != nil {
		t.Fatalf("InsertSource failed: %v", err)
	}
	if _, err := db.InsertSource(ctx, "/tmp/kindle", domain.SourceLocal); err == nil {
		t.Error("Expected duplicate source path to fail")
	}

	s, err := db.FindSourceByPath(ctx, "/tmp/kindle")
	if err != nil || s == nil {
		t.Fatalf("FindSourceByPath failed: %v", err)
	}
	if s.ID != id || s.Type != domain.SourceLocal || s.LastScanned != nil {
		t.Errorf("Unexpected source: %+v", s)
	}

	if err := db.UpdateSourceLastScanned(ctx, id, t0); err != nil {
		t.Fatalf("UpdateSourceLastScanned failed: %v", err)
	}
	all, err := db.GetAllSources(ctx)
	if err != nil {
		t.Fatalf("GetAllSources failed: %v", err)
	}
	if len(all) != 1 || all[0].LastScanned == nil || !all[0].LastScanned.Equal(t0) {
		t.Errorf("Expected scanned source, got %+v", all)
	}

	if err := db.DeleteSource(ctx, id); err != nil {
		t.Fatalf("DeleteSource failed: %v", err)
	}
	if err := db.DeleteSource(ctx, id); !errors.Is(err, domain.ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, got %v", err)
	}
}
