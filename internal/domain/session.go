package domain

import (
	"slices"
	"time"
)

// DailyProgress counts reviews per deck for a single calendar day.
type DailyProgress struct {
	Date        string         `json:"date"` // YYYY-MM-DD
	BookReviews map[string]int `json:"bookReviews"`
}

// SessionResult is the answer recorded for one completed card.
type SessionResult struct {
	CardID    string    `json:"cardId"`
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry is one undo step. PreviousCard is the full card state before
// the review so undo can restore it exactly.
type HistoryEntry struct {
	CardID       string    `json:"cardId"`
	PreviousCard StudyCard `json:"previousCard"`
	Quality      Quality   `json:"quality"`
	Timestamp    time.Time `json:"timestamp"`
	ReviewLogID  string    `json:"reviewLogId"`
	BookID       string    `json:"bookId,omitempty"`
}

// StudySession is one resumable sitting. CompletedIDs is always a prefix of
// CardIDs and History has one entry per completed card.
type StudySession struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	CardIDs      []string        `json:"cardIds"`
	CompletedIDs []string        `json:"completedIds"`
	Results      []SessionResult `json:"results"`
	History      []HistoryEntry  `json:"history"`
	BookID       string          `json:"bookId,omitempty"` // empty for an all-decks session
}

// Complete reports whether every queued card has been answered.
func (s *StudySession) Complete() bool {
	return len(s.CompletedIDs) == len(s.CardIDs)
}

// Remaining is the number of queued cards still to answer.
func (s *StudySession) Remaining() int {
	return len(s.CardIDs) - len(s.CompletedIDs)
}

// NextCardID returns the id of the next card to show, or "" when complete.
func (s *StudySession) NextCardID() string {
	if s.Complete() {
		return ""
	}
	return s.CardIDs[len(s.CompletedIDs)]
}

// Clone returns a deep copy that shares no slices or card state with s.
func (s *StudySession) Clone() *StudySession {
	if s == nil {
		return nil
	}
	out := *s
	out.CardIDs = slices.Clone(s.CardIDs)
	out.CompletedIDs = slices.Clone(s.CompletedIDs)
	out.Results = slices.Clone(s.Results)
	out.History = make([]HistoryEntry, len(s.History))
	for i, h := range s.History {
		h.PreviousCard = h.PreviousCard.Clone()
		out.History[i] = h
	}
	return &out
}
