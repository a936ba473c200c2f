package domain

import "time"

// Stage is the learning stage derived from a card's repetition count.
type Stage int

const (
	StageNew Stage = iota
	StageLearning
	StageReview
)

func (s Stage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageLearning:
		return "learning"
	case StageReview:
		return "review"
	}
	return "unknown"
}

// GraduatedRepetitions is the repetition count at which a card leaves learning.
const GraduatedRepetitions = 5

// StudyCard holds the scheduling state of one highlight selected for review.
// There is at most one card per highlight.
type StudyCard struct {
	ID             string     `json:"id"`
	HighlightID    string     `json:"highlightId"`
	EaseFactor     float64    `json:"easeFactor"`
	Interval       int        `json:"interval"`    // days until the next review, 0 = never passed
	Repetitions    int        `json:"repetitions"` // consecutive passes since the last failure
	NextReviewDate time.Time  `json:"nextReviewDate"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Stage reports whether the card is new, learning or graduated.
func (c StudyCard) Stage() Stage {
	switch {
	case c.Repetitions == 0 && c.Interval == 0:
		return StageNew
	case c.Repetitions >= GraduatedRepetitions:
		return StageReview
	}
	// Includes lapsed cards: repetitions reset but an interval assigned.
	return StageLearning
}

// Clone returns a copy that shares no pointers with c.
func (c StudyCard) Clone() StudyCard {
	out := c
	if c.LastReviewedAt != nil {
		v := *c.LastReviewedAt
		out.LastReviewedAt = &v
	}
	return out
}

// ReviewLog records a single review event. Interval and EaseFactor are the
// values the card had before the review was applied.
type ReviewLog struct {
	ID         string    `json:"id"`
	CardID     string    `json:"cardId"`
	Quality    Quality   `json:"quality"`
	ReviewedAt time.Time `json:"reviewedAt"`
	Interval   int       `json:"interval"`
	EaseFactor float64   `json:"easeFactor"`
	DurationMs *int64    `json:"durationMs,omitempty"`
}
