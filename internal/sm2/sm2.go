// Package sm2 computes review intervals with a simplified SM-2 schedule that
// takes a four-level quality response.
package sm2

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/marginalia/internal/domain"
)

const (
	MinEaseFactor     = 1.3
	MaxEaseFactor     = 2.5
	DefaultEaseFactor = 2.5

	easeStep       = 0.15
	hardMultiplier = 1.2
)

// Next returns the card's scheduling state after a review of the given
// quality at now. The input card is not modified.
func Next(card domain.StudyCard, quality domain.Quality, now time.Time) (domain.StudyCard, error) {
	if !quality.IsValid() {
		return card, fmt.Errorf("%w: %d", domain.ErrInvalidQuality, int(quality))
	}

	next := card.Clone()
	ease := card.EaseFactor

	if quality == domain.Again {
		next.Repetitions = 0
		next.Interval = 1
	} else {
		switch card.Repetitions {
		case 0:
			next.Interval = 1
		case 1:
			if quality == domain.Hard {
				next.Interval = 3
			} else {
				next.Interval = 6
			}
		default:
			next.Interval = int(math.Round(float64(card.Interval) * ease))
			if quality == domain.Hard {
				next.Interval = max(1, int(math.Round(float64(next.Interval)*hardMultiplier/ease)))
			}
		}
		next.Repetitions = card.Repetitions + 1

		switch quality {
		case domain.Easy:
			ease += easeStep
		case domain.Hard:
			ease -= easeStep
		}
	}

	next.EaseFactor = ClampEase(ease)
	next.NextReviewDate = now.AddDate(0, 0, next.Interval)
	reviewed := now
	next.LastReviewedAt = &reviewed
	return next, nil
}

// ClampEase bounds an ease factor to [MinEaseFactor, MaxEaseFactor].
func ClampEase(ease float64) float64 {
	return math.Min(MaxEaseFactor, math.Max(MinEaseFactor, ease))
}

// NewCard creates the study card for a highlight. It is due immediately.
// initialEase is the deck's override, if any.
func NewCard(id, highlightID string, initialEase *float64, now time.Time) domain.StudyCard {
	ease := DefaultEaseFactor
	if initialEase != nil {
		ease = ClampEase(*initialEase)
	}
	return domain.StudyCard{
		ID:             id,
		HighlightID:    highlightID,
		EaseFactor:     ease,
		NextReviewDate: now,
		CreatedAt:      now,
	}
}
