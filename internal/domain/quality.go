package domain

import "fmt"

// Quality is the four-level response given after revealing a card.
type Quality int

const (
	Again Quality = iota + 1 // failed to recall
	Hard
	Good
	Easy
)

var qualityNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether q is one of Again, Hard, Good or Easy.
func (q Quality) IsValid() bool {
	return q >= Again && q <= Easy
}

// Passed reports whether q counts as a successful recall. Hard passes.
func (q Quality) Passed() bool {
	return q >= Hard && q <= Easy
}

func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}
