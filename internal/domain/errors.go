package domain

import "errors"

var (
	ErrInvalidQuality  = errors.New("invalid review quality")
	ErrNoSession       = errors.New("no study session in progress")
	ErrSessionComplete = errors.New("study session already complete")
	ErrCardOutOfOrder  = errors.New("card is not next in the session queue")
	ErrCardMismatch    = errors.New("previous card snapshot does not match card id")
	ErrCardNotFound    = errors.New("study card not found")
	ErrBookNotFound    = errors.New("book not found")
	ErrSourceNotFound  = errors.New("source not found")
)
