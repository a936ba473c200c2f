// Package session builds study queues and runs the review state machine for
// one study sitting.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/due"
	"github.com/conorfennell/marginalia/internal/progress"
	"github.com/conorfennell/marginalia/internal/sm2"
)

// Store is the remote persistence collaborator. All writes are treated as
// retryable and independently failing.
type Store interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListHighlights(ctx context.Context) ([]domain.Highlight, error)
	ListCards(ctx context.Context) ([]domain.StudyCard, error)
	GetSettings(ctx context.Context) (domain.Settings, error)
	UpsertCard(ctx context.Context, card domain.StudyCard) error
	InsertReviewLog(ctx context.Context, log domain.ReviewLog) error
	DeleteReviewLog(ctx context.Context, id string) error
	UpsertSettings(ctx context.Context, settings domain.Settings) error
}

// StateStore keeps the live session and today's progress across restarts.
type StateStore interface {
	LoadSession() (*domain.StudySession, error)
	SaveSession(s *domain.StudySession) error
	ClearSession() error
	LoadProgress() (domain.DailyProgress, error)
	SaveProgress(p domain.DailyProgress) error
}

// Dispatcher runs persistence work in the background. Jobs sharing a key run
// in submission order; jobs with different keys may run concurrently.
type Dispatcher interface {
	Go(key, name string, fn func(ctx context.Context) error)
}

// State is the lifecycle state of the engine's session.
type State int

const (
	NoSession State = iota
	InProgress
	Complete
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	}
	return "no_session"
}

// Options configures an Engine. Zero fields get defaults.
type Options struct {
	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

// Engine owns one user's study sitting: the library snapshot, the active
// session and today's progress ledger. Local state is authoritative; remote
// writes are dispatched without waiting for them.
type Engine struct {
	store  Store
	state  StateStore
	async  Dispatcher
	logger *slog.Logger
	clock  func() time.Time
	newID  func() string

	mu        sync.Mutex
	lib       Library
	cardIndex map[string]int
	bookOf    map[string]string // highlight id -> book id
	current   *domain.StudySession
	ledger    domain.DailyProgress
}

// NewEngine creates an engine. Call Load before using it.
func NewEngine(store Store, state StateStore, async Dispatcher, opts Options) *Engine {
	e := &Engine{
		store:  store,
		state:  state,
		async:  async,
		logger: opts.Logger,
		clock:  opts.Clock,
		newID:  opts.NewID,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// Load fetches the library from the store and restores the local state. A
// stored session from another day is discarded.
func (e *Engine) Load(ctx context.Context) error {
	books, err := e.store.ListBooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load books: %w", err)
	}
	highlights, err := e.store.ListHighlights(ctx)
	if err != nil {
		return fmt.Errorf("failed to load highlights: %w", err)
	}
	cards, err := e.store.ListCards(ctx)
	if err != nil {
		return fmt.Errorf("failed to load study cards: %w", err)
	}
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	now := e.clock()

	ledger, err := e.state.LoadProgress()
	if err != nil {
		e.logger.Warn("Failed to read local progress, using remote copy", "error", err)
	}
	if ledger.Date != progress.DateKey(now) {
		ledger = settings.DailyProgress
	}

	stored, err := e.state.LoadSession()
	if err != nil {
		e.logger.Warn("Failed to read stored session, starting fresh", "error", err)
		stored = nil
	}
	if stored != nil && !due.SameDay(stored.Date, now) {
		e.logger.Info("Discarding session from a previous day", "session_id", stored.ID)
		if err := e.state.ClearSession(); err != nil {
			e.logger.Warn("Failed to clear stale session", "error", err)
		}
		stored = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cardIndex != nil {
		cards = e.keepLocalReviews(cards, now)
	}
	e.setLibrary(Library{Books: books, Highlights: highlights, Cards: cards, Settings: settings})
	e.ledger = progress.Today(ledger, now)
	e.current = stored
	return nil
}

// keepLocalReviews overlays the local state of cards answered in this
// process onto a fresh fetch, since their writes may still be queued or may
// have failed. It covers every card in the current session's history and any
// card last reviewed today.
func (e *Engine) keepLocalReviews(fetched []domain.StudyCard, now time.Time) []domain.StudyCard {
	touched := make(map[string]bool)
	if e.current != nil {
		for _, h := range e.current.History {
			touched[h.CardID] = true
		}
	}
	for i, c := range fetched {
		j, ok := e.cardIndex[c.ID]
		if !ok {
			continue
		}
		local := e.lib.Cards[j]
		reviewedToday := local.LastReviewedAt != nil && due.SameDay(*local.LastReviewedAt, now)
		if touched[c.ID] || reviewedToday {
			fetched[i] = local.Clone()
		}
	}
	return fetched
}

func (e *Engine) setLibrary(lib Library) {
	e.lib = lib
	e.cardIndex = make(map[string]int, len(lib.Cards))
	for i, c := range lib.Cards {
		e.cardIndex[c.ID] = i
	}
	e.bookOf = make(map[string]string, len(lib.Highlights))
	for _, h := range lib.Highlights {
		e.bookOf[h.ID] = h.BookID
	}
}

// Start resumes the current session or builds a new one scoped to bookID
// ("" for all decks). It returns nil without error when nothing is due.
func (e *Engine) Start(ctx context.Context, bookID string) (*domain.StudySession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	if !NeedsReplacement(e.current, bookID, now) {
		return e.current.Clone(), nil
	}

	e.ledger = progress.Today(e.ledger, now)
	var queue []string
	if bookID == "" {
		queue = BuildAllDecks(e.lib, e.ledger, now)
	} else {
		queue = BuildDeck(bookID, e.lib, e.ledger, now)
	}

	if len(queue) == 0 {
		if e.current != nil {
			e.current = nil
			if err := e.state.ClearSession(); err != nil {
				return nil, fmt.Errorf("failed to clear session: %w", err)
			}
		}
		e.logger.Info("Nothing to study", "book_id", bookID)
		return nil, nil
	}

	e.current = &domain.StudySession{
		ID:           e.newID(),
		Date:         now,
		CardIDs:      queue,
		CompletedIDs: []string{},
		Results:      []domain.SessionResult{},
		History:      []domain.HistoryEntry{},
		BookID:       bookID,
	}
	e.saveLocal()
	e.logger.Info("Study session started", "session_id", e.current.ID, "book_id", bookID, "cards", len(queue))
	return e.current.Clone(), nil
}

// Submit records the answer for the next queued card. previous is the card's
// state before this review. The session advances immediately; the card
// update and review log are written in the background.
func (e *Engine) Submit(ctx context.Context, cardID string, quality domain.Quality, previous domain.StudyCard, duration time.Duration) error {
	if !quality.IsValid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuality, int(quality))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	s := e.current
	switch {
	case s == nil:
		return domain.ErrNoSession
	case !due.SameDay(s.Date, now):
		return fmt.Errorf("%w: session from %s has expired", domain.ErrNoSession, s.Date.Format(time.DateOnly))
	case s.Complete():
		return domain.ErrSessionComplete
	case s.NextCardID() != cardID:
		return fmt.Errorf("%w: got %s, want %s", domain.ErrCardOutOfOrder, cardID, s.NextCardID())
	case previous.ID != cardID:
		return domain.ErrCardMismatch
	}

	next, err := sm2.Next(previous, quality, now)
	if err != nil {
		return err
	}
	entry := domain.ReviewLog{
		ID:         e.newID(),
		CardID:     cardID,
		Quality:    quality,
		ReviewedAt: now,
		Interval:   previous.Interval,
		EaseFactor: previous.EaseFactor,
	}
	if duration > 0 {
		ms := duration.Milliseconds()
		entry.DurationMs = &ms
	}
	bookID := e.bookOf[previous.HighlightID]

	s.CompletedIDs = append(s.CompletedIDs, cardID)
	s.Results = append(s.Results, domain.SessionResult{CardID: cardID, Quality: quality, Timestamp: now})
	s.History = append(s.History, domain.HistoryEntry{
		CardID:       cardID,
		PreviousCard: previous.Clone(),
		Quality:      quality,
		Timestamp:    now,
		ReviewLogID:  entry.ID,
		BookID:       bookID,
	})

	if bookID != "" {
		e.ledger = progress.Increment(e.ledger, bookID, now)
	} else {
		e.logger.Warn("Reviewed card has no known deck", "card_id", cardID, "highlight_id", previous.HighlightID)
	}

	e.putCard(next)
	e.saveLocal()

	e.async.Go(cardID, "upsert card", func(ctx context.Context) error {
		return e.store.UpsertCard(ctx, next)
	})
	e.async.Go(entry.ID, "insert review log", func(ctx context.Context) error {
		return e.store.InsertReviewLog(ctx, entry)
	})
	e.pushProgress()

	e.logger.Debug("Review submitted",
		"card_id", cardID,
		"quality", quality.String(),
		"interval", next.Interval,
		"ease", next.EaseFactor,
		"remaining", s.Remaining(),
	)
	return nil
}

// Undo reverts the most recent review: the card goes back to its exact prior
// state, today's counter is decremented and the review log is deleted. It is
// a no-op when there is nothing to undo.
func (e *Engine) Undo(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.current
	if s == nil || len(s.History) == 0 {
		return nil
	}

	now := e.clock()
	last := s.History[len(s.History)-1]
	s.History = s.History[:len(s.History)-1]
	s.CompletedIDs = s.CompletedIDs[:len(s.CompletedIDs)-1]
	s.Results = s.Results[:len(s.Results)-1]

	restored := last.PreviousCard.Clone()
	e.putCard(restored)
	if last.BookID != "" {
		e.ledger = progress.Decrement(e.ledger, last.BookID, now)
	}
	e.saveLocal()

	e.async.Go(restored.ID, "restore card", func(ctx context.Context) error {
		return e.store.UpsertCard(ctx, restored)
	})
	e.async.Go(last.ReviewLogID, "delete review log", func(ctx context.Context) error {
		return e.store.DeleteReviewLog(ctx, last.ReviewLogID)
	})
	e.pushProgress()

	e.logger.Debug("Review undone", "card_id", last.CardID, "remaining", s.Remaining())
	return nil
}

// Reset discards the current session and its stored copy.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	if err := e.state.ClearSession(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// State reports the lifecycle state of the current session.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.current == nil:
		return NoSession
	case e.current.Complete():
		return Complete
	}
	return InProgress
}

// Session returns a copy of the current session, or nil.
func (e *Engine) Session() *domain.StudySession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Card returns the engine's current copy of a card.
func (e *Engine) Card(id string) (domain.StudyCard, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.cardIndex[id]
	if !ok {
		return domain.StudyCard{}, false
	}
	return e.lib.Cards[i].Clone(), true
}

// Highlight returns the highlight quizzed by a card.
func (e *Engine) Highlight(cardID string) (domain.Highlight, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.cardIndex[cardID]
	if !ok {
		return domain.Highlight{}, false
	}
	hid := e.lib.Cards[i].HighlightID
	for _, h := range e.lib.Highlights {
		if h.ID == hid {
			return h, true
		}
	}
	return domain.Highlight{}, false
}

// Progress returns today's ledger.
func (e *Engine) Progress() domain.DailyProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return progress.Today(e.ledger, e.clock())
}

// Overview summarises every deck for today.
func (e *Engine) Overview() []DeckSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Overview(e.lib, e.ledger, e.clock())
}

func (e *Engine) putCard(c domain.StudyCard) {
	if i, ok := e.cardIndex[c.ID]; ok {
		e.lib.Cards[i] = c
		return
	}
	e.cardIndex[c.ID] = len(e.lib.Cards)
	e.lib.Cards = append(e.lib.Cards, c)
}

// saveLocal writes the session and ledger to the state store. Failures are
// logged; the in-memory state stays authoritative.
func (e *Engine) saveLocal() {
	if err := e.state.SaveSession(e.current); err != nil {
		e.logger.Warn("Failed to save session locally", "error", err)
	}
	if err := e.state.SaveProgress(e.ledger); err != nil {
		e.logger.Warn("Failed to save progress locally", "error", err)
	}
}

func (e *Engine) pushProgress() {
	settings := e.lib.Settings
	settings.DailyProgress = domain.DailyProgress{
		Date:        e.ledger.Date,
		BookReviews: maps.Clone(e.ledger.BookReviews),
	}
	e.lib.Settings.DailyProgress = settings.DailyProgress
	e.async.Go("settings", "upsert settings", func(ctx context.Context) error {
		return e.store.UpsertSettings(ctx, settings)
	})
}
