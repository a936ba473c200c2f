// Package web serves the study session and source management as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/session"
	"github.com/conorfennell/marginalia/internal/storage"
	"github.com/conorfennell/marginalia/internal/sync"
)

// SyncFunc imports highlights from every configured source.
type SyncFunc func(ctx context.Context) (sync.Report, error)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	engine   *session.Engine
	sync     SyncFunc
	router   *http.ServeMux
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, engine *session.Engine, syncFn SyncFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:       db,
		engine:   engine,
		sync:     syncFn,
		router:   http.NewServeMux(),
		validate: validator.New(),
		logger:   logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /decks", s.handleGetDecks())

	s.router.HandleFunc("GET /session", s.handleGetSession())
	s.router.HandleFunc("POST /session", s.handleStartSession())
	s.router.HandleFunc("DELETE /session", s.handleResetSession())
	s.router.HandleFunc("POST /session/review", s.handlePostReview())
	s.router.HandleFunc("POST /session/undo", s.handleUndo())

	// Source management routes
	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

type deckView struct {
	BookID        string `json:"bookId"`
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	Cards         int    `json:"cards"`
	Due           int    `json:"due"`
	ReviewedToday int    `json:"reviewedToday"`
	Remaining     int    `json:"remaining"`
}

type cardView struct {
	Card      domain.StudyCard `json:"card"`
	Stage     string           `json:"stage"`
	Text      string           `json:"text"`
	Note      string           `json:"note,omitempty"`
	Location  string           `json:"location,omitempty"`
	BookTitle string           `json:"bookTitle,omitempty"`
}

type sessionView struct {
	State     string               `json:"state"`
	ID        string               `json:"id,omitempty"`
	BookID    string               `json:"bookId,omitempty"`
	Total     int                  `json:"total"`
	Completed int                  `json:"completed"`
	Remaining int                  `json:"remaining"`
	CanUndo   bool                 `json:"canUndo"`
	Current   *cardView            `json:"current,omitempty"`
	Progress  domain.DailyProgress `json:"progress"`
}

type sourceView struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"lastScanned,omitempty"`
}

type startRequest struct {
	BookID string `json:"bookId"`
}

type reviewRequest struct {
	CardID     string `json:"cardId" validate:"required"`
	Quality    int    `json:"quality" validate:"required,min=1,max=4"`
	DurationMs int64  `json:"durationMs" validate:"gte=0"`
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

// handleGetDecks lists every deck with today's review status.
func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries := s.engine.Overview()
		decks := make([]deckView, 0, len(summaries))
		for _, d := range summaries {
			decks = append(decks, deckView{
				BookID:        d.Book.ID,
				Title:         d.Book.Title,
				Author:        d.Book.Author,
				Cards:         d.Cards,
				Due:           d.Due,
				ReviewedToday: d.ReviewedToday,
				Remaining:     d.Remaining,
			})
		}
		s.writeJSON(w, http.StatusOK, decks)
	}
}

// handleGetSession reports the current session and the card to show next.
func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.sessionView())
	}
}

// handleStartSession resumes the session for the requested scope or builds a new one.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		// An empty body starts an all-decks session.
		if err := s.decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, err)
			return
		}
		if req.BookID != "" && !s.knownBook(req.BookID) {
			s.writeError(w, domain.ErrBookNotFound)
			return
		}

		if _, err := s.engine.Start(r.Context(), req.BookID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.sessionView())
	}
}

// handleResetSession discards the current session.
func (s *Server) handleResetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.Reset(); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.sessionView())
	}
}

// handlePostReview grades the current card and advances the session.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		previous, ok := s.engine.Card(req.CardID)
		if !ok {
			s.writeError(w, domain.ErrCardNotFound)
			return
		}
		duration := time.Duration(req.DurationMs) * time.Millisecond
		if err := s.engine.Submit(r.Context(), req.CardID, domain.Quality(req.Quality), previous, duration); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.sessionView())
	}
}

// handleUndo reverts the most recent review.
func (s *Server) handleUndo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.Undo(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.sessionView())
	}
}

// handleGetSources lists the configured sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeSources(w, r, http.StatusOK)
	}
}

// handlePostSource adds a new source and returns the source list.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		existing, err := s.db.FindSourceByPath(r.Context(), req.Path)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if existing != nil {
			http.Error(w, "Source already exists", http.StatusConflict)
			return
		}

		if _, err := s.db.InsertSource(r.Context(), req.Path, sync.SourceType(req.Path)); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeSources(w, r, http.StatusCreated)
	}
}

// handleDeleteSource deletes a source and returns the source list.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid source ID", http.StatusBadRequest)
			return
		}

		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeSources(w, r, http.StatusOK)
	}
}

// handlePostSync imports from every source and reloads the library.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Run in the foreground to make the caller wait
		report, err := s.sync(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.engine.Load(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) writeSources(w http.ResponseWriter, r *http.Request, status int) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, sourceView{ID: src.ID, Path: src.Path, Type: src.Type, LastScanned: src.LastScanned})
	}
	s.writeJSON(w, status, views)
}

func (s *Server) knownBook(id string) bool {
	for _, d := range s.engine.Overview() {
		if d.Book.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) sessionView() sessionView {
	view := sessionView{
		State:    s.engine.State().String(),
		Progress: s.engine.Progress(),
	}
	current := s.engine.Session()
	if current == nil {
		return view
	}

	view.ID = current.ID
	view.BookID = current.BookID
	view.Total = len(current.CardIDs)
	view.Completed = len(current.CompletedIDs)
	view.Remaining = current.Remaining()
	view.CanUndo = len(current.History) > 0

	if next := current.NextCardID(); next != "" {
		card, ok := s.engine.Card(next)
		if !ok {
			return view
		}
		cv := &cardView{Card: card, Stage: card.Stage().String()}
		if h, ok := s.engine.Highlight(next); ok {
			cv.Text, cv.Note, cv.Location = h.Text, h.Note, h.Location
			for _, d := range s.engine.Overview() {
				if d.Book.ID == h.BookID {
					cv.BookTitle = d.Book.Title
				}
			}
		}
		view.Current = cv
	}
	return view
}

var errBadRequest = errors.New("bad request")

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrInvalidQuality):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCardNotFound), errors.Is(err, domain.ErrBookNotFound), errors.Is(err, domain.ErrSourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrSessionComplete),
		errors.Is(err, domain.ErrCardOutOfOrder), errors.Is(err, domain.ErrCardMismatch):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
		msg = "Internal Server Error"
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}
