// Package sync imports highlights from every configured source into the
// library, creating a study card for each new highlight.
package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/fingerprint"
	"github.com/conorfennell/marginalia/internal/gitsource"
	"github.com/conorfennell/marginalia/internal/parser"
	"github.com/conorfennell/marginalia/internal/sm2"
	"github.com/conorfennell/marginalia/internal/storage"
)

// Report summarises one sync run.
type Report struct {
	Sources  int
	Files    int
	Parsed   int
	Imported int
	Errors   int
}

// Run iterates over all sources and imports any highlights not seen before.
// Git sources are cloned or pulled under reposDir first. Per-file and
// per-highlight failures are logged and counted; the run carries on.
func Run(ctx context.Context, db *storage.DB, reposDir string, now time.Time, progress io.Writer) (Report, error) {
	var report Report

	slog.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with: marginalia source add <path/or/url.git>")
		return report, nil
	}

	if err := os.MkdirAll(reposDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create repos directory: %w", err)
	}

	imp := &importer{db: db, now: now, books: make(map[string]*domain.Book)}
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		root := source.Path
		if source.Type == domain.SourceGit {
			localRepoPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath, progress); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			root = localRepoPath
		}

		if err := imp.reconcile(ctx, root, &report); err != nil {
			slog.Error("Error walking source", "path", root, "error", err)
			report.Errors++
			continue
		}
		report.Sources++

		if err := db.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
			slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
	}

	slog.Info("Sync process complete.",
		"sources", report.Sources,
		"files", report.Files,
		"parsed", report.Parsed,
		"imported", report.Imported,
		"errors", report.Errors,
	)
	return report, nil
}

// IsClippingsFile reports whether name looks like a Kindle clippings export.
func IsClippingsFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".txt") && strings.Contains(lower, "clippings")
}

type importer struct {
	db    *storage.DB
	now   time.Time
	books map[string]*domain.Book // by title
}

func (imp *importer) reconcile(ctx context.Context, root string, report *Report) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsClippingsFile(d.Name()) {
			return nil
		}

		report.Files++
		clippings, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			slog.Warn("Failed to parse clippings file", "path", path, "error", parseErr)
			report.Errors++
			return nil
		}
		report.Parsed += len(clippings)

		var fileErrors, imported int
		for _, c := range clippings {
			ok, err := imp.importClipping(ctx, c)
			if err != nil {
				slog.Warn("Failed to import highlight", "path", path, "title", c.Title, "location", c.Location, "error", err)
				fileErrors++
				continue
			}
			if ok {
				imported++
			}
		}
		report.Imported += imported
		report.Errors += fileErrors

		slog.Info("reconciliation complete",
			"path", path,
			"parsed_highlights", len(clippings),
			"imported", imported,
			"errors", fileErrors,
		)
		return nil
	})
}

// importClipping stores c and its card unless a highlight with the same
// fingerprint already exists. It reports whether anything was inserted.
func (imp *importer) importClipping(ctx context.Context, c parser.Clipping) (bool, error) {
	fp := fingerprint.Of(c.Title, c.Text)
	existing, err := imp.db.FindHighlightByFingerprint(ctx, fp)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	book, err := imp.book(ctx, c.Title, c.Author)
	if err != nil {
		return false, err
	}

	h := domain.Highlight{
		ID:          uuid.NewString(),
		BookID:      book.ID,
		Text:        c.Text,
		Note:        c.Note,
		Location:    c.Location,
		Fingerprint: fp,
		AddedAt:     c.AddedAt,
		CreatedAt:   imp.now,
	}
	card := sm2.NewCard(uuid.NewString(), h.ID, book.InitialEaseFactor, imp.now)
	if err := imp.db.ImportHighlight(ctx, h, card); err != nil {
		return false, err
	}
	slog.Debug("New highlight imported", "book", book.Title, "fingerprint", fp)
	return true, nil
}

func (imp *importer) book(ctx context.Context, title, author string) (*domain.Book, error) {
	if b, ok := imp.books[title]; ok {
		return b, nil
	}
	b, err := imp.db.FindBookByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = &domain.Book{ID: uuid.NewString(), Title: title, Author: author, CreatedAt: imp.now}
		if err := imp.db.InsertBook(ctx, *b); err != nil {
			return nil, err
		}
		slog.Info("New book found", "title", title, "author", author)
	}
	imp.books[title] = b
	return b, nil
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		// scp-like syntax: git@host:owner/repo.git
		if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
			host, repoPath, ok := strings.Cut(rest, ":")
			if ok && host != "" && repoPath != "" {
				return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}

// SourceType guesses whether path names a git repository or a local path.
func SourceType(path string) string {
	if _, err := gitURLToLocalPath("", path); err == nil {
		return domain.SourceGit
	}
	if strings.HasSuffix(path, ".git") && !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, ".") {
		return domain.SourceGit
	}
	return domain.SourceLocal
}
