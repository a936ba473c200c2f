// Package parser reads Kindle "My Clippings.txt" exports.
package parser

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	separator  = "=========="
	metaPrefix = "- "
	addedOn    = "Added on "
	addedTime  = "Monday, January 2, 2006 3:04:05 PM"
)

// Kind is the type of a clippings entry.
type Kind int

const (
	KindHighlight Kind = iota
	KindNote
	KindBookmark
)

// Clipping is one highlight from a clippings file, with any note attached.
type Clipping struct {
	Title    string
	Author   string
	Kind     Kind
	Page     string
	Location string // as written, e.g. "120-121"
	LocStart int
	LocEnd   int
	AddedAt  *time.Time
	Text     string
	Note     string
}

type state int

const (
	seeking state = iota
	readingMeta
	readingBody
)

// ParseFile reads a file from the given path and extracts its highlights.
func ParseFile(path string) ([]Clipping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads clippings from r. Bookmarks and empty entries are dropped and
// notes are attached to the highlight whose location range ends where the
// note sits; notes with no such highlight are dropped.
func Parse(r io.Reader) ([]Clipping, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Clipping
	var current Clipping
	var body []string
	currentState := seeking

	finishEntry := func() {
		current.Text = strings.TrimSpace(strings.Join(body, "\n"))
		if currentState == readingBody && current.Text != "" && current.Kind != KindBookmark {
			entries = append(entries, current)
		}
		current = Clipping{}
		body = nil
		currentState = seeking
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == separator {
			finishEntry()
			continue
		}

		switch currentState {
		case seeking:
			line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
			if line == "" {
				continue
			}
			current.Title, current.Author = splitTitle(line)
			currentState = readingMeta
		case readingMeta:
			parseMeta(line, &current)
			currentState = readingBody
		case readingBody:
			body = append(body, line)
		}
	}

	finishEntry() // Finish a trailing entry with no separator

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return attachNotes(entries), nil
}

// splitTitle separates "Title (Author)" into its parts.
func splitTitle(line string) (title, author string) {
	if !strings.HasSuffix(line, ")") {
		return line, ""
	}
	open := strings.LastIndex(line, "(")
	if open <= 0 {
		return line, ""
	}
	return strings.TrimSpace(line[:open]), strings.TrimSpace(line[open+1 : len(line)-1])
}

// parseMeta reads "- Your Highlight on page 12 | Location 120-121 | Added on ...".
func parseMeta(line string, c *Clipping) {
	line = strings.TrimPrefix(strings.TrimSpace(line), metaPrefix)
	for i, part := range strings.Split(line, "|") {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)

		if i == 0 {
			switch {
			case strings.Contains(lower, "bookmark"):
				c.Kind = KindBookmark
			case strings.Contains(lower, "note"):
				c.Kind = KindNote
			default:
				c.Kind = KindHighlight
			}
		}

		switch {
		case strings.HasPrefix(part, addedOn):
			if t, err := time.Parse(addedTime, strings.TrimPrefix(part, addedOn)); err == nil {
				c.AddedAt = &t
			}
		case strings.Contains(lower, "location "), strings.Contains(lower, "loc. "):
			c.Location = lastField(part)
			c.LocStart, c.LocEnd = parseRange(c.Location)
		case strings.Contains(lower, "page "):
			c.Page = lastField(part)
		}
	}
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// parseRange reads "120-121" or "120". Kindle abbreviates the end of a range
// ("1234-56"), which is expanded using the start's leading digits.
func parseRange(loc string) (start, end int) {
	from, to, found := strings.Cut(loc, "-")
	start, _ = strconv.Atoi(from)
	if !found {
		return start, start
	}
	if len(to) < len(from) {
		to = from[:len(from)-len(to)] + to
	}
	end, err := strconv.Atoi(to)
	if err != nil || end < start {
		end = start
	}
	return start, end
}

func attachNotes(entries []Clipping) []Clipping {
	var highlights []Clipping
	var notes []Clipping
	for _, e := range entries {
		if e.Kind == KindNote {
			notes = append(notes, e)
			continue
		}
		highlights = append(highlights, e)
	}

	for _, n := range notes {
		for i := len(highlights) - 1; i >= 0; i-- {
			h := &highlights[i]
			if h.Title == n.Title && h.LocEnd == n.LocStart && h.Note == "" {
				h.Note = n.Text
				break
			}
		}
	}
	return highlights
}
