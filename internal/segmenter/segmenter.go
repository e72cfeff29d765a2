// Package segmenter splits raw article text into rows.
package segmenter

import (
	"strings"
	"unicode"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
)

// DefaultMaxRowLength is the default maximum number of characters per row.
const DefaultMaxRowLength = 2000

// Segmenter splits text into rows, one per line, breaking long lines at
// whitespace. Concatenating its output always reproduces the input.
type Segmenter struct {
	maxRowLength int
}

// Option configures the segmenter.
type Option func(*Segmenter)

// WithMaxRowLength sets the maximum row length in characters.
// Zero disables splitting of long lines.
func WithMaxRowLength(n int) Option {
	return func(s *Segmenter) {
		if n >= 0 {
			s.maxRowLength = n
		}
	}
}

// New creates a new segmenter with the given options.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{maxRowLength: DefaultMaxRowLength}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split returns the row contents of text. Line terminators stay on their row.
func (s *Segmenter) Split(text string) []string {
	if text == "" {
		return nil
	}
	var rows []string
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		rows = append(rows, s.splitLong(line)...)
	}
	return rows
}

// splitLong breaks line into pieces of at most maxRowLength runes, cutting
// after the last whitespace when one exists.
func (s *Segmenter) splitLong(line string) []string {
	runes := []rune(line)
	if s.maxRowLength == 0 || len(runes) <= s.maxRowLength {
		return []string{line}
	}

	var pieces []string
	for len(runes) > s.maxRowLength {
		cut := s.maxRowLength
		for i := s.maxRowLength - 1; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i + 1
				break
			}
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

// Rows segments text into rows for articleID with content indexes filled in.
func (s *Segmenter) Rows(articleID, text string) []domain.Row {
	return BuildRows(articleID, s.Split(text))
}

// BuildRows turns row contents into rows. Display numbers start at 1.
func BuildRows(articleID string, contents []string) []domain.Row {
	seg := anchoring.Segment(contents)
	rows := make([]domain.Row, len(contents))
	for i, c := range contents {
		rows[i] = domain.Row{
			ArticleID:          articleID,
			RowNumberInArticle: i,
			RowNumberToDisplay: i + 1,
			Content:            c,
			ContentIndexes:     seg.Starts,
		}
	}
	return rows
}

// Contents returns the row contents in storage order.
func Contents(rows []domain.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Content
	}
	return out
}
