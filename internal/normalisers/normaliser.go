package normalisers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// Result is the plain text extracted from a file.
type Result struct {
	// Title is taken from the document when it names one, else from the file name.
	Title string

	// Text is the article text.
	Text string

	// Format is the name of the normaliser that produced the result.
	Format string
}

// Normaliser extracts article text from one source format.
type Normaliser interface {
	// Format is the normaliser's name, as accepted by ForFormat.
	Format() string

	// Extensions are the lower-case file extensions handled, with the dot.
	Extensions() []string

	// Normalise converts cleaned UTF-8 content. name is used for the fallback title.
	Normalise(name, content string) Result
}

// Registry selects a normaliser by file extension or format name.
// Unknown extensions fall back to plain text.
type Registry struct {
	normalisers []Normaliser
	fallback    Normaliser
}

// NewRegistry returns a registry holding the HTML, Markdown and plain text normalisers.
func NewRegistry() *Registry {
	plain := NewPlainText()
	return &Registry{
		normalisers: []Normaliser{NewHTML(), NewMarkdown(), plain},
		fallback:    plain,
	}
}

// Formats returns the registered format names.
func (r *Registry) Formats() []string {
	names := make([]string, len(r.normalisers))
	for i, n := range r.normalisers {
		names[i] = n.Format()
	}
	return names
}

// ForFormat returns the normaliser named format.
func (r *Registry) ForFormat(format string) (Normaliser, error) {
	for _, n := range r.normalisers {
		if n.Format() == format {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown format %q (want one of %s)",
		domain.ErrValidation, format, strings.Join(r.Formats(), ", "))
}

// ForName returns the normaliser for a file name's extension.
func (r *Registry) ForName(name string) Normaliser {
	ext := strings.ToLower(filepath.Ext(name))
	for _, n := range r.normalisers {
		if slices.Contains(n.Extensions(), ext) {
			return n
		}
	}
	return r.fallback
}

// Supports reports whether a registered normaliser claims name's extension.
// Names without an extension are not supported.
func (r *Registry) Supports(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, n := range r.normalisers {
		if slices.Contains(n.Extensions(), ext) {
			return true
		}
	}
	return false
}

// Normalise converts data using format, or the normaliser for name when
// format is empty.
func (r *Registry) Normalise(name, format string, data []byte) (*Result, error) {
	n := r.ForName(name)
	if format != "" {
		var err error
		if n, err = r.ForFormat(format); err != nil {
			return nil, err
		}
	}

	content, err := clean(data)
	if err != nil {
		return nil, err
	}
	res := n.Normalise(name, content)
	return &res, nil
}

var bom = []byte("\xef\xbb\xbf")

// clean strips a byte order mark and converts CRLF and CR line endings to LF.
func clean(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, bom)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", domain.ErrValidation)
	}
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n"), nil
}

// titleFromName turns "/notes/my_first-post.md" into "my first post".
func titleFromName(name string) string {
	if name == "" || name == "-" {
		return ""
	}
	filename := filepath.Base(name)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	return strings.ReplaceAll(filename, "-", " ")
}
