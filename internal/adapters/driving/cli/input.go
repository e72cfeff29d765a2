package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/logger"
	"github.com/custodia-labs/annotext/internal/normalisers"
)

// articleText is article text read from a flag, a file or stdin.
type articleText struct {
	text  string
	title string
	set   bool
}

// readText returns the inline text if given, otherwise the contents of
// path, with "-" meaning standard input. File and stdin content is
// converted to plain text by format, or by the file extension when
// format is empty.
func readText(cmd *cobra.Command, inline, path, format string) (articleText, error) {
	if inline != "" && path != "" {
		return articleText{}, fmt.Errorf("%w: use either --text or --file", domain.ErrValidation)
	}
	if inline != "" {
		if format == "" {
			return articleText{text: inline, set: true}, nil
		}
		return normalise("", format, []byte(inline))
	}
	if path == "" {
		return articleText{}, nil
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return articleText{}, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return articleText{}, fmt.Errorf("failed to read text: %w", err)
	}
	return normalise(path, format, data)
}

func normalise(name, format string, data []byte) (articleText, error) {
	res, err := normalisers.NewRegistry().Normalise(name, format, data)
	if err != nil {
		return articleText{}, err
	}
	logger.Debug("normalised %s as %s (%d bytes)", name, res.Format, len(res.Text))
	return articleText{text: res.Text, title: res.Title, set: true}, nil
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD or RFC 3339", domain.ErrValidation, s)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

var errNotConfigured = errors.New("service not configured")

func notConfigured(name string) error {
	return fmt.Errorf("%s %w", name, errNotConfigured)
}
