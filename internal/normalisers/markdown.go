package normalisers

import (
	"regexp"
	"strings"
)

// Markdown removes formatting syntax and keeps the prose.
type Markdown struct{}

// NewMarkdown creates a Markdown normaliser.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Format returns "markdown".
func (n *Markdown) Format() string { return "markdown" }

// Extensions returns the Markdown extensions.
func (n *Markdown) Extensions() []string {
	return []string{".md", ".markdown", ".mdown"}
}

var (
	mdCodeFence   = regexp.MustCompile("(?m)^```.*$\n?")
	mdInlineCode  = regexp.MustCompile("`([^`]+)`")
	mdImages      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinks       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeadings    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdStrong      = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	mdEmphasis    = regexp.MustCompile(`(^|[^\w*])\*(\S(?:[^*]*?\S)?)\*`)
	mdBlockquote  = regexp.MustCompile(`(?m)^>\s?`)
	mdRule        = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$\n?`)
	mdListMarker  = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	mdBlankLines  = regexp.MustCompile(`\n{3,}`)
	mdFirstHeader = regexp.MustCompile(`(?m)^#\s+(.+?)\s*#*\s*$`)
)

// Normalise strips Markdown syntax. The first level-one heading becomes the title.
func (n *Markdown) Normalise(name, content string) Result {
	title := titleFromName(name)
	if m := mdFirstHeader.FindStringSubmatch(content); len(m) > 1 {
		title = m[1]
	}

	text := mdCodeFence.ReplaceAllString(content, "")
	text = mdInlineCode.ReplaceAllString(text, "$1")
	text = mdImages.ReplaceAllString(text, "$1")
	text = mdLinks.ReplaceAllString(text, "$1")
	text = mdHeadings.ReplaceAllString(text, "")
	text = mdRule.ReplaceAllString(text, "")
	text = mdStrong.ReplaceAllString(text, "$2")
	text = mdEmphasis.ReplaceAllString(text, "$1$2")
	text = mdBlockquote.ReplaceAllString(text, "")
	text = mdListMarker.ReplaceAllString(text, "$1")
	text = mdBlankLines.ReplaceAllString(text, "\n\n")

	text = strings.TrimSpace(text)
	if text != "" {
		text += "\n"
	}
	return Result{Title: title, Text: text, Format: n.Format()}
}
