package domain

import "time"

// Anchor locates a comment inside one row of an article.
// Start and End are row-local offsets with Start <= End.
type Anchor struct {
	Row   int
	Start int
	End   int
}

// Comment is a reader note anchored to a character range of an article row.
type Comment struct {
	// CommentID is the unique identifier.
	CommentID string

	// ArticleID references the commented article. The comment does not
	// own the article.
	ArticleID string

	// Anchor is the row-local position of the commented text.
	Anchor Anchor

	// Content is the raw comment text.
	Content string

	// HTML is the rendered form. It is produced elsewhere and stored opaquely.
	HTML string

	// Author is the comment author.
	Author string

	// Date is when the comment was written.
	Date time.Time

	// Orphaned is set when an article edit removed the anchored text.
	// The anchor keeps its last valid position until it is resolved.
	Orphaned bool
}

// Edit replaces Deleted characters at Offset with Inserted new characters.
// Offsets are global positions in the pre-edit article text.
type Edit struct {
	Offset   int
	Deleted  int
	Inserted int
}
