package domain

import "time"

// Article is a long-form text stored as an ordered sequence of rows.
// The full text is never stored as a single field.
type Article struct {
	// ID is the internal identifier assigned by the row store.
	ID int64

	// ArticleID is the stable external identifier. Unique.
	ArticleID string

	// Title is the human-readable title.
	Title string

	// Tags is the set of labels attached to the article.
	Tags []string

	// Date is the publication date.
	Date time.Time

	// Author is the article author.
	Author string

	// Description is a short summary shown in listings.
	Description string

	// Segmentation is the precomputed offset index of the article's rows.
	Segmentation Segmentation

	// CreatedAt is when the article was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the article rows or metadata last changed.
	UpdatedAt time.Time
}

// Row is one segment of an article's text.
type Row struct {
	// ArticleID links to the owning Article.
	ArticleID string

	// RowNumberInArticle is the 0-based storage position. Contiguous.
	RowNumberInArticle int

	// RowNumberToDisplay is the presentation number, which may differ
	// from the storage position.
	RowNumberToDisplay int

	// Content is the text of this row.
	Content string

	// ContentIndexes holds the cumulative row-start offsets of the whole
	// article. Every row of an article carries the same slice.
	ContentIndexes []int
}

// Segmentation maps an article's rows onto global character offsets.
// Offsets count Unicode code points.
type Segmentation struct {
	// Starts holds the global offset at which each row begins.
	Starts []int

	// Length is the total length of the article text.
	Length int
}

// RowCount returns the number of rows in the segmentation.
func (s Segmentation) RowCount() int {
	return len(s.Starts)
}

// RowLength returns the length of row i, or -1 if i is out of range.
func (s Segmentation) RowLength(i int) int {
	if i < 0 || i >= len(s.Starts) {
		return -1
	}
	if i == len(s.Starts)-1 {
		return s.Length - s.Starts[i]
	}
	return s.Starts[i+1] - s.Starts[i]
}

// ListOptions pages and filters article listings.
type ListOptions struct {
	// Author restricts the listing to one author. Empty means all.
	Author string

	// Limit is the maximum number of articles. Zero means no limit.
	Limit int

	// Offset is the number of articles to skip.
	Offset int
}
