package domain

import "time"

// SourceFile is article text read from an external source, such as a
// directory of Markdown files.
type SourceFile struct {
	// ArticleID is derived from the file's location in the source.
	ArticleID string

	// Path is the file's location, used in log output only.
	Path string

	// Title is the document title, or a title derived from the file name.
	Title string

	// Text is the normalised plain text.
	Text string

	// Format is the normaliser that produced Text.
	Format string

	// ModTime is the file's last modification time.
	ModTime time.Time
}

// ChangeType is the kind of change a watched source reports.
type ChangeType string

// Change types.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// SourceChange is a single change to a watched source. Only ArticleID and
// Path are set for deletions.
type SourceChange struct {
	Type ChangeType
	File SourceFile
}

// ImportAction is what an import did with one source file.
type ImportAction string

// Import actions.
const (
	ImportCreated   ImportAction = "created"
	ImportUpdated   ImportAction = "updated"
	ImportUnchanged ImportAction = "unchanged"
	ImportDeleted   ImportAction = "deleted"
	ImportFailed    ImportAction = "failed"
)

// ImportReport counts the outcome of importing a source.
type ImportReport struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Failed    int

	// Orphaned is the number of comments orphaned by updated articles.
	Orphaned int
}

// Add counts one action.
func (r *ImportReport) Add(action ImportAction) {
	switch action {
	case ImportCreated:
		r.Created++
	case ImportUpdated:
		r.Updated++
	case ImportUnchanged:
		r.Unchanged++
	case ImportDeleted:
		r.Deleted++
	case ImportFailed:
		r.Failed++
	}
}
