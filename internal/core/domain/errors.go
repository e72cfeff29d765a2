package domain

import "errors"

// Error kinds. Every domain error belongs to exactly one kind and callers
// classify failures with errors.Is against these values.
var (
	// ErrValidation indicates malformed input, rejected before any persistence.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a referenced article, row or comment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation indicates a broken segmentation or anchor invariant.
	// It is always surfaced and never repaired.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrOrphanedAnchor indicates a comment anchor lost its backing text after an edit.
	// It does not prevent the edit.
	ErrOrphanedAnchor = errors.New("orphaned anchor")

	// ErrPropagationFailure indicates an index write failed after all retries.
	ErrPropagationFailure = errors.New("propagation failure")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrSyncInProgress indicates a reindex is already running.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrSearchUnavailable indicates the search index is not configured or unreachable.
	ErrSearchUnavailable = errors.New("search engine unavailable")
)

// Specific errors. Each unwraps to its kind.
var (
	// ErrInvalidRange indicates start > end or an offset outside the row.
	ErrInvalidRange = kinded(ErrValidation, "invalid range")

	// ErrOffsetOutOfRange indicates a global offset beyond the article length.
	ErrOffsetOutOfRange = kinded(ErrValidation, "offset out of range")

	// ErrInvalidRow indicates a row number outside the article's rows.
	ErrInvalidRow = kinded(ErrValidation, "invalid row")

	// ErrArticleNotFound indicates the article id is unknown.
	ErrArticleNotFound = kinded(ErrNotFound, "article not found")

	// ErrRowNotFound indicates the row number is out of range for the article.
	ErrRowNotFound = kinded(ErrNotFound, "row not found")

	// ErrCommentNotFound indicates the comment id is unknown.
	ErrCommentNotFound = kinded(ErrNotFound, "comment not found")

	// ErrInvalidSegmentation indicates content indexes do not match the rows.
	ErrInvalidSegmentation = kinded(ErrInvariantViolation, "invalid segmentation")
)

type kindError struct {
	kind error
	msg  string
}

func kinded(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Retryable reports whether an operation that failed with err may succeed
// when repeated. Validation, not-found and invariant errors never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvariantViolation),
		errors.Is(err, ErrAlreadyExists):
		return false
	}
	return true
}
