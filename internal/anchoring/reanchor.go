package anchoring

import (
	"fmt"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// Status is the outcome of carrying one anchor across an edit.
type Status int

// Re-anchoring outcomes.
const (
	// Kept means the anchor is unchanged.
	Kept Status = iota
	// Moved means the anchor still covers its text at a new position.
	Moved
	// Orphaned means the anchored text no longer exists as a single-row range.
	Orphaned
)

func (s Status) String() string {
	switch s {
	case Kept:
		return "kept"
	case Moved:
		return "moved"
	case Orphaned:
		return "orphaned"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Orphan reasons.
const (
	ReasonDeleted   = "anchored text deleted"
	ReasonSpansRows = "spans rows"
)

// Result is the outcome of re-anchoring one comment.
// An orphaned result carries the original anchor unchanged.
type Result struct {
	Anchor domain.Anchor
	Status Status
	Reason string
}

// Err returns an ErrOrphanedAnchor error for orphaned results, nil otherwise.
func (r Result) Err() error {
	if r.Status != Orphaned {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrOrphanedAnchor, r.Reason)
}

// ValidateEdits checks that edits are sorted, non-overlapping and fit inside
// a text of length oldLen, and that they turn it into a text of length newLen.
func ValidateEdits(edits []domain.Edit, oldLen, newLen int) error {
	prevEnd := 0
	delta := 0
	for i, e := range edits {
		if e.Offset < 0 || e.Deleted < 0 || e.Inserted < 0 {
			return fmt.Errorf("%w: edit %d has a negative field", domain.ErrValidation, i)
		}
		if e.Offset < prevEnd {
			return fmt.Errorf("%w: edit %d overlaps or precedes edit %d", domain.ErrValidation, i, i-1)
		}
		if e.Offset+e.Deleted > oldLen {
			return fmt.Errorf("%w: edit %d ends past text length %d", domain.ErrValidation, i, oldLen)
		}
		prevEnd = e.Offset + e.Deleted
		delta += e.Inserted - e.Deleted
	}
	if oldLen+delta != newLen {
		return fmt.Errorf("%w: edits produce length %d, new text has %d", domain.ErrValidation, oldLen+delta, newLen)
	}
	return nil
}

// Reanchor carries an anchor valid under oldSeg to newSeg through edits.
// The anchor is first resolved to global offsets with the pre-edit
// segmentation, then each boundary is shifted forward through the edits.
func Reanchor(oldSeg, newSeg domain.Segmentation, a domain.Anchor, edits []domain.Edit) (Result, error) {
	if err := ValidateEdits(edits, oldSeg.Length, newSeg.Length); err != nil {
		return Result{}, err
	}
	gs, ge, err := AnchorToGlobal(oldSeg, a)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stored anchor does not fit its article: %w", domain.ErrInvariantViolation, err)
	}

	orphan := Result{Anchor: a, Status: Orphaned}
	for _, e := range edits {
		if deletedInside(e, gs, ge) {
			orphan.Reason = ReasonDeleted
			return orphan, nil
		}
	}

	ns, ne := mapStart(gs, edits), mapEnd(ge, edits)
	if gs == ge {
		ne = ns
	}
	if ns > ne {
		orphan.Reason = ReasonDeleted
		return orphan, nil
	}

	rs, ls, err := GlobalToLocal(newSeg, ns)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
	}
	re, le := rs, ls
	if ne != ns {
		if re, le, err = GlobalToLocalEnd(newSeg, ne); err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
		}
	}
	if rs != re {
		orphan.Reason = ReasonSpansRows
		return orphan, nil
	}

	moved := domain.Anchor{Row: rs, Start: ls, End: le}
	if moved == a {
		return Result{Anchor: a, Status: Kept}, nil
	}
	return Result{Anchor: moved, Status: Moved}, nil
}

// deletedInside reports whether e deletes every character of [gs, ge].
// A zero-length anchor on either edge of the deleted span survives.
func deletedInside(e domain.Edit, gs, ge int) bool {
	if e.Deleted == 0 {
		return false
	}
	end := e.Offset + e.Deleted
	if gs == ge {
		return gs > e.Offset && gs < end
	}
	return gs >= e.Offset && ge <= end
}

// mapStart shifts a range start. A start inside a deleted span moves past
// the replacement text.
func mapStart(g int, edits []domain.Edit) int {
	delta := 0
	for _, e := range edits {
		if g < e.Offset {
			break
		}
		if g < e.Offset+e.Deleted {
			return e.Offset + delta + e.Inserted
		}
		delta += e.Inserted - e.Deleted
	}
	return g + delta
}

// mapEnd shifts a range end. An end inside a deleted span moves to the
// start of the replacement text. Insertions at the end stay outside.
func mapEnd(g int, edits []domain.Edit) int {
	delta := 0
	for _, e := range edits {
		if g <= e.Offset {
			break
		}
		if g <= e.Offset+e.Deleted {
			return e.Offset + delta
		}
		delta += e.Inserted - e.Deleted
	}
	return g + delta
}

// DiffEdit derives a single replacement edit covering everything between the
// common prefix and common suffix of old and new. Equal texts yield no edits.
func DiffEdit(old, new string) []domain.Edit {
	a, b := []rune(old), []rune(new)
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	s := 0
	for s < len(a)-p && s < len(b)-p && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}
	if p == len(a) && p == len(b) {
		return nil
	}
	return []domain.Edit{{Offset: p, Deleted: len(a) - p - s, Inserted: len(b) - p - s}}
}
