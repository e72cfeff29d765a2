package anchoring

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// RuneLen returns the length of s in code points.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Segment computes the segmentation of an article from its row contents.
func Segment(rows []string) domain.Segmentation {
	starts := make([]int, len(rows))
	total := 0
	for i, r := range rows {
		starts[i] = total
		total += RuneLen(r)
	}
	return domain.Segmentation{Starts: starts, Length: total}
}

// Validate checks that contentIndexes are the cumulative row starts of rows.
// It never repairs: any mismatch is reported as ErrInvalidSegmentation.
func Validate(rows []string, contentIndexes []int) error {
	if len(rows) != len(contentIndexes) {
		return fmt.Errorf("%w: %d rows but %d content indexes",
			domain.ErrInvalidSegmentation, len(rows), len(contentIndexes))
	}
	if len(rows) == 0 {
		return nil
	}
	if contentIndexes[0] != 0 {
		return fmt.Errorf("%w: first row starts at %d, want 0",
			domain.ErrInvalidSegmentation, contentIndexes[0])
	}
	for i := 0; i+1 < len(rows); i++ {
		want := contentIndexes[i] + RuneLen(rows[i])
		if contentIndexes[i+1] != want {
			return fmt.Errorf("%w: row %d starts at %d, want %d",
				domain.ErrInvalidSegmentation, i+1, contentIndexes[i+1], want)
		}
	}
	return nil
}

// GlobalToLocal maps a global offset to (row, local offset).
// A boundary offset belongs to the row that starts there, skipping empty rows,
// so it suits range starts. The article end maps to the end of the last row.
//
// GlobalToLocal(LocalToGlobal(row, local)) returns (row, local) only for
// local < len(row), or at the end of the last row. For local > 0, or local 0
// in row 0, use GlobalToLocalEnd, which inverts up to and including len(row).
func GlobalToLocal(seg domain.Segmentation, g int) (row, local int, err error) {
	if err := checkGlobal(seg, g); err != nil {
		return 0, 0, err
	}
	// largest i with Starts[i] <= g
	i := sort.Search(len(seg.Starts), func(i int) bool { return seg.Starts[i] > g }) - 1
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: first row starts at %d", domain.ErrInvalidSegmentation, seg.Starts[0])
	}
	return i, g - seg.Starts[i], nil
}

// GlobalToLocalEnd maps a global offset to (row, local offset), attributing a
// boundary offset to the end of the preceding row. Use it for range ends.
func GlobalToLocalEnd(seg domain.Segmentation, g int) (row, local int, err error) {
	if err := checkGlobal(seg, g); err != nil {
		return 0, 0, err
	}
	// largest i with Starts[i] < g, or row 0 for g == 0
	i := sort.Search(len(seg.Starts), func(i int) bool { return seg.Starts[i] >= g }) - 1
	if i < 0 {
		i = 0
	}
	return i, g - seg.Starts[i], nil
}

func checkGlobal(seg domain.Segmentation, g int) error {
	if len(seg.Starts) == 0 {
		return fmt.Errorf("%w: article has no rows", domain.ErrInvalidRow)
	}
	if g < 0 || g > seg.Length {
		return fmt.Errorf("%w: %d not in [0, %d]", domain.ErrOffsetOutOfRange, g, seg.Length)
	}
	return nil
}

// LocalToGlobal maps a row-local offset to a global offset.
func LocalToGlobal(seg domain.Segmentation, row, local int) (int, error) {
	if row < 0 || row >= len(seg.Starts) {
		return 0, fmt.Errorf("%w: row %d not in [0, %d)", domain.ErrInvalidRow, row, len(seg.Starts))
	}
	if n := seg.RowLength(row); local < 0 || local > n {
		return 0, fmt.Errorf("%w: %d not in [0, %d] of row %d", domain.ErrOffsetOutOfRange, local, n, row)
	}
	return seg.Starts[row] + local, nil
}

// CheckAnchor validates an anchor against a segmentation the way the row
// store does on comment creation.
func CheckAnchor(seg domain.Segmentation, a domain.Anchor) error {
	if a.Row < 0 || a.Row >= len(seg.Starts) {
		return fmt.Errorf("%w: row %d", domain.ErrRowNotFound, a.Row)
	}
	n := seg.RowLength(a.Row)
	if a.Start > a.End || a.Start < 0 || a.End > n {
		return fmt.Errorf("%w: [%d, %d] in row %d of length %d",
			domain.ErrInvalidRange, a.Start, a.End, a.Row, n)
	}
	return nil
}

// AnchorToGlobal resolves an anchor to its global [start, end] range.
func AnchorToGlobal(seg domain.Segmentation, a domain.Anchor) (start, end int, err error) {
	if err := CheckAnchor(seg, a); err != nil {
		return 0, 0, err
	}
	return seg.Starts[a.Row] + a.Start, seg.Starts[a.Row] + a.End, nil
}

// GlobalToAnchor converts a global selection into a row-local anchor.
// Selections crossing a row boundary are rejected with ErrInvalidRange.
func GlobalToAnchor(seg domain.Segmentation, start, end int) (domain.Anchor, error) {
	if start > end {
		return domain.Anchor{}, fmt.Errorf("%w: start %d > end %d", domain.ErrInvalidRange, start, end)
	}
	rs, ls, err := GlobalToLocal(seg, start)
	if err != nil {
		return domain.Anchor{}, err
	}
	if start == end {
		return domain.Anchor{Row: rs, Start: ls, End: ls}, nil
	}
	re, le, err := GlobalToLocalEnd(seg, end)
	if err != nil {
		return domain.Anchor{}, err
	}
	if rs != re {
		return domain.Anchor{}, fmt.Errorf("%w: selection spans rows %d to %d", domain.ErrInvalidRange, rs, re)
	}
	return domain.Anchor{Row: rs, Start: ls, End: le}, nil
}

// Slice returns the content of row from the full article text.
func Slice(text string, seg domain.Segmentation, row int) (string, error) {
	if row < 0 || row >= len(seg.Starts) {
		return "", fmt.Errorf("%w: row %d not in [0, %d)", domain.ErrInvalidRow, row, len(seg.Starts))
	}
	runes := []rune(text)
	if len(runes) != seg.Length {
		return "", fmt.Errorf("%w: text length %d, segmentation length %d",
			domain.ErrInvalidSegmentation, len(runes), seg.Length)
	}
	from := seg.Starts[row]
	return string(runes[from : from+seg.RowLength(row)]), nil
}

// Join concatenates rows in order into the full article text.
func Join(rows []string) string {
	return strings.Join(rows, "")
}
