// Package anchoring translates between global character offsets in an
// article and row-local anchors, and carries anchors across article edits.
//
// All offsets count Unicode code points. The package is pure: it performs
// no I/O and holds no state.
package anchoring
