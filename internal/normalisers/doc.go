// Package normalisers converts imported article files into the plain text
// that annotext stores. Each normaliser handles one source format, chosen by
// file extension or by name.
//
// The stored text is what comment offsets count against, so every
// normaliser produces valid UTF-8 with "\n" line endings.
package normalisers
