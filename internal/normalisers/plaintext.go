package normalisers

// PlainText keeps text as is.
type PlainText struct{}

// NewPlainText creates a plain text normaliser.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Format returns "text".
func (n *PlainText) Format() string { return "text" }

// Extensions returns the plain text extensions.
func (n *PlainText) Extensions() []string {
	return []string{".txt", ".text", ""}
}

// Normalise returns content unchanged.
func (n *PlainText) Normalise(name, content string) Result {
	return Result{Title: titleFromName(name), Text: content, Format: n.Format()}
}
