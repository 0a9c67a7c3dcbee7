package model

// Segment is a contiguous slice of extracted document text, the unit of retrieval.
// Offset is counted in runes from the start of the concatenated page text.
type Segment struct {
	Seq     int    `json:"seq"`
	Source  string `json:"source"`
	Offset  int    `json:"offset"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// End returns the rune offset one past the last rune of the segment.
func (s Segment) End() int {
	return s.Offset + len([]rune(s.Content))
}
