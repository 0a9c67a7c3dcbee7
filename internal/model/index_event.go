package model

import "time"

const (
	IndexEventBuilt   = "index.built"
	IndexEventCleared = "index.cleared"
)

// IndexEvent describes a transition of the live index.
type IndexEvent struct {
	Type         string    `json:"type"`
	IndexID      string    `json:"index_id,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	SegmentCount int       `json:"segment_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}
