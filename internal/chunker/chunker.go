// Package chunker splits extracted document text into fixed-size overlapping segments.
package chunker

import (
	"sort"
	"strings"

	"ragdoll/internal/model"
)

// PageSeparator is inserted between consecutive pages when they are concatenated.
const PageSeparator = "\n"

// Join concatenates page texts the same way Split does.
func Join(pages []string) string {
	return strings.Join(pages, PageSeparator)
}

// Split concatenates pages and cuts the result into windows of size runes, each window
// starting size-overlap runes after the previous one. The last window ends at the end
// of the text. Windows holding only whitespace are dropped; every other window becomes
// a segment numbered in order. Split is deterministic.
//
// Split returns nil unless size > 0 and 0 <= overlap < size.
func Split(source string, pages []string, size, overlap int) []model.Segment {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil
	}

	runes := []rune(Join(pages))
	pageStarts := pageOffsets(pages)
	step := size - overlap

	var segments []model.Segment
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			segments = append(segments, model.Segment{
				Seq:     len(segments),
				Source:  source,
				Offset:  start,
				Page:    pageAt(pageStarts, start),
				Content: content,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return segments
}

// pageOffsets returns the rune offset at which each page begins in Join(pages).
func pageOffsets(pages []string) []int {
	offsets := make([]int, len(pages))
	pos := 0
	sepLen := len([]rune(PageSeparator))
	for i, p := range pages {
		offsets[i] = pos
		pos += len([]rune(p)) + sepLen
	}
	return offsets
}

// pageAt maps a rune offset to a 1-based page number.
func pageAt(starts []int, offset int) int {
	if len(starts) == 0 {
		return 0
	}
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	return max(i, 1)
}
