package ingestion

import (
	"fmt"
	"strings"
	"unicode"
)

// Splitter cuts text into windows of at most Size runes, each overlapping the previous
// by Overlap runes. A window is shortened to end on whitespace when one falls past the
// overlap region.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Splitter{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return Splitter{Size: size, Overlap: overlap}, nil
}

func (s Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 || s.Size <= 0 {
		return nil
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= s.Size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + s.Size
		if end > n {
			end = n
		}
		if end < n {
			if cut := lastSpace(runes[start:end]); cut > overlap {
				end = start + cut
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSpace(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return -1
}
