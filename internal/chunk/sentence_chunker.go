package chunk

import (
	"strings"
)

// SentenceSplitterOptions configures the sentence splitter behavior.
type SentenceSplitterOptions struct {
	Size    int // Maximum runes per chunk (default: DefaultChunkSize)
	Overlap int // Runes shared between consecutive chunks (default: DefaultChunkOverlap)
}

// SentenceSplitter splits plain text into overlapping windows, preferring
// to end each window at a sentence boundary. Positions are counted in
// runes so multi-byte scripts never split mid-character.
type SentenceSplitter struct {
	options SentenceSplitterOptions
}

// NewSentenceSplitter creates a sentence splitter with default options.
func NewSentenceSplitter() *SentenceSplitter {
	return NewSentenceSplitterWithOptions(SentenceSplitterOptions{})
}

// NewSentenceSplitterWithOptions creates a sentence splitter with custom options.
func NewSentenceSplitterWithOptions(opts SentenceSplitterOptions) *SentenceSplitter {
	if opts.Size <= 0 {
		opts.Size = DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = DefaultChunkOverlap
	}
	// Overlap beyond half the chunk size cannot advance the scan.
	if opts.Overlap*2 > opts.Size {
		opts.Overlap = opts.Size / 2
	}
	return &SentenceSplitter{options: opts}
}

// Split splits text into overlapping pieces. Each window of Size runes is
// cut back to the last sentence mark (. ! ? or newline) when one occurs in
// the second half of the window, then the next window starts Overlap runes
// before the cut. Whitespace-only pieces are dropped.
func (s *SentenceSplitter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	length := len(runes)

	var pieces []string
	start := 0

	for start < length {
		end := start + s.options.Size
		sliceEnd := end
		if sliceEnd > length {
			sliceEnd = length
		}
		window := runes[start:sliceEnd]

		// Not the last window: try to end on a sentence boundary.
		if end < length {
			if cut := lastSentenceEnd(window); cut > s.options.Size/2 {
				window = window[:cut+1]
				end = start + cut + 1
			}
		}

		if piece := strings.TrimSpace(string(window)); piece != "" {
			pieces = append(pieces, piece)
		}

		// The next window starts before the cut so context carries over.
		// end stays unclamped here: once the tail is emitted the step
		// walks past length and terminates the scan.
		start = end - s.options.Overlap
	}

	return pieces
}

// lastSentenceEnd returns the index of the last sentence-ending rune in
// window, or -1 when there is none.
func lastSentenceEnd(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}
