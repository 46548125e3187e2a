package rag

import (
	"fmt"
	"iter"
	"strings"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 200

	// a sentence break is only taken when it falls in the last 30% of a window
	breakRatio = 0.7
)

// Chunker splits text into overlapping windows of Size runes, preferring to
// end a window right after a sentence break.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker validates size and overlap.
func NewChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Chunker{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return Chunker{Size: size, Overlap: overlap}, nil
}

func DefaultChunker() Chunker {
	return Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Chunks returns a lazy sequence over the chunks of text. The sequence can be
// ranged over any number of times and always yields the same chunks, with
// Index increasing in document order. Empty or blank text yields nothing.
func (c Chunker) Chunks(text, source string) iter.Seq[Chunk] {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		c = DefaultChunker()
	}
	return func(yield func(Chunk) bool) {
		runes := []rune(text)
		n := len(runes)
		index := 0
		for start := 0; start < n; {
			end := start + c.Size
			if end < n {
				if bp := lastBreak(runes[start:end]); float64(bp) > float64(c.Size)*breakRatio {
					end = start + bp + 1
				}
			} else {
				end = n
			}

			content := strings.TrimSpace(string(runes[start:end]))
			if content != "" {
				ch := Chunk{
					ID:      ChunkID(source, index),
					Content: content,
					Source:  source,
					Index:   index,
					Start:   start,
					End:     end,
				}
				if !yield(ch) {
					return
				}
				index++
			}

			if end >= n {
				return
			}
			next := end - c.Overlap
			if next <= start {
				next = end
			}
			start = next
		}
	}
}

// ChunkText collects every chunk of text.
func (c Chunker) ChunkText(text, source string) []Chunk {
	var chunks []Chunk
	for ch := range c.Chunks(text, source) {
		chunks = append(chunks, ch)
	}
	return chunks
}

// lastBreak returns the offset of the last sentence-ending rune, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '\n', '?', '!':
			return i
		}
	}
	return -1
}
