package rag

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace seeds the name-based UUIDs used as store keys.
var chunkNamespace = uuid.MustParse("6f1c2a9e-3d4b-5c7a-9e21-0b8d4f6a1c35")

// Chunk of a document
type Chunk struct {
	ID        string
	Content   string
	Source    string // filename the chunk was cut from
	Index     int    // position within the source, 0-based
	Start     int    // rune offset of the raw window in the cleaned text
	End       int
	Embedding []float64
}

// ChunkID returns the store key for the chunk at index within source.
// The same pair always maps to the same key, so re-ingesting overwrites.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(index))).String()
}

// Simple query result
type SearchResult struct {
	Chunk Chunk
	Score float64 // cosine similarity, higher is closer
}

// Verdict is the outcome of a content validation.
type Verdict struct {
	Valid  bool
	Reason string
}
