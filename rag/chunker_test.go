package rag

import (
	"strings"
	"testing"
)

func sampleText(n int) string {
	sentence := "AWS Lambda runs code without provisioning servers. "
	text := strings.Repeat(sentence, n/len(sentence)+1)
	return text[:n]
}

func TestChunkText_Reconstructs(t *testing.T) {
	text := sampleText(2000)
	c, err := NewChunker(800, 200)
	if err != nil {
		t.Fatalf("NewChunker returned error: %v", err)
	}

	chunks := c.ChunkText(text, "doc.pdf")
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Start != 0 {
		t.Fatalf("expected first chunk to start at 0, got %d", chunks[0].Start)
	}
	if last := chunks[len(chunks)-1]; last.End != len(text) {
		t.Fatalf("expected last chunk to end at %d, got %d", len(text), last.End)
	}

	rebuilt := text[:chunks[0].End]
	overlapped := false
	for i, ch := range chunks {
		if ch.End-ch.Start > 800 {
			t.Fatalf("chunk %d spans %d runes", i, ch.End-ch.Start)
		}
		if ch.Content != strings.TrimSpace(text[ch.Start:ch.End]) {
			t.Fatalf("chunk %d content does not match its span", i)
		}
		if ch.Index != i || ch.Source != "doc.pdf" || ch.ID != ChunkID("doc.pdf", i) {
			t.Fatalf("chunk %d has wrong identity: %+v", i, ch)
		}
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		if ch.Start > prev.End {
			t.Fatalf("gap between chunk %d and %d", i-1, i)
		}
		if ch.Start < prev.End {
			overlapped = true
		}
		rebuilt += text[prev.End:ch.End]
	}
	if !overlapped {
		t.Fatal("expected overlapping chunks")
	}
	if rebuilt != text {
		t.Fatal("chunks minus overlap do not reconstruct the text")
	}
}

func TestChunkText_Idempotent(t *testing.T) {
	text := sampleText(3100)
	c := DefaultChunker()

	a := c.ChunkText(text, "doc.pdf")
	b := c.ChunkText(text, "doc.pdf")
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End || a[i].Content != b[i].Content {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkText_PrefersSentenceBreaks(t *testing.T) {
	text := sampleText(2000)
	chunks := DefaultChunker().ChunkText(text, "doc.pdf")

	for i, ch := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(ch.Content, ".") {
			t.Fatalf("chunk %d does not end at a sentence: %q", i, ch.Content[len(ch.Content)-20:])
		}
	}
}

func TestChunkText_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   \n\t  "} {
		chunks := DefaultChunker().ChunkText(text, "empty")
		if len(chunks) != 0 {
			t.Fatalf("expected 0 chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestChunks_StopsEarly(t *testing.T) {
	n := 0
	for range DefaultChunker().Chunks(sampleText(5000), "doc.pdf") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2 chunks, got %d", n)
	}
}

func TestNewChunker_Validates(t *testing.T) {
	if _, err := NewChunker(0, 0); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, err := NewChunker(100, 100); err == nil {
		t.Fatal("expected error for overlap equal to size")
	}
	if _, err := NewChunker(100, -1); err == nil {
		t.Fatal("expected error for negative overlap")
	}
}
