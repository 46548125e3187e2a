package rag

import (
	"strings"
	"testing"
)

func result(source string, index int, content string, score float64) SearchResult {
	return SearchResult{Chunk: Chunk{Source: source, Index: index, Content: content}, Score: score}
}

func TestBuildContext_FormatsAndDedupes(t *testing.T) {
	results := []SearchResult{
		result("a.pdf", 0, "Lambda runs code.", 0.9),
		result("a.pdf", 0, "Lambda runs code.", 0.9),
		result("b.pdf", 3, "Lambda runs code.", 0.8),
		result("a.pdf", 1, "S3 stores objects.", 0.7),
	}

	ctx, used := BuildContext(results, 0)
	want := "[Document 1]\nLambda runs code.\n\n[Document 2]\nS3 stores objects.\n"
	if ctx != want {
		t.Fatalf("BuildContext() = %q, want %q", ctx, want)
	}
	if len(used) != 2 || used[1].Chunk.Index != 1 {
		t.Fatalf("unexpected used chunks: %+v", used)
	}
}

func TestBuildContext_Truncates(t *testing.T) {
	results := []SearchResult{
		result("a.pdf", 0, strings.Repeat("x", 50), 0.9),
		result("a.pdf", 1, strings.Repeat("y", 50), 0.8),
	}

	ctx, used := BuildContext(results, 80)
	if len(ctx) > 80 {
		t.Fatalf("context exceeds limit: %d", len(ctx))
	}
	if len(used) != 1 {
		t.Fatalf("expected only the first chunk to fit, got %d", len(used))
	}

	ctx, used = BuildContext(results[:1], 20)
	if len([]rune(ctx)) != 20 || len(used) != 1 {
		t.Fatalf("expected oversized first block to be cut to 20, got %q", ctx)
	}
}

func TestBuildContext_BudgetCountsRunes(t *testing.T) {
	// "[Document 1]\n" + 30 runes + "\n" is 44 runes but 74 bytes
	results := []SearchResult{
		result("a.pdf", 0, strings.Repeat("é", 15)+strings.Repeat("ü", 15), 0.9),
		result("a.pdf", 1, strings.Repeat("ß", 30), 0.8),
	}

	ctx, used := BuildContext(results, 90)
	if len(used) != 2 {
		t.Fatalf("expected both blocks to fit in 90 runes, got %d", len(used))
	}
	if got := len([]rune(ctx)); got != 89 {
		t.Fatalf("expected 89 runes, got %d", got)
	}

	ctx, used = BuildContext(results, 60)
	if len(used) != 1 || len([]rune(ctx)) != 44 {
		t.Fatalf("expected only the first block, got %d blocks, %d runes", len(used), len([]rune(ctx)))
	}
}

func TestBuildContext_Empty(t *testing.T) {
	ctx, used := BuildContext(nil, 100)
	if ctx != noContextText || used != nil {
		t.Fatalf("expected no-context text, got %q", ctx)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("[Document 1]\nLambda runs code.\n", "What is Lambda?", nil)
	for _, want := range []string{"You are CloudyMate", "Lambda runs code.", "## QUESTION\nWhat is Lambda?", InsufficientContextAnswer} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "CONVERSATION SO FAR") {
		t.Fatal("expected no history section without history")
	}

	prompt = BuildPrompt("ctx", "And S3?", []Turn{
		{Role: RoleUser, Content: "What is Lambda?"},
		{Role: RoleAssistant, Content: "A compute service."},
	})
	if !strings.Contains(prompt, "## CONVERSATION SO FAR\nuser: What is Lambda?\nassistant: A compute service.\n") {
		t.Fatalf("history not rendered: %q", prompt)
	}
}
