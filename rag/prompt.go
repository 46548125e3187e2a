package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxContextChars bounds the retrieved text placed in a prompt.
const DefaultMaxContextChars = 12000

const (
	noContextText = "No relevant context found."

	// InsufficientContextAnswer is what the assistant says when the context
	// does not cover the question.
	InsufficientContextAnswer = "I don't have enough information in the uploaded documents to fully answer this question."
)

const ragTemplate = `You are CloudyMate, an AI assistant that helps users understand AWS documentation. Your role is to answer questions based on the provided AWS documentation context.

## CONTEXT
The following context has been retrieved from relevant AWS documents:

%s
%s
## INSTRUCTIONS
1. Answer the user's question using the information provided in the context above
2. If the context contains relevant information, provide a helpful answer
3. If the context doesn't contain enough information, say: "` + InsufficientContextAnswer + `"
4. Stay focused on the information in the context - don't add external knowledge
5. Be helpful and conversational while staying accurate to the source material

## QUESTION
%s

## RESPONSE
Please provide a clear, helpful answer based on the context above.`

// BuildContext concatenates retrieved chunks in retrieval order as numbered
// document blocks. Repeated chunks (same source and index, or identical
// text) appear once. Blocks that would push the total past maxChars runes
// are dropped; a first block that is too long on its own is cut.
func BuildContext(results []SearchResult, maxChars int) (string, []SearchResult) {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	seenID := map[string]bool{}
	seenText := map[string]bool{}

	var b strings.Builder
	var used []SearchResult
	n := 0
	for _, r := range results {
		key := fmt.Sprintf("%s#%d", r.Chunk.Source, r.Chunk.Index)
		if seenID[key] || seenText[r.Chunk.Content] {
			continue
		}
		seenID[key] = true
		seenText[r.Chunk.Content] = true

		block := fmt.Sprintf("[Document %d]\n%s\n", len(used)+1, r.Chunk.Content)
		sep := ""
		if n > 0 {
			sep = "\n"
		}
		size := utf8.RuneCountInString(sep) + utf8.RuneCountInString(block)
		if n+size > maxChars {
			if n == 0 {
				b.WriteString(truncateRunes(block, maxChars))
				used = append(used, r)
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(block)
		n += size
		used = append(used, r)
	}
	if b.Len() == 0 {
		return noContextText, nil
	}
	return b.String(), used
}

// BuildPrompt fills the fixed answer template. history may be empty.
func BuildPrompt(context, question string, history []Turn) string {
	return fmt.Sprintf(ragTemplate, context, formatHistory(history), question)
}

func formatHistory(history []Turn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## CONVERSATION SO FAR\n")
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}
