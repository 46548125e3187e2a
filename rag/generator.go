package rag

import "context"

// Guardrail selects a managed content-filtering policy applied around a
// generation call. Providers that only have one policy ignore ID and Version.
type Guardrail struct {
	ID      string
	Version string
	Trace   bool
}

// Generation is the outcome of a generation call. Blocked is set when the
// guardrail intervened; Text then holds the provider's blocked message, if
// any, and must not be treated as an answer.
type Generation struct {
	Text    string
	Blocked bool
}

// BlockedMessage is shown when a guardrail blocks without its own message.
const BlockedMessage = "Sorry, this request was blocked by the content guardrail."

// Generator wraps a hosted LLM.
type Generator interface {
	Generate(ctx context.Context, prompt string, guard *Guardrail) (Generation, error)
}
