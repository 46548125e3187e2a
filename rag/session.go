package rag

import (
	"sync"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// historyTurns is how many recent turns go into a prompt.
	historyTurns = 6
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the conversation state of one chat. It is passed into each
// Ask call explicitly; the pipeline itself keeps no per-user state.
type Session struct {
	ID string

	mu    sync.Mutex
	turns []Turn
}

func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content})
}

// History returns a copy of every turn so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Recent returns a copy of the last n turns.
func (s *Session) Recent(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.turns) {
		n = len(s.turns)
	}
	return append([]Turn(nil), s.turns[len(s.turns)-n:]...)
}
