package model

import (
	"errors"
	"strings"
)

// ErrEmptyRequest is returned when a request carries no user content.
var ErrEmptyRequest = errors.New("request has no user message")

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Request is the immutable input shared by the guard and the producer.
type Request struct {
	ID       string    `json:"id,omitempty" yaml:"id,omitempty"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// NewRequest builds a single-turn request, with an optional system prompt.
func NewRequest(prompt, system string) Request {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	return Request{Messages: msgs}
}

// LastUserContent returns the content of the most recent user message.
// This is the text guards evaluate.
func (r Request) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Validate rejects requests with nothing to guard or generate from.
func (r Request) Validate() error {
	if strings.TrimSpace(r.LastUserContent()) == "" {
		return ErrEmptyRequest
	}
	return nil
}

// Artifact is what a producer returns for a request.
type Artifact struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Decision is the guard decision exposed on external surfaces.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)
