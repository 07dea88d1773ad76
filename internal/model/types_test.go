package model

import (
	"errors"
	"testing"
)

func TestNewRequestWithSystemPrompt(t *testing.T) {
	req := NewRequest("hello", "be brief")

	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != RoleSystem {
		t.Errorf("expected system first, got %s", req.Messages[0].Role)
	}
	if req.LastUserContent() != "hello" {
		t.Errorf("expected hello, got %q", req.LastUserContent())
	}
}

func TestLastUserContentSkipsAssistantTurns(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "another reply"},
	}}

	if got := req.LastUserContent(); got != "second" {
		t.Errorf("expected second, got %q", got)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	if err := (Request{}).Validate(); !errors.Is(err, ErrEmptyRequest) {
		t.Errorf("expected ErrEmptyRequest, got %v", err)
	}
	if err := NewRequest("   ", "").Validate(); !errors.Is(err, ErrEmptyRequest) {
		t.Errorf("expected ErrEmptyRequest for whitespace, got %v", err)
	}
	if err := NewRequest("hi", "").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
