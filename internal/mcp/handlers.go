package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/runstore"
)

// GenerateInput defines parameters for the guardrace_generate tool.
type GenerateInput struct {
	Prompt string `json:"prompt" jsonschema:"user prompt to generate a response for"`
	System string `json:"system,omitempty" jsonschema:"optional system prompt"`
}

// GenerateOutput contains the outcome of a guarded generation.
type GenerateOutput struct {
	TraceID           string `json:"trace_id"`
	Kind              string `json:"kind"`
	Content           string `json:"content,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Error             string `json:"error,omitempty"`
	ProducerCancelled bool   `json:"producer_cancelled"`
	ElapsedMS         int64  `json:"elapsed_ms"`
}

// CheckInput defines parameters for the guardrace_check tool.
type CheckInput struct {
	Prompt string `json:"prompt" jsonschema:"prompt to evaluate"`
}

// CheckOutput contains the guard decision.
type CheckOutput struct {
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HistoryInput defines parameters for the guardrace_history tool.
type HistoryInput struct {
	Kind  string `json:"kind,omitempty" jsonschema:"only return runs with this outcome kind"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum runs to return (default 20)"`
}

// HistoryOutput lists recent runs and aggregate counts.
type HistoryOutput struct {
	Runs  []runstore.Run `json:"runs"`
	Stats runstore.Stats `json:"stats"`
}

var errNoHistory = errors.New("run history is disabled")

func (s *Server) handleGenerate(ctx context.Context, req *mcpsdk.CallToolRequest, input GenerateInput) (*mcpsdk.CallToolResult, GenerateOutput, error) {
	res, err := s.gate.Generate(ctx, model.NewRequest(input.Prompt, input.System))
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	out := GenerateOutput{
		TraceID:           res.TraceID,
		Kind:              string(res.Kind),
		Content:           res.Content,
		Reason:            res.Reason,
		Error:             res.Error,
		ProducerCancelled: res.ProducerCancelled,
		ElapsedMS:         res.ElapsedMS,
	}
	if !res.OK() {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	v, err := s.gate.Check(ctx, input.Prompt)
	if err != nil {
		if errors.Is(err, model.ErrEmptyRequest) {
			return nil, CheckOutput{}, err
		}
		return &mcpsdk.CallToolResult{IsError: true}, CheckOutput{Error: "guard failed: " + err.Error()}, nil
	}
	if !v.Accepted {
		return nil, CheckOutput{Decision: string(model.Deny), Reason: v.Reason}, nil
	}
	return nil, CheckOutput{Decision: string(model.Allow)}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input HistoryInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	if s.store == nil {
		return nil, HistoryOutput{}, errNoHistory
	}
	runs, err := s.store.List(ctx, input.Kind, input.Limit)
	if err != nil {
		return nil, HistoryOutput{}, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, HistoryOutput{}, err
	}
	if runs == nil {
		runs = []runstore.Run{}
	}
	return nil, HistoryOutput{Runs: runs, Stats: stats}, nil
}
