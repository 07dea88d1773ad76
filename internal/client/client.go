package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/ppiankov/guardrace/api/guardrace/v1"
	"github.com/ppiankov/guardrace/internal/model"
	"github.com/ppiankov/guardrace/internal/race"
)

// DefaultTimeout bounds calls whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Client connects to a guardrace gRPC server.
type Client struct {
	conn   *grpc.ClientConn
	client *pb.GuardRaceClient
}

// New creates a gRPC client for addr. The connection is established lazily.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to guardrace server: %w", err)
	}
	return &Client{conn: conn, client: pb.NewGuardRaceClient(conn)}, nil
}

// Generate asks the server to run a guarded generation.
func (c *Client) Generate(ctx context.Context, req model.Request) (*pb.GenerateResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx, 0)
	defer cancel()

	in := &pb.GenerateRequest{RequestID: req.ID}
	for _, m := range req.Messages {
		in.Messages = append(in.Messages, pb.Message{Role: string(m.Role), Content: m.Content})
	}
	resp, err := c.client.Generate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("client: generate: %w", err)
	}
	return resp, nil
}

// Check asks the server's guard for a verdict on text. A guard that failed
// on the server comes back as an error, not as a rejection.
func (c *Client) Check(ctx context.Context, text string) (race.Verdict, error) {
	ctx, cancel := withDefaultTimeout(ctx, DefaultTimeout)
	defer cancel()

	resp, err := c.client.Check(ctx, &pb.CheckRequest{Text: text})
	if err != nil {
		return race.Verdict{}, fmt.Errorf("client: check: %w", err)
	}
	switch model.Decision(resp.Decision) {
	case model.Allow:
		return race.Accept(), nil
	case model.Deny:
		return race.Reject(resp.Reason), nil
	default:
		return race.Verdict{}, fmt.Errorf("client: check: unknown decision %q", resp.Decision)
	}
}

// Guard returns a race guard backed by the server's Check RPC, so a local
// producer can race a remote evaluator. Unreachable servers surface as
// errors, which the coordinator treats as a guard failure.
func (c *Client) Guard() *Guard {
	return &Guard{c: c}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Guard adapts Client.Check to race.Guard.
type Guard struct {
	c *Client
}

var _ race.Guard[model.Request] = (*Guard)(nil)

// Evaluate checks the request's last user message remotely.
func (g *Guard) Evaluate(ctx context.Context, req model.Request) (race.Verdict, error) {
	return g.c.Check(ctx, req.LastUserContent())
}

// withDefaultTimeout applies d when ctx has no deadline. d == 0 means none.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
