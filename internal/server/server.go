package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/ppiankov/guardrace/api/guardrace/v1"
	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/gate"
	"github.com/ppiankov/guardrace/internal/logging"
	"github.com/ppiankov/guardrace/internal/model"
)

// Config holds gRPC server configuration.
type Config struct {
	Port       int
	ConfigPath string
	Logger     *slog.Logger
}

// Server implements the GuardRace gRPC service over a gate.
type Server struct {
	gate       *gate.Gate
	cfg        Config
	log        *slog.Logger
	grpcServer *grpc.Server
}

var _ pb.GuardRaceServer = (*Server)(nil)

// New creates a gRPC server serving g.
func New(g *gate.Gate, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{gate: g, cfg: cfg, log: log}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	pb.RegisterGuardRaceServer(s.grpcServer, s)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.log.Info("grpc server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// GracefulStop drains in-flight races and stops the server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
	s.gate.Close()
}

// Generate implements the Generate RPC. Blocked and failed races are
// successful RPCs carrying a deny decision.
func (s *Server) Generate(ctx context.Context, req *pb.GenerateRequest) (*pb.GenerateResponse, error) {
	mreq := model.Request{ID: req.RequestID}
	for _, m := range req.Messages {
		mreq.Messages = append(mreq.Messages, model.Message{Role: model.Role(m.Role), Content: m.Content})
	}

	res, err := s.gate.Generate(ctx, mreq)
	if err != nil {
		if errors.Is(err, model.ErrEmptyRequest) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	return &pb.GenerateResponse{
		TraceID:           res.TraceID,
		RequestID:         res.RequestID,
		Kind:              string(res.Kind),
		Decision:          string(res.Decision()),
		Content:           res.Content,
		Model:             res.Model,
		Reason:            res.Reason,
		Error:             res.Error,
		Timeout:           res.Timeout,
		ProducerCancelled: res.ProducerCancelled,
		ElapsedMS:         res.ElapsedMS,
		Path:              res.Path,
	}, nil
}

// Check implements the Check RPC. Only a verdict is answered with a
// decision; a failing guard is an RPC error so callers cannot mistake it
// for a rejection.
func (s *Server) Check(ctx context.Context, req *pb.CheckRequest) (*pb.CheckResponse, error) {
	v, err := s.gate.Check(ctx, req.Text)
	if err != nil {
		return nil, checkStatus(err)
	}
	if !v.Accepted {
		return &pb.CheckResponse{Decision: string(model.Deny), Reason: v.Reason}, nil
	}
	return &pb.CheckResponse{Decision: string(model.Allow)}, nil
}

func checkStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrEmptyRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "guard failed: "+err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "guard failed: "+err.Error())
	default:
		return status.Error(codes.Unavailable, "guard failed: "+err.Error())
	}
}

// Reload rebuilds the guard, producer and race options from the config file
// and swaps them into the gate together. Called by the hot-reloader on file
// change and on SIGHUP. Audit, store and alert destinations are fixed for
// the life of the process.
func (s *Server) Reload() error {
	cfg, hash, err := config.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	g, err := gate.BuildGuard(cfg)
	if err != nil {
		return fmt.Errorf("failed to rebuild guard: %w", err)
	}
	p, err := gate.BuildProducer(context.Background(), cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to rebuild producer: %w", err)
	}
	opts := cfg.Race.Options()
	s.gate.Reconfigure(g, p, opts, hash)
	s.log.Info("config reloaded",
		"config_hash", hash,
		"producer", cfg.Producer.Kind,
		"guard_timeout", opts.GuardTimeout,
		"producer_timeout", opts.ProducerTimeout,
		"cancel_grace", opts.CancelGrace,
	)
	return nil
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	attrs := []any{"method", info.FullMethod, "duration", time.Since(start).Round(time.Millisecond)}
	if err != nil {
		s.log.Warn("rpc failed", append(attrs, "code", status.Code(err).String(), "err", err)...)
	} else {
		s.log.Debug("rpc", attrs...)
	}
	return resp, err
}
