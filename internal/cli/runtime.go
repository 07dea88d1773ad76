package cli

import (
	"context"
	"fmt"

	"github.com/ppiankov/guardrace/internal/alert"
	"github.com/ppiankov/guardrace/internal/audit"
	"github.com/ppiankov/guardrace/internal/config"
	"github.com/ppiankov/guardrace/internal/gate"
	"github.com/ppiankov/guardrace/internal/runstore"
)

// runtime is the gate plus the resources it writes to.
type runtime struct {
	cfg   *config.Config
	hash  string
	gate  *gate.Gate
	audit *audit.Log
	store *runstore.Store
}

// openRuntime loads the config and wires guard, producer, audit log, run
// store and alerts into a gate.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return nil, err
	}

	g, err := gate.BuildGuard(cfg)
	if err != nil {
		return nil, err
	}
	p, err := gate.BuildProducer(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, hash: hash}
	if cfg.Audit.Path != "" {
		if rt.audit, err = audit.Open(cfg.Audit.Path); err != nil {
			return nil, err
		}
	}
	if cfg.Store.Path != "" {
		if rt.store, err = runstore.Open(cfg.Store.Path); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.gate = gate.New(g, p, gate.Options{
		Race:       cfg.Race.Options(),
		Audit:      rt.audit,
		Store:      rt.store,
		Alerts:     alert.NewDispatcher(cfg.Alerts).WithLogger(logger),
		Logger:     logger,
		ConfigHash: hash,
	})
	return rt, nil
}

// Close drains alerts and closes the audit log and run store.
func (rt *runtime) Close() error {
	if rt.gate != nil {
		rt.gate.Close()
	}
	var firstErr error
	if rt.audit != nil {
		if err := rt.audit.Close(); err != nil {
			firstErr = err
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("close runtime: %w", firstErr)
	}
	return nil
}

// openStore opens only the run store, for read-only commands.
func openStore() (*runstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("run history is disabled (store.path is empty)")
	}
	return runstore.Open(cfg.Store.Path)
}
