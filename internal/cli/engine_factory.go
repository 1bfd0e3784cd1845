package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/adapters/sqlite"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
)

// NewEngine creates an engine with the CLI conventions and loads opts.File.
// The returned close function releases the engine and the snapshot backend.
func NewEngine(ctx context.Context, opts Options, logger *slog.Logger, extra ...weft.Option) (*weft.Engine, func() error, error) {
	store, locker, closeStore, err := openStore(opts)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []weft.Option{
		weft.WithLogger(logger),
		weft.WithSnapshotStore(store),
	}
	if locker != nil {
		engineOpts = append(engineOpts, weft.WithLocker(locker))
	}
	if opts.Debug {
		engineOpts = append(engineOpts, weft.WithHooks(observability.LogHooks(logger)))
	}
	engineOpts = append(engineOpts, extra...)

	engine := weft.New(engineOpts...)
	closeAll := func() error {
		return errors.Join(engine.Close(context.WithoutCancel(ctx)), closeStore())
	}

	if opts.Tools != "" {
		tools, err := process.LoadTools(opts.Tools)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		process.NewRunner(
			process.WithRegistry(tools),
			process.WithBaseDir(filepath.Dir(opts.Tools)),
			process.WithLogger(logger),
		).Install(engine)
	}

	if opts.File == "" {
		closeAll()
		return nil, nil, fmt.Errorf("no document given, use --file")
	}
	if err := engine.LoadFile(ctx, opts.File); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, closeAll, nil
}

func openStore(opts Options) (ports.SnapshotStore, ports.DistributedLocker, func() error, error) {
	store, locker, closeStore, err := openBackend(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	mws, err := storeMiddlewares(opts)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return middleware.Chain(store, mws...), locker, closeStore, nil
}

// storeMiddlewares masks first so that encryption seals the masked snapshot.
func storeMiddlewares(opts Options) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(opts.Mask) > 0 {
		mw, err := middleware.NewPIIMiddleware(opts.Mask)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if opts.EncryptionKey != "" {
		active, err := decodeKey(opts.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		cfg := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range opts.FallbackKeys {
			key, err := decodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback key %d: %w", i, err)
			}
			cfg.FallbackKeys = append(cfg.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(cfg)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

func decodeKey(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func openBackend(opts Options) (ports.SnapshotStore, ports.DistributedLocker, func() error, error) {
	noop := func() error { return nil }
	switch opts.Store {
	case "", StoreFile:
		return file.New(opts.StoreDSN), nil, noop, nil
	case StoreMemory:
		return memory.NewStore(), nil, noop, nil
	case StoreSQLite:
		path := opts.StoreDSN
		if path == "" {
			path = "weft.db"
		}
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil, s.Close, nil
	case StoreRedis:
		addr := opts.StoreDSN
		if addr == "" {
			addr = "localhost:6379"
		}
		client := backend.NewClient(&backend.Options{Addr: addr})
		return redis.NewFromClient(client), redis.NewLocker(client, redis.DefaultPrefix), client.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store %q (want file, memory, sqlite or redis)", opts.Store)
}
