package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/weft"
	httpAdapter "github.com/aretw0/weft/pkg/adapters/http"
	"github.com/aretw0/weft/pkg/adapters/mcp"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/uiloop"
)

// ShutdownTimeout bounds the graceful shutdown of the servers.
const ShutdownTimeout = 5 * time.Second

// Serve runs the devtools HTTP server on addr until ctx is done. Metrics are
// collected in a dedicated registry served on /metrics. With opts.Watch the
// document is reloaded on change. Binding writes from concurrent requests are
// serialised on a UI loop.
func Serve(ctx context.Context, opts Options, addr string, out io.Writer) error {
	logger := createLogger(opts.Debug)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	loop := uiloop.New(uiloop.WithLogger(logger))
	go func() { _ = loop.Run(ctx) }()
	defer loop.Close()

	engine, closeEngine, err := NewEngine(ctx, opts, logger,
		weft.WithHooks(metrics.Hooks()),
		weft.WithDispatcher(loop),
	)
	if err != nil {
		return err
	}
	defer closeEngine()

	if opts.Watch {
		if _, err := engine.Watch(ctx); err != nil {
			return err
		}
	}

	handler := httpAdapter.NewHandler(ctx, engine,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		fmt.Fprintf(out, "Starting weft devtools on %s\n", addr)
		fmt.Fprintf(out, "Serving document: %s\n", opts.File)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			return errors.Join(err, srv.Close())
		}
		fmt.Fprintln(out, "weft devtools stopped gracefully")
		return nil
	}
}

// ServeMCP runs the MCP server over "stdio" or "sse". Logs never go to stdout,
// which belongs to the protocol in stdio mode.
func ServeMCP(ctx context.Context, opts Options, transport string, port int) error {
	logger := createLogger(opts.Debug)
	engine, closeEngine, err := NewEngine(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	if opts.Watch {
		if _, err := engine.Watch(ctx); err != nil {
			return err
		}
	}

	srv := mcp.NewServer(engine, mcp.WithLogger(logger))
	switch transport {
	case "", "stdio":
		logger.Info("Starting weft MCP server (stdio)")
		return srv.ServeStdio()
	case "sse":
		if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", transport)
}
