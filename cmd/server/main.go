package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sumire/recursiveflow/internal/config"
	"github.com/sumire/recursiveflow/internal/handler"
	"github.com/sumire/recursiveflow/internal/metrics"
	"github.com/sumire/recursiveflow/internal/opsserver"
	"github.com/sumire/recursiveflow/internal/repository"
	"github.com/sumire/recursiveflow/internal/rpc"
	"github.com/sumire/recursiveflow/internal/service"
	"github.com/sumire/recursiveflow/internal/tools"
	"github.com/sumire/recursiveflow/internal/transport/stdio"
)

const (
	serverName    = "mcp-recursive-flow-server"
	serverVersion = "1.0.0"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(serverName, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	transport := fs.String("transport", "", "transport to serve: stdio or http")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println(serverName, serverVersion)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *transport != "" {
		cfg.Transport = *transport
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("apply -transport: %w", err)
		}
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	store := repository.NewJobStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, store)

	workflow := service.NewWorkflowService(store)
	registry := tools.NewRegistry(workflow, m)
	dispatcher := rpc.NewDispatcher(registry, rpc.ServerInfo{Name: serverName, Version: serverVersion})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opsAddr := cfg.OpsListenAddr(); opsAddr != "" {
		ops := opsserver.New(opsAddr, reg, store)
		go func() {
			slog.Info("ops listener starting", "addr", opsAddr)
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops listener failed", "error", err)
			}
		}()
		defer shutdown(ops, cfg.ShutdownTimeout)
	}

	slog.Info("server starting", "transport", cfg.Transport, "version", serverVersion)

	switch cfg.Transport {
	case config.TransportHTTP:
		err = serveHTTP(ctx, cfg, dispatcher, registry, workflow)
	default:
		err = stdio.NewServer(dispatcher, int(cfg.MaxBodyBytes)).Serve(ctx, os.Stdin, os.Stdout)
	}
	if err != nil {
		return err
	}

	slog.Info("server stopped")
	return nil
}

func serveHTTP(ctx context.Context, cfg config.Config, dispatcher *rpc.Dispatcher, registry *tools.Registry, workflow *service.WorkflowService) error {
	e := handler.NewRouter(
		handler.RouterConfig{
			MaxBodyBytes: cfg.MaxBodyBytes,
			RateLimit:    handler.RateLimitConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		},
		handler.NewRPCHandler(dispatcher),
		handler.NewToolHandler(registry),
		handler.NewJobHandler(workflow),
	)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      e,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listener starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func shutdown(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("ops listener shutdown", "error", err)
	}
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
