package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/auth"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/config"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/engine"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/metrics"
	"github.com/ggoodman/pipedrive-mcp-server-go/mcp"
	"github.com/ggoodman/pipedrive-mcp-server-go/pipedrive"
	"github.com/ggoodman/pipedrive-mcp-server-go/prompts"
	"github.com/ggoodman/pipedrive-mcp-server-go/ratelimit"
	"github.com/ggoodman/pipedrive-mcp-server-go/sessions"
	"github.com/ggoodman/pipedrive-mcp-server-go/sse"
	"github.com/ggoodman/pipedrive-mcp-server-go/stdio"
	"github.com/ggoodman/pipedrive-mcp-server-go/storage"
	"github.com/ggoodman/pipedrive-mcp-server-go/storage/memory"
	"github.com/ggoodman/pipedrive-mcp-server-go/storage/redis"
	"github.com/ggoodman/pipedrive-mcp-server-go/tools"
	"golang.org/x/sync/errgroup"
)

const (
	serverName    = "pipedrive-mcp-server"
	serverVersion = "1.0.0"

	shutdownTimeout = 5 * time.Second
)

// app holds everything shared by both transports.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	dispatcher *ratelimit.Dispatcher
	gate       *auth.Gate
	engine     *engine.Engine
	store      storage.Storage
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	gate, err := newGate(ctx, cfg.JWT)
	if err != nil {
		return nil, err
	}
	a.gate = gate

	d, err := ratelimit.New(ratelimit.Config{
		MinTime:       cfg.Pipedrive.MinTime(),
		MaxConcurrent: cfg.Pipedrive.MaxConcurrent,
	}, ratelimit.WithLogger(log), ratelimit.WithWaitObserver(a.metrics.ObserveDispatchWait))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	a.dispatcher = d
	a.metrics.RegisterDispatcher(d)

	hc, err := pipedrive.NewHTTPClient(cfg.Pipedrive.APIBaseURL(), cfg.Pipedrive.APIToken,
		pipedrive.WithLogger(log),
		pipedrive.WithRequestObserver(a.metrics.ObserveDownstream),
	)
	if err != nil {
		return nil, err
	}
	var client pipedrive.Client = pipedrive.NewRateLimited(hc, d)

	store, err := newStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if store != nil {
		a.store = store
		client = pipedrive.NewCached(client, store, cfg.Cache.TTL,
			pipedrive.WithCacheLogger(log),
			pipedrive.WithCacheObserver(a.metrics.ObserveCache),
		)
	}

	a.engine = engine.New(
		tools.NewContainer(client, tools.WithLogger(log)),
		prompts.NewContainer(),
		mcp.ImplementationInfo{Name: serverName, Version: serverVersion},
		engine.WithLogger(log),
	)

	log.InfoContext(ctx, "server.init",
		slog.String("transport", cfg.Transport),
		slog.Bool("auth", gate.Enabled()),
		slog.String("cache", cfg.Cache.Backend),
		slog.Int("max_concurrent", cfg.Pipedrive.MaxConcurrent),
		slog.Duration("min_time", cfg.Pipedrive.MinTime()),
	)
	return a, nil
}

// newGate builds the bearer-token gate and checks the boot token against it.
// A disabled configuration yields a gate that admits everything.
func newGate(ctx context.Context, cfg config.JWT) (*auth.Gate, error) {
	if !cfg.Enabled() {
		return auth.NewGate(nil), nil
	}
	var secret []byte
	if cfg.Secret != "" {
		secret = []byte(cfg.Secret)
	}
	authn, err := auth.NewJWT(ctx, auth.JWTConfig{
		Secret:      secret,
		AllowedAlgs: cfg.Algorithms(),
		Audience:    cfg.Audience,
		Issuer:      cfg.Issuer,
		JWKSURL:     cfg.JWKSURL,
	})
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyBootToken(ctx, authn, cfg.Token); err != nil {
		return nil, fmt.Errorf("failed to verify MCP_JWT_TOKEN: %w", err)
	}
	return auth.NewGate(authn), nil
}

func newStore(ctx context.Context, cfg config.Cache) (storage.Storage, error) {
	switch cfg.Backend {
	case config.CacheMemory:
		life := cfg.TTL
		if life <= 0 {
			life = time.Hour
		}
		s, err := memory.New(ctx, memory.Config{LifeWindow: life})
		if err != nil {
			return nil, fmt.Errorf("memory cache: %w", err)
		}
		return s, nil
	case config.CacheRedis:
		s, err := redis.NewFromURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return s, nil
	default:
		return nil, nil
	}
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	return ln, nil
}

// serveSSE serves the HTTP front-end on ln until ctx ends.
func (a *app) serveSSE(ctx context.Context, ln net.Listener) error {
	registry := sessions.NewRegistry(sessions.WithLogger(a.log))
	a.metrics.RegisterSessions(registry.Len)

	h, err := sse.New(a.engine, a.gate,
		sse.WithLogger(a.log),
		sse.WithEndpoint(a.cfg.Endpoint),
		sse.WithRegistry(registry),
		sse.WithMetrics(a.metrics),
	)
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.InfoContext(gctx, "server.listen",
			slog.String("addr", ln.Addr().String()),
			slog.String("stream", sse.StreamPath),
			slog.String("endpoint", h.Endpoint()),
			slog.String("health", sse.HealthPath),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	a.serveMetrics(gctx, g)

	g.Go(func() error {
		<-gctx.Done()
		a.log.InfoContext(context.Background(), "server.shutdown", slog.Int("sessions", h.Sessions()))
		_ = h.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// serveStdio serves one JSON-RPC stream until EOF, a stream failure or ctx ends.
func (a *app) serveStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return stdio.NewHandler(a.engine, stdio.WithIO(in, out), stdio.WithLogger(a.log)).Serve(gctx)
	})
	a.serveMetrics(gctx, g)
	return g.Wait()
}

// serveMetrics runs the Prometheus listener in g when configured.
func (a *app) serveMetrics(ctx context.Context, g *errgroup.Group) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		a.log.InfoContext(ctx, "metrics.listen", slog.String("addr", a.cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}
