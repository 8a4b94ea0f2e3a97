// Command pipedrive-mcp-server exposes read-only Pipedrive CRM data to MCP
// clients over stdio or the legacy HTTP+SSE transport.
//
// Configuration comes from the environment (see internal/config) with flag
// overrides. Every Pipedrive call goes through one process-wide dispatcher
// bounded by PIPEDRIVE_RATE_LIMIT_MAX_CONCURRENT and
// PIPEDRIVE_RATE_LIMIT_MIN_TIME_MS.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/pipedrive-mcp-server-go/internal/config"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log, closer, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: stderr})
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.ErrorContext(ctx, "server.init.fail", slog.String("err", err.Error()))
		return err
	}
	defer a.Close()

	switch cfg.Transport {
	case config.TransportSSE:
		ln, err := listen(cfg.Port)
		if err != nil {
			log.ErrorContext(ctx, "server.listen.fail", slog.String("err", err.Error()))
			return err
		}
		err = a.serveSSE(ctx, ln)
		if err != nil {
			log.ErrorContext(ctx, "server.fail", slog.String("err", err.Error()))
		}
		return err
	default:
		err := a.serveStdio(ctx, stdin, stdout)
		if err != nil {
			log.ErrorContext(ctx, "server.fail", slog.String("err", err.Error()))
		}
		return err
	}
}
