package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eringen/spacetraveling"
	"github.com/eringen/spacetraveling/internal/logctx"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve", "build", "export":
		if err := run(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("spacetraveling %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	var configPath string
	fs.StringVar(&configPath, "config", "", "path to config file")
	_ = fs.Parse(args)

	cfg := spacetraveling.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting spacetraveling", slog.String("cmd", cmd), slog.String("env", cfg.Env), slog.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logctx.Into(ctx, log)

	app := spacetraveling.New(*cfg, spacetraveling.WithLogger(log))
	defer app.Close()

	switch cmd {
	case "build":
		report, err := app.Build(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("built %d posts in %s (%d pruned)\n", report.Posts, report.Duration.Round(time.Millisecond), report.Pruned)
		return nil
	case "export":
		if fs.NArg() < 1 {
			return errors.New("usage: spacetraveling export [-config path] <dir>")
		}
		n, err := app.Export(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Printf("exported %d posts to %s\n", n, fs.Arg(0))
		return nil
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.String("err", err.Error()))
		return err
	}
	log.Info("server stopped")
	return nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func printUsage() {
	fmt.Println(`spacetraveling - a blog served from a Prismic repository

Usage:
  spacetraveling <command> [-config path] [arguments]

Commands:
  serve         Start the HTTP server
  build         Snapshot the listing and every post into the database
  export <dir>  Render the snapshot as a static site into dir
  version       Print the version
  help          Show this help message

Configuration is read from -config, CONFIG_PATH, ./local.yaml or the
environment (PRISMIC_API_ENDPOINT is required).`)
}
