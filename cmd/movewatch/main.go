// Command movewatch follows the move list of a live chess game and reports
// every change to the analysis backend.
//
// Usage:
//
//	movewatch -config movewatch.yaml                     # run from a config file
//	movewatch -url https://www.chess.com/game/live/123   # quick mode with defaults
//	movewatch -config movewatch.yaml -import-selectors v2.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/movewatch/movewatch"
)

func main() {
	configPath := flag.String("config", "", "path to movewatch.yaml config file")
	pageURL := flag.String("url", "", "game page URL (overrides page.url)")
	stdout := flag.Bool("stdout", false, "also print every update as a JSON line")
	importPath := flag.String("import-selectors", "", "store a selector set YAML into selector_db and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *importPath, *stdout); err != nil {
		logger.Error("movewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, importPath string, stdout bool) error {
	cfg := movewatch.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = movewatch.LoadConfigFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	if importPath != "" {
		return runImport(ctx, cfg, importPath)
	}

	if pageURL != "" {
		cfg.Page.URL = pageURL
	} else if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: movewatch -config <file> | -url <game url>")
		os.Exit(2)
	}

	var sinks []movewatch.Sink
	if stdout {
		sinks = append(sinks, movewatch.NewStdoutSink(os.Stdout))
	}
	w, err := movewatch.New(cfg, logger, sinks...)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	w.Stop()
	return nil
}

func runImport(ctx context.Context, cfg *movewatch.Config, path string) error {
	if cfg.SelectorDB == "" {
		return fmt.Errorf("import: selector_db is not configured")
	}
	set, err := movewatch.ImportSelectorSet(ctx, cfg.SelectorDB, path)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}
