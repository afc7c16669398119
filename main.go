// Package main is the tagdir mount process: it assembles the
// virtual-namespace core — the sqlite-backed data model, the
// Entity-Path Watcher, the loopback, and the Operation Dispatcher —
// and holds it ready for a FUSE binding to drive. Wiring that binding
// to an actual kernel mount, and the mount/mktag/tag/untag/listag CLI
// wrapper around it, are both external collaborators this repository
// does not implement (see DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/osakka/tagdir/config"
	"github.com/osakka/tagdir/dispatch"
	"github.com/osakka/tagdir/logger"
	"github.com/osakka/tagdir/loopback"
	"github.com/osakka/tagdir/storage/sqlite"
	"github.com/osakka/tagdir/watcher"
)

// Version is overridden at build time: go build -ldflags "-X main.Version=1.2.3".
var Version = "dev"

func main() {
	cfg := &config.Config{}
	config.RegisterFlags(flag.CommandLine, cfg)

	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("tagdir v%s\n", Version)
		os.Exit(0)
	}

	if cfg.Mountpoint == "" {
		fmt.Fprintln(os.Stderr, "tagdir: -mountpoint is required")
		os.Exit(1)
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tagdir: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(level)
	if level == logger.TRACE {
		logger.EnableTrace()
	}

	if subs := os.Getenv("TAGDIR_TRACE_SUBSYSTEMS"); subs != "" {
		names := strings.Split(subs, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		logger.EnableTraceFor(names...)
		logger.Info("trace subsystems enabled: %s", strings.Join(names, ", "))
	}

	logger.Info("starting %s, log level %s", cfg.FSName(), strings.ToUpper(cfg.LogLevel))

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open data model at %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	w, err := watcher.Get(store)
	if err != nil {
		logger.Error("start entity-path watcher: %v", err)
		os.Exit(1)
	}
	defer w.Close()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go w.Run(watchCtx)

	d := dispatch.New(store, loopback.NewOS(), w)
	_ = d // handed to the FUSE binding layer

	logger.Info("tagdir core ready: db=%s mountpoint=%s allow_other=%v", cfg.DBPath, cfg.Mountpoint, cfg.AllowOther)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.UnscheduleRedundantHandlers(shutdownCtx); err != nil {
		logger.Warn("prune watches on shutdown: %v", err)
	}

	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "tagdir: flush log: %v\n", err)
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return logger.TRACE, nil
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warn", "warning":
		return logger.WARN, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}
