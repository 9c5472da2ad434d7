// Package main is the entry point for the loopd daemon.
// loopd is a headless seamless-loop audio playback daemon: it loads a
// single track, analyzes its structure to suggest loop points, and drives
// gapless loop playback to an output sink, all controlled over a Unix
// socket JSON-RPC protocol (see internal/ipc).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcrane/loopd/internal/analysis"
	"github.com/jcrane/loopd/internal/config"
	"github.com/jcrane/loopd/internal/eventbus"
	"github.com/jcrane/loopd/internal/ipc"
	"github.com/jcrane/loopd/internal/loop"
	"github.com/jcrane/loopd/internal/output"
	"github.com/jcrane/loopd/internal/pcm"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config holds daemon startup configuration (flags, not internal/config.Config).
type Config struct {
	SocketPath string
	ConfigDir  string
	Verbose    bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("loopd version %s starting...", Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/loopd)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = homeDir + "/.config/loopd"
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/loopd-%d.sock", os.Getuid())
	}

	return cfg
}

const sinkChannels = 2

func run(ctx context.Context, cfg *Config) error {
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	daemonCfg := configMgr.Get()

	sink, err := output.NewOtoSink(daemonCfg.Audio.SampleRate, sinkChannels)
	if err != nil {
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}
	defer sink.Close()
	sink.SetVolume(daemonCfg.Audio.DefaultVolume)

	bus := eventbus.NewBus()
	store := pcm.NewStore()
	engine := loop.NewEngine(sink, bus)

	errs := ipc.NewErrorTracker()
	driver := analysis.NewDriver(func(snap analysis.Snapshot) {
		if snap.HasSuggestion {
			log.Printf("[ANALYSIS] suggested loop [%.3f, %.3f] quality=%.2f", snap.Suggestion.StartTime, snap.Suggestion.EndTime, snap.Suggestion.Quality)
		}
	}, ipc.AnalysisErrorHandler(bus, errs))

	server := ipc.NewServer(cfg.SocketPath, store, engine, driver, bus, errs, daemonCfg.Analysis.AutoAnalyze, daemonCfg.Loop.DefaultMaxIterations)

	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	driver.Cancel()
	engine.Stop()

	return nil
}
