// Package main provides the rendezvous discovery daemon executable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rng-ops/infrasim/internal/binder"
	"github.com/rng-ops/infrasim/internal/config"
	"github.com/rng-ops/infrasim/internal/descriptor"
	"github.com/rng-ops/infrasim/internal/engine"
	"github.com/rng-ops/infrasim/internal/learner"
	"github.com/rng-ops/infrasim/internal/logger"
	"github.com/rng-ops/infrasim/internal/oracle"
	"github.com/rng-ops/infrasim/internal/verify"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	debug := flag.Bool("debug", false, "Shorthand for -log-level=debug")
	flag.BoolVar(debug, "d", false, "Shorthand for -debug")
	publicKeyPath := flag.String("verify-key", "", "Path to an Ed25519 public key used to verify peer descriptors (optional)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rendezvousd version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if *debug {
		*logLevel = "debug"
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(level, os.Stdout)

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		log.Error("failed to load configuration", "error", err, "path", *configFile)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cancel, cfg, *publicKeyPath, log); err != nil {
		log.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, publicKeyPath string, log *logger.Logger) error {
	macKey, err := cfg.MACKey()
	if err != nil {
		return fmt.Errorf("failed to derive MAC key: %w", err)
	}

	local, err := descriptor.LoadLocal(cfg.DescriptorPath)
	if err != nil {
		return fmt.Errorf("failed to load local descriptor: %w", err)
	}
	if !local.Present {
		log.Warn("local descriptor not found, daemon will listen but not broadcast", "path", cfg.DescriptorPath)
	}

	var verifier verify.Verifier
	if publicKeyPath != "" {
		keyBytes, err := os.ReadFile(publicKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read verify key: %w", err)
		}
		v, err := verify.NewEd25519Verifier(keyBytes)
		if err != nil {
			return fmt.Errorf("invalid verify key: %w", err)
		}
		verifier = v
		log.Info("peer descriptor verification enabled", "key_path", publicKeyPath)
	}

	store, err := descriptor.NewStore(cfg.PeersDir)
	if err != nil {
		return fmt.Errorf("failed to initialize peer store: %w", err)
	}

	selfNodeID := ""
	if local.Present {
		selfNodeID = local.Descriptor.NodeID
	}
	l := learner.New(log, selfNodeID, store, verifier, cfg.PeerCallback, cfg.MaxPeers)

	o := oracle.New(cfg.EpochSeconds, cfg.SlotsPerEpoch)
	b := binder.New()
	eng := engine.New(log, macKey, cfg.Interface, o, cfg.SlotDurationMS, b, local, l)

	log.Info("starting rendezvous daemon",
		"version", version,
		"interface", cfg.Interface,
		"epoch_seconds", cfg.EpochSeconds,
		"slots_per_epoch", cfg.SlotsPerEpoch,
		"max_peers", cfg.MaxPeers)

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- eng.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-engineErr:
		if err != nil {
			return fmt.Errorf("slot engine failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("context cancelled", "reason", ctx.Err())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	select {
	case err := <-engineErr:
		if err != nil {
			return fmt.Errorf("slot engine shutdown error: %w", err)
		}
	case <-shutdownCtx.Done():
		log.Warn("slot engine shutdown timed out")
	}

	return nil
}
