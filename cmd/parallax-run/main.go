// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// parallax-run drives a random-action rollout against a pin-pad
// environment hosted in a worker, exercising the full proxy path:
// spawn, member classification, forwarded calls, and shutdown.
//
// Usage:
//
//	parallax-run [--config parallax.yaml] [--task three] [--mode subprocess]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/parallax-foundation/parallax/env"
	"github.com/parallax-foundation/parallax/lib/codec"
	"github.com/parallax-foundation/parallax/lib/config"
	"github.com/parallax-foundation/parallax/lib/process"
	"github.com/parallax-foundation/parallax/lib/version"
	"github.com/parallax-foundation/parallax/remote"
	"github.com/parallax-foundation/parallax/worker"
)

// pinpadTarget is the registered constructor name for the pin-pad
// environment; subprocess workers resolve it in the re-executed child.
const pinpadTarget = "pinpad"

func main() {
	flags := pflag.NewFlagSet("parallax-run", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to the YAML run configuration")
	task := flags.String("task", "", "layout variant (three..eight)")
	mode := flags.String("mode", "", "worker mode (inproc or subprocess)")
	steps := flags.Int("steps", 0, "total environment steps to run")
	seed := flags.Int64("seed", 0, "environment and policy seed")
	episodeLength := flags.Int("episode-length", 0, "steps per episode before truncation")
	logLevel := flags.String("log-level", "", "log level (debug, info, warn, error)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
	if *showVersion {
		version.Print("parallax-run")
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		process.Fatal(err)
	}
	if flags.Changed("task") {
		cfg.Task = *task
	}
	if flags.Changed("mode") {
		cfg.Mode = *mode
	}
	if flags.Changed("steps") {
		cfg.Steps = *steps
	}
	if flags.Changed("seed") {
		cfg.Seed = *seed
	}
	if flags.Changed("episode-length") {
		cfg.EpisodeLength = *episodeLength
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		process.Fatal(err)
	}

	// Register before worker.Main: a re-executed child parses the same
	// flags and config, so its constructor closes over the same values.
	worker.Register(pinpadTarget, func() (any, error) {
		return env.NewPinPad(cfg.Task, cfg.EpisodeLength, cfg.Seed)
	})
	worker.Main()

	if err := run(cfg); err != nil {
		process.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := worker.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	handle, err := worker.Spawn(ctx, worker.Options{
		Mode:   mode,
		Target: pinpadTarget,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("spawning %s worker: %w", cfg.Mode, err)
	}

	proxy := remote.NewProxy(handle)
	defer proxy.Close()

	logger.Info("starting rollout",
		"task", cfg.Task, "mode", cfg.Mode, "steps", cfg.Steps, "seed", cfg.Seed)

	member, err := proxy.Access(ctx, "Step")
	if err != nil {
		return fmt.Errorf("resolving Step: %w", err)
	}
	step, ok := member.(remote.Forwarder)
	if !ok {
		return fmt.Errorf("Step resolved to %T, want a callable", member)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	action := env.Action{Reset: true}
	var totalReward float64
	episodes := 0
	for i := 0; i < cfg.Steps; i++ {
		value, err := step(ctx, action)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		obs, err := decodeObservation(value)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		totalReward += obs.Reward
		if obs.IsLast {
			episodes++
			action = env.Action{Reset: true}
		} else {
			action = env.Action{Move: rng.Intn(env.NumMoves)}
		}

		if (i+1)%1000 == 0 {
			logger.Info("rollout progress",
				"step", i+1, "episodes", episodes, "total_reward", totalReward)
		}
	}

	statsValue, err := proxy.Call(ctx, "VisitStats")
	if err != nil {
		return fmt.Errorf("reading visit stats: %w", err)
	}
	var stats env.Stats
	if err := decodeInto(statsValue, &stats); err != nil {
		return fmt.Errorf("decoding visit stats: %w", err)
	}

	logger.Info("rollout finished",
		"steps", cfg.Steps,
		"episodes", episodes,
		"total_reward", totalReward,
		"coverage", stats.Coverage,
		"visited", stats.Visited,
		"max_visits", stats.MaxVisits)

	if err := proxy.Close(); err != nil {
		return fmt.Errorf("closing worker: %w", err)
	}
	return nil
}

// decodeObservation normalizes a Step result: an in-process worker
// hands back the Observation struct, a subprocess worker a decoded
// CBOR map.
func decodeObservation(value any) (env.Observation, error) {
	if obs, ok := value.(env.Observation); ok {
		return obs, nil
	}
	var obs env.Observation
	if err := decodeInto(value, &obs); err != nil {
		return env.Observation{}, err
	}
	return obs, nil
}

// decodeInto re-encodes a dynamically-typed value into a concrete
// struct through the wire codec.
func decodeInto(value any, out any) error {
	data, err := codec.Marshal(value)
	if err != nil {
		return err
	}
	return codec.Unmarshal(data, out)
}
