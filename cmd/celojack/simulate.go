package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/lox/celojack/internal/config"
	"github.com/lox/celojack/internal/simulator"
	"github.com/lox/celojack/internal/strategy"
)

// SimulateCmd plays many automated rounds and reports the house edge
type SimulateCmd struct {
	Rounds   int           `default:"100000" help:"Number of rounds to simulate"`
	Strategy string        `default:"basic" help:"Strategy: basic, mimic, stand:N or script:PATH"`
	Seed     int64         `default:"0" help:"RNG seed (0 for time-based)"`
	Workers  int           `default:"0" help:"Parallel workers (0 for one per CPU)"`
	Timeout  time.Duration `default:"0" help:"Stop after this long (0 for no limit)"`
	Config   string        `short:"c" default:"celojack.hcl" help:"Path to HCL configuration file for house rules"`
	Verbose  bool          `short:"v" help:"Verbose logging"`
}

func (c *SimulateCmd) Run() error {
	level := "info"
	if c.Verbose {
		level = "debug"
	}
	logger, closer, err := setupLogger(level, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	rules, err := cfg.BlackjackRules()
	if err != nil {
		return err
	}
	factory, err := strategy.Parse(c.Strategy, rules)
	if err != nil {
		return err
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger.Info("Starting simulation",
		"rounds", c.Rounds,
		"strategy", c.Strategy,
		"seed", seed,
		"workers", workers,
		"h17", rules.DealerHitsSoft17)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	start := time.Now()
	stats, err := simulator.New(simulator.Config{
		Rounds:   c.Rounds,
		Strategy: factory,
		Rules:    rules,
		Seed:     seed,
		Workers:  workers,
		Timeout:  c.Timeout,
		Logger:   logger,
	}).Run(ctx)
	if err != nil {
		return err
	}

	simulator.PrintSummary(os.Stdout, stats, c.Strategy)
	elapsed := time.Since(start)
	fmt.Printf("\nCompleted in %s (%.0f rounds/sec), seed %d\n",
		elapsed.Round(time.Millisecond), float64(stats.Rounds)/elapsed.Seconds(), seed)
	return nil
}
