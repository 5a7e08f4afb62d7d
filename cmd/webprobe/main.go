package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/v0xg/webprobe/internal/config"
	"github.com/v0xg/webprobe/internal/logger"
)

// errTestsFailed makes the process exit non-zero after a run with failures.
var errTestsFailed = errors.New("one or more tests failed")

var (
	configPath string
	aiMode     string
	verbose    bool
)

// app carries the state shared by every command.
type app struct {
	cfg *config.Config
	log logger.Interface
}

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "webprobe",
		Short: "Map a web app, generate tests from its structure and run them with self-healing",
		Long: `webprobe crawls a running web application into a structural graph,
generates test plans until coverage goals are met, executes them in a
browser with retries and selector healing, and learns from every run.

Example:
  webprobe map --url http://localhost:3000
  webprobe generate
  webprobe run
  webprobe triage`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: webprobe.yaml)")
	rootCmd.PersistentFlags().StringVar(&aiMode, "ai-mode", "", "AI mode: off, assist, autopilot (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(newMapCmd(a), newGenerateCmd(a), newRunCmd(a), newTriageCmd(a))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	mode := cfg.AIMode
	if aiMode != "" {
		if mode, err = config.ParseAIMode(aiMode); err != nil {
			return err
		}
	}
	cfg = config.ApplyAIMode(cfg, mode)

	logCfg := cfg.Logger
	if verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	return nil
}
