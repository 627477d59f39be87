package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/startup-optimizer/internal/audit"
	"github.com/breeze-rmm/startup-optimizer/internal/config"
	"github.com/breeze-rmm/startup-optimizer/internal/engine"
	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

var (
	version   = "0.1.0"
	cfgFile   string
	output    string
	logLevel  string
	logFormat string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "startup-optimizer",
	Short: "Analyze and speed up system startup",
	Long: `startup-optimizer inventories startup programs, services and boot phases,
estimates the total startup time, and disables, delays or reconfigures
the entries that slow it down.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "startup-optimizer v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is startup-optimizer.yaml in the user config dir)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log_format (text, json)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is the state shared by the scan, recommend and optimize commands.
type session struct {
	cfg     *config.Config
	engine  *engine.Engine
	audit   *audit.Logger
	logFile *logging.FileWriter
}

// newSession loads and validates the config, configures logging and builds
// an engine for the running platform.
func newSession() (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	result := cfg.ValidateTiered()
	var logFile *logging.FileWriter
	if cfg.LogFile != "" {
		logFile, err = logging.OpenFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			return nil, err
		}
		logging.Init(cfg.LogFormat, cfg.LogLevel, logging.Tee(os.Stderr, logFile))
	} else {
		logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	}
	for _, w := range result.Warnings {
		log.Warn("config warning", logging.KeyError, w)
	}
	if err := checkFormat(output); err != nil || result.HasFatals() {
		if logFile != nil {
			logFile.Close()
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}

	auditLog, err := audit.NewLogger(cfg)
	if err != nil {
		// Continue without an audit trail.
		log.Warn("audit log unavailable", logging.KeyError, err)
	}

	return &session{
		cfg:     cfg,
		audit:   auditLog,
		logFile: logFile,
		engine:  engine.New(engine.Options{Config: cfg, Audit: auditLog}),
	}, nil
}

func (s *session) Close() {
	if err := s.audit.Close(); err != nil {
		log.Warn("closing audit log", logging.KeyError, err)
	}
	if n := s.audit.DroppedCount(); n > 0 {
		log.Warn("audit entries dropped", "count", n)
	}
	if s.logFile != nil {
		logging.Init(s.cfg.LogFormat, s.cfg.LogLevel, os.Stderr)
		s.logFile.Close()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
