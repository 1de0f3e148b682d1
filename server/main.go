package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"hovertrail.io/engine"
	"hovertrail.io/engine/protocol"
	"hovertrail.io/engine/sim"
)

var (
	envFile  string
	logLevel string
	logJSON  bool

	addr      string
	grpcAddr  string
	staticDir string
	bots      int
	seed      int64
	respawn   string
	tickRate  int

	schemaOut string
)

var rootCmd = &cobra.Command{
	Use:           "hovertrail",
	Short:         "Hovertrail multiplayer arena server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		cfg, err := engine.LoadConfig(files...)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := applyFlags(cmd, &cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return engine.NewServer(cfg, logger).Run(ctx)
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the control messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := protocol.SchemaJSON()
		if err != nil {
			return err
		}
		if schemaOut == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return writeSchema(schemaOut, data)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), engine.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON instead of text")

	f := serveCmd.Flags()
	f.StringVar(&envFile, "env-file", "", "Load settings from this .env file (default: ./.env if present)")
	f.StringVar(&addr, "addr", "", "HTTP/WebSocket listen address")
	f.StringVar(&grpcAddr, "grpc-addr", "", "gRPC health listen address (\"off\" disables it)")
	f.StringVar(&staticDir, "static", "", "Serve a client from this directory at /")
	f.IntVar(&bots, "bots", 0, "Number of bots")
	f.Int64Var(&seed, "seed", 0, "Simulation seed")
	f.StringVar(&respawn, "respawn", "", "Respawn policy (immediate, manual)")
	f.IntVar(&tickRate, "tick-rate", 0, "Simulation ticks per second")

	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")

	rootCmd.AddCommand(serveCmd, schemaCmd, versionCmd)
}

// applyFlags overrides environment settings with flags given explicitly on
// the command line.
func applyFlags(cmd *cobra.Command, cfg *engine.Config) error {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = addr
	}
	if f.Changed("grpc-addr") {
		cfg.GRPCAddr = grpcAddr
		if grpcAddr == "off" {
			cfg.GRPCAddr = ""
		}
	}
	if f.Changed("static") {
		abs, err := filepath.Abs(staticDir)
		if err != nil {
			return fmt.Errorf("static: %w", err)
		}
		cfg.StaticDir = abs
	}
	if f.Changed("bots") {
		cfg.BotCount = bots
	}
	if f.Changed("seed") {
		cfg.Sim.Seed = seed
	}
	if f.Changed("respawn") {
		p, err := sim.ParseRespawnPolicy(respawn)
		if err != nil {
			return err
		}
		cfg.Sim.Respawn = p
	}
	if f.Changed("tick-rate") {
		cfg.Sim.TickRate = tickRate
	}
	return nil
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func writeSchema(outPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "hovertrail:", err)
		os.Exit(1)
	}
}
