package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/lnbridge/internal/control"
	"github.com/vietddude/lnbridge/internal/core/config"
	"github.com/vietddude/lnbridge/internal/logging"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "lnbridge",
	Short: "Lightning node event bridge",
	Long: `lnbridge runs an embedded Lightning node, exposes it over gRPC and
forwards its events to in-process subscribers and an optional AMQP broker.`,
	Run: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node, the API and the event pipeline (default)",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "optional YAML config file, environment variables override it")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logFile := logging.Setup(cfg.Logging, isDebug)
	defer logFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewBridge(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize bridge", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start bridge", "error", err)
		os.Exit(1)
	}

	slog.Info("Bridge started",
		"api", cfg.API.Listen,
		"health_port", cfg.Server.Port,
		"broker", cfg.Broker.Enabled(),
	)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Bridge stopped gracefully")
}
