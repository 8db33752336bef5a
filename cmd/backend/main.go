package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxcompute/schedulerbackend/pkg/backend"
	"github.com/fluxcompute/schedulerbackend/pkg/clusterscheduler"
	"github.com/fluxcompute/schedulerbackend/pkg/config"
	"github.com/fluxcompute/schedulerbackend/pkg/log"
	"github.com/fluxcompute/schedulerbackend/pkg/metrics"
	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "schedulerbackend",
	Short:   "Standalone cluster scheduler backend",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("schedulerbackend %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("listen", "0.0.0.0:7077", "gRPC listen address for executor connections")
	rootCmd.Flags().String("admin.listen", "127.0.0.1:9090", "Admin HTTP listen address (/metrics, /health, /stats)")
	rootCmd.Flags().String("prefix", config.DefaultPrefix, "Configuration key prefix forwarded to executors")
	rootCmd.Flags().String("config", "", "Path to a YAML configuration file")
	rootCmd.Flags().String("env-file", "", "Path to an optional .env file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func run(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	prefix, _ := cmd.Flags().GetString("prefix")

	cfg, err := config.Load(viper.New(), cmd, prefix, configFile, envFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	metrics.SetVersion(Version)

	// The reference cluster scheduler launches one echo task on every
	// offer with at least one core, enough to demonstrate the backend's register
	// / offer / launch / status-update cycle end to end without a real
	// placement policy.
	scheduler := clusterscheduler.NewReference()
	b := backend.New(cfg, scheduler)
	scheduler.LaunchFunc = func(offer wire.WorkerOffer) {
		if offer.Cores <= 0 {
			return
		}
		b.LaunchTask(wire.TaskDescription{
			TaskID:     uuid.NewString(),
			ExecutorID: offer.ExecutorID,
			Payload:    []byte("echo"),
		})
	}

	if err := b.Start(); err != nil {
		return fmt.Errorf("starting scheduler backend: %w", err)
	}

	log.Logger.Info().Str("listen", cfg.ListenAddress).Msg("schedulerbackend ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	return b.Stop()
}
