package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DavidDeeds/vsn300-pvoutput/config"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/api"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/collector"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/inverter"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/modbus"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/mqtt"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/pvoutput"
	"github.com/DavidDeeds/vsn300-pvoutput/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vsn300-pvoutput",
		Short: "VSN300 inverter telemetry daemon",
		Long:  "Polls an ABB/Power-One inverter via its VSN300 card and forwards production data to PVOutput",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(testCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if verbose || cfg.Debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zapCfg.Build()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the telemetry daemon",
		Long:  "Start the poll loop, dashboard server, and optional MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
				return fmt.Errorf("failed to create state dir: %w", err)
			}

			device := inverter.NewVSN300(modbus.NewClient(
				cfg.Inverter.Host,
				cfg.Inverter.Port,
				cfg.Inverter.UnitID,
				cfg.Inverter.Timeout,
			))

			uploader := pvoutput.NewClient(pvoutput.ClientConfig{
				APIKey:   cfg.PVOutput.APIKey,
				SystemID: cfg.PVOutput.SystemID,
				DryRun:   cfg.PVOutput.DryRun,
				Logger:   logger,
			})

			var db *storage.Database
			var archive collector.Archiver
			if cfg.Database.Enabled {
				db, err = storage.NewDatabase(cfg.Database.Path)
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer db.Close()
				if err := db.Prune(); err != nil {
					logger.Warn("archive prune failed", zap.Error(err))
				}
				archive = db
				logger.Info("readings archive opened", zap.String("path", cfg.Database.Path))
			}

			var publisher collector.Publisher
			pub, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
				Logger:      logger,
			})
			if err != nil {
				logger.Warn("mqtt connection failed", zap.Error(err))
			} else {
				if cfg.MQTT.Enabled {
					logger.Info("mqtt connected", zap.String("broker", cfg.MQTT.Broker))
				}
				publisher = pub
				defer pub.Close()
			}

			coll := collector.NewCollector(collector.Config{
				Device:    device,
				StateDir:  cfg.State.Dir,
				Uploader:  uploader,
				Archive:   archive,
				Publisher: publisher,
				Interval:  cfg.Collector.Interval,
				Enabled:   cfg.Collector.Enabled,
				DryRun:    cfg.PVOutput.DryRun,
				Logger:    logger,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := coll.Start(ctx); err != nil {
					logger.Error("collector error", zap.Error(err))
				}
			}()

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:      cfg.API.Port,
					Collector: coll,
					Database:  db,
					Logger:    logger,
				})
				go func() {
					if err := server.Start(); err != nil {
						logger.Error("API server error", zap.Error(err))
					}
				}()
			}

			logger.Info("vsn300-pvoutput started",
				zap.String("inverter", fmt.Sprintf("%s:%d", cfg.Inverter.Host, cfg.Inverter.Port)),
				zap.Duration("interval", cfg.Collector.Interval),
				zap.Bool("dry_run", cfg.PVOutput.DryRun))

			<-sigChan
			logger.Info("shutting down")
			cancel()
			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Inverter.Timeout)
				defer shutdownCancel()
				if err := server.Stop(shutdownCtx); err != nil {
					logger.Warn("API server shutdown error", zap.Error(err))
				}
			}

			return nil
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read and decode one sample from the inverter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			device := inverter.NewVSN300(modbus.NewClient(
				cfg.Inverter.Host,
				cfg.Inverter.Port,
				cfg.Inverter.UnitID,
				cfg.Inverter.Timeout,
			))

			sample, err := device.ReadSample()
			if err != nil {
				return fmt.Errorf("failed to read sample: %w", err)
			}

			output, _ := json.MarshalIndent(sample, "", "  ")
			fmt.Println(string(output))
			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the Modbus connection to the inverter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Printf("Testing connection to %s:%d...\n", cfg.Inverter.Host, cfg.Inverter.Port)

			device := inverter.NewVSN300(modbus.NewClient(
				cfg.Inverter.Host,
				cfg.Inverter.Port,
				cfg.Inverter.UnitID,
				cfg.Inverter.Timeout,
			))

			sample, err := device.ReadSample()
			if err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}

			fmt.Println("Connection SUCCESS!")
			statusText, _ := inverter.ClassifyStatus(sample.StatusCode, inverter.PlausibleVoltage(sample.ACVoltage), true)
			fmt.Printf("\nCurrent Values:\n")
			fmt.Printf("  Power:           %d W\n", sample.PowerW)
			fmt.Printf("  Lifetime Energy: %.1f kWh\n", sample.EnergyLifetimeWh/1000)
			fmt.Printf("  AC Voltage:      %.1f V\n", sample.ACVoltage)
			fmt.Printf("  Frequency:       %.2f Hz\n", sample.GridFreqHz)
			fmt.Printf("  Temperature:     %.1f °C\n", sample.TempC)
			fmt.Printf("  Status:          %s (code %d)\n", statusText, sample.StatusCode)

			return nil
		},
	}
}
