package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/updraft-ota/updraft/internal/bootstrap"
	"github.com/updraft-ota/updraft/internal/config"
	"github.com/updraft-ota/updraft/internal/controller"
	"github.com/updraft-ota/updraft/internal/devserver"
	"github.com/updraft-ota/updraft/internal/eventbus"
	"github.com/updraft-ota/updraft/internal/observability"
	"github.com/updraft-ota/updraft/internal/runtime"
	updraftversion "github.com/updraft-ota/updraft/internal/version"
)

var (
	flagBaseDir   string
	flagOverrides string
	flagDev       bool
	flagDevAddr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "updraftd",
		Short:         "Updraft host shell - bootstraps the OTA update controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runShell,
	}
	rootCmd.Version = updraftversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.Flags().StringVar(&flagBaseDir, "base-dir", "", "updates storage root (defaults to ~/.updraft/updates)")
	rootCmd.Flags().StringVar(&flagOverrides, "overrides", "", "path to a JSON file with configuration overrides")
	rootCmd.Flags().BoolVar(&flagDev, "dev", false, "initialize in dev-launcher mode and serve diagnostics")
	rootCmd.Flags().StringVar(&flagDevAddr, "dev-addr", "127.0.0.1:8321", "diagnostics listen address in dev mode")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	paths, err := setupLogging(flagBaseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	overrides, err := loadOverrides(flagOverrides)
	if err != nil {
		return err
	}

	counter := observability.NewEventCounter()
	bus := eventbus.New(eventbus.WithObserver(counter))
	defer bus.Shutdown()

	opts := controller.Options{
		Overrides: overrides,
		BaseDir:   flagBaseDir,
		Bus:       bus,
	}

	var ctrl controller.Controller
	if flagDev {
		ctrl = controller.InitializeDevLauncher(opts)
	} else {
		ctrl = controller.InitializeOnce(opts)
	}

	ctrl.Start()

	constants := ctrl.ConstantsForModule()
	log.Printf("Updraft shell started (PID: %d, state: %s)", os.Getpid(), ctrl.State())
	if !constants.IsEnabled {
		log.Printf("Updates are inactive (missingRuntimeVersion=%v, cause=%q)",
			constants.IsMissingRuntimeVersion, constants.DisabledCause)
	}

	pidFile := filepath.Join(paths.Root, "updraftd.pid")
	if pid, err := runtime.CheckPIDFile(pidFile); err != nil {
		log.Printf("Could not inspect pid file: %v", err)
	} else if pid != 0 {
		return fmt.Errorf("another shell is already running (pid %d)", pid)
	}
	if err := runtime.WritePIDFile(pidFile, os.Getpid()); err != nil {
		log.Printf("Could not write pid file: %v", err)
	} else {
		defer runtime.RemovePIDFile(pidFile)
	}

	host := runtime.NewServiceHost()

	var diag *devserver.Server
	if flagDev {
		exporter := observability.NewPrometheusExporter(bus, counter)
		exporter.WithController(func() observability.ControllerSnapshot {
			return observability.ControllerSnapshot{
				State:   ctrl.State().String(),
				Started: ctrl.IsStarted(),
			}
		})

		err := host.Register("devserver", func(ctx context.Context) (runtime.Service, error) {
			srv, err := devserver.New(devserver.Options{
				Controller: ctrl,
				Bus:        bus,
				Metrics:    exporter,
				WatchDir:   constants.UpdatesDirectory,
				Addr:       flagDevAddr,
			})
			if err != nil {
				return nil, err
			}
			diag = srv
			return srv, nil
		})
		if err != nil {
			return fmt.Errorf("register diagnostics server: %w", err)
		}
	}

	if err := host.Start(context.Background()); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	if diag != nil {
		log.Printf("Diagnostics: http://%s/v1/status", diag.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
	case err := <-host.Errors():
		log.Printf("Service failure: %v, shutting down...", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := host.Stop(ctx); err != nil {
		log.Printf("Error stopping services: %v", err)
	}

	log.Println("Shell stopped")
	return nil
}

// loadOverrides resolves the host configuration override mapping. An explicit
// file wins and is remembered for subsequent runs; otherwise the mapping
// saved by a previous run is used, and a missing file yields an empty mapping.
func loadOverrides(path string) (config.Overrides, error) {
	if path == "" {
		saved, err := bootstrap.Load("")
		if err != nil {
			return nil, err
		}
		if saved == nil {
			return config.Overrides{}, nil
		}
		log.Printf("Using overrides saved by a previous run")
		return saved, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides file: %w", err)
	}

	var overrides config.Overrides
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("decode overrides file: %w", err)
	}

	if err := bootstrap.Save("", overrides); err != nil {
		log.Printf("Could not remember overrides: %v", err)
	}
	return overrides, nil
}

func setupLogging(baseDir string) (config.StoragePaths, error) {
	paths, err := config.EnsureStorageDirs(baseDir)
	if err != nil {
		return paths, fmt.Errorf("initialise storage directories: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "shell.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return paths, fmt.Errorf("open log file: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multi)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	log.Printf("=== Updraft Shell Starting (PID: %d) ===", os.Getpid())
	log.Printf("Log file: %s", logPath)
	return paths, nil
}
