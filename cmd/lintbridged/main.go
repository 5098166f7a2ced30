package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codescan-io/lintbridge/internal/config"
	configstore "github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/daemon"
	lbversion "github.com/codescan-io/lintbridge/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "lintbridged",
		Short:         "lintbridge daemon - IDE control server and server notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = lbversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.Flags().String("instance", config.DefaultInstance, "Instance name")
	rootCmd.Flags().String("settings", "", "Path to settings.yaml (defaults to the instance settings)")
	rootCmd.Flags().Bool("no-control-server", false, "Do not start the loopback control server")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	instance, _ := cmd.Flags().GetString("instance")
	settingsPath, _ := cmd.Flags().GetString("settings")
	noControl, _ := cmd.Flags().GetBool("no-control-server")

	if err := setupLogging(instance); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	if daemon.IsRunning(instance) {
		return fmt.Errorf("daemon is already running")
	}

	if _, err := config.EnsureInstanceDirs(instance); err != nil {
		return fmt.Errorf("failed to prepare instance directories: %w", err)
	}

	store, err := configstore.Open(configstore.Options{InstanceName: instance})
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}
	defer store.Close()

	d, err := daemon.New(daemon.Options{
		Store:          store,
		SettingsPath:   config.ExpandPath(settingsPath),
		DisableControl: noControl,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start()
	}()

	paths := config.GetInstancePaths(instance)
	log.Printf("lintbridge daemon started (PID: %d)", os.Getpid())
	log.Printf("Admin socket: %s", paths.Socket)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
		if err := d.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		if err := <-errChan; err != nil {
			log.Printf("Daemon stopped with error: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Printf("Daemon error: %v", err)
			return err
		}
	}

	log.Println("Daemon stopped")
	return nil
}

func setupLogging(instance string) error {
	paths, err := config.EnsureInstanceDirs(instance)
	if err != nil {
		return fmt.Errorf("initialise instance directories: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multi)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	log.Printf("=== lintbridge daemon starting (PID: %d) ===", os.Getpid())
	log.Printf("Log file: %s", logPath)
	return nil
}
