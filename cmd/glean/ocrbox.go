package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gleanhq/glean/internal/config"
	"github.com/gleanhq/glean/internal/home"
	"github.com/gleanhq/glean/internal/ocrbox"
)

var ocrboxCmd = &cobra.Command{
	Use:   "ocrbox",
	Short: "Manage the OCR sidecar container",
	Long: `Manage the OCR sidecar container lifecycle.

The sidecar runs an HTTP OCR server in Docker for use as a remote OCR
provider. Enable the "ocrbox" provider in config to route recognition
through it.

Examples:
  glean ocrbox up      # Start the container
  glean ocrbox stop    # Stop the container
  glean ocrbox status  # Check container status
  glean ocrbox logs    # View container logs`,
}

var ocrboxUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the OCR sidecar container",
	Long: `Start the OCR sidecar container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting ocrbox...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start ocrbox: %w", err)
		}

		fmt.Printf("ocrbox is running at %s\n", mgr.URL())
		return nil
	},
}

var ocrboxStopCmd = &cobra.Command{
	Use:     "stop",
	Aliases: []string{"down"},
	Short:   "Stop the OCR sidecar container",
	Long: `Stop the OCR sidecar container.

Use 'glean ocrbox up' to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping ocrbox...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop ocrbox: %w", err)
		}

		fmt.Println("ocrbox stopped")
		return nil
	},
}

var ocrboxStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show OCR sidecar container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case ocrbox.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())

			if err := mgr.ValidateExisting(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case ocrbox.StatusStopped:
			fmt.Printf("Status: %s (use 'glean ocrbox up' to start)\n", status)
		case ocrbox.StatusNotFound:
			fmt.Printf("Status: %s (use 'glean ocrbox up' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var ocrboxLogsTail string

var ocrboxLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show OCR sidecar container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, ocrboxLogsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var ocrboxRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the OCR sidecar container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing ocrbox container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("ocrbox container removed")
		return nil
	},
}

var ocrboxWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the OCR sidecar to be ready",
	Long: `Wait for the OCR sidecar to be ready to accept requests.

This is useful in scripts to ensure the sidecar is fully started
before running extractions against it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}

		mgr, err := getDockerManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for ocrbox (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("ocrbox not ready: %w", err)
		}

		fmt.Println("ocrbox is ready")
		return nil
	},
}

func init() {
	ocrboxCmd.AddCommand(ocrboxUpCmd)
	ocrboxCmd.AddCommand(ocrboxStopCmd)
	ocrboxCmd.AddCommand(ocrboxStatusCmd)
	ocrboxCmd.AddCommand(ocrboxLogsCmd)
	ocrboxCmd.AddCommand(ocrboxRemoveCmd)
	ocrboxCmd.AddCommand(ocrboxWaitCmd)

	ocrboxLogsCmd.Flags().StringVar(&ocrboxLogsTail, "tail", "100", "Number of lines to show from the end")

	ocrboxWaitCmd.Flags().Duration("timeout", 30*time.Second, "Timeout waiting for ocrbox")

	rootCmd.AddCommand(ocrboxCmd)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// getDockerManager creates a DockerManager with the configured overrides.
func getDockerManager(h *home.Dir) (*ocrbox.DockerManager, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	return ocrbox.NewDockerManager(ocrbox.DockerConfig{
		ContainerName: cfg.Ocrbox.ContainerName,
		HomePath:      h.Path(),
		Image:         cfg.Ocrbox.Image,
		HostPort:      cfg.Ocrbox.Port,
	})
}
