package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicecli/internal/systemd"
)

func NewInstallCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the systemd user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := deps.Installer()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Installing systemd user service...")
			if err := inst.Install(cmd.Context()); err != nil {
				return fmt.Errorf("installation failed: %w", err)
			}
			fmt.Fprintf(out, "Service installed at %s and started.\n", inst.UnitPath())
			return nil
		},
	}
}

func NewUninstallCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := deps.Installer()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Stopping and disabling service...")
			err = inst.Uninstall(cmd.Context())
			if errors.Is(err, systemd.ErrNotInstalled) {
				fmt.Fprintln(out, "Service file not found.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to remove service: %w", err)
			}
			fmt.Fprintln(out, "Service removed successfully.")
			return nil
		},
	}
}
