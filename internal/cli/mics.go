package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewListMicsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list-mics",
		Short: "List available microphone devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Scanning for audio devices...")
			devices, err := deps.ListDevices(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list microphones: %w", err)
			}
			if len(devices) == 0 {
				fmt.Fprintln(out, "No audio devices found.")
				return nil
			}

			const rule = "------------------------"
			fmt.Fprintln(out, "\nAvailable Audio Devices:")
			fmt.Fprintln(out, rule)
			for _, d := range devices {
				fmt.Fprintf(out, "ID:   %s\n", d.Name)
				if d.Description != "" {
					fmt.Fprintf(out, "Desc: %s\n", d.Description)
				}
				fmt.Fprintln(out, rule)
			}
			fmt.Fprintln(out, "\nTo use a device, run:")
			fmt.Fprintln(out, "  voice-cli config set behavior.audio_device YOUR_DEVICE_ID")
			return nil
		},
	}
}
