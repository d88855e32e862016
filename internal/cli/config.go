package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voicecli/internal/config"
)

func NewConfigCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the effective configuration with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(deps.ConfigPath)
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(config.Masked(cfg))
				if err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting by dotted key (e.g. behavior.hotkey)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(deps.ConfigPath)
				if err != nil {
					return err
				}
				v, err := config.Get(config.Masked(cfg), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting by dotted key (e.g. behavior.toggle_mode false)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				raw, err := config.LoadRaw(deps.ConfigPath)
				if err != nil {
					return err
				}
				updated, err := config.Set(raw, args[0], args[1])
				if err != nil {
					return err
				}
				if err := config.Save(deps.ConfigPath, updated); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), deps.ConfigPath)
			},
		},
	)
	return cmd
}
