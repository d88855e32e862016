package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicecli/internal/config"
)

func NewBoostCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boost",
		Short: "Manage boost words (custom vocabulary)",
	}

	// update loads the raw file, lets fn edit the word list and saves the
	// result. fn returns false when nothing changed.
	update := func(fn func(words []string) ([]string, bool)) (before, after []string, err error) {
		cfg, err := config.LoadRaw(deps.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		before = cfg.Transcription.BoostWords
		words, changed := fn(slices.Clone(before))
		if !changed {
			return before, before, nil
		}
		cfg.Transcription.BoostWords = words
		if err := config.Save(deps.ConfigPath, cfg); err != nil {
			return nil, nil, err
		}
		return before, words, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all boost words",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadRaw(deps.ConfigPath)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				words := cfg.Transcription.BoostWords
				if len(words) == 0 {
					fmt.Fprintln(out, "No boost words configured.")
					return nil
				}
				fmt.Fprintf(out, "Boost Words (%d/%d):\n", len(words), config.MaxBoostWords)
				fmt.Fprintln(out, "------------------------")
				for _, w := range words {
					fmt.Fprintf(out, "- %s\n", w)
				}
				fmt.Fprintln(out, "------------------------")
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <words...>",
			Short: "Add one or more boost words",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				before, after, err := update(func(words []string) ([]string, bool) {
					n := len(words)
					for _, w := range args {
						if !slices.Contains(words, w) {
							words = append(words, w)
						}
					}
					return words, len(words) > n
				})
				if err != nil {
					return fmt.Errorf("failed to add boost words: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(after) == len(before) {
					fmt.Fprintln(out, "All words already exist in the list.")
					return nil
				}
				fmt.Fprintf(out, "Added %d words.\n", len(after)-len(before))
				fmt.Fprintf(out, "Total: %d/%d\n", len(after), config.MaxBoostWords)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <words...>",
			Short: "Remove one or more boost words",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				before, after, err := update(func(words []string) ([]string, bool) {
					n := len(words)
					words = slices.DeleteFunc(words, func(w string) bool { return slices.Contains(args, w) })
					return words, len(words) < n
				})
				if err != nil {
					return fmt.Errorf("failed to remove boost words: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(after) == len(before) {
					fmt.Fprintln(out, "No matching words found to remove.")
					return nil
				}
				fmt.Fprintf(out, "Removed %d words.\n", len(before)-len(after))
				fmt.Fprintf(out, "Total: %d/%d\n", len(after), config.MaxBoostWords)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove all boost words",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				before, _, err := update(func(words []string) ([]string, bool) {
					return []string{}, len(words) > 0
				})
				if err != nil {
					return fmt.Errorf("failed to clear boost words: %w", err)
				}
				if len(before) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "List is already empty.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All boost words cleared.")
				return nil
			},
		},
	)
	return cmd
}
