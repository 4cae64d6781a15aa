package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wilbur182/keyhost/internal/features"
)

func newFlagsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Read and write feature flags",
		Long: `Read and write the feature flags shared by the extension and the app.

Subcommands:
  list     Show every flag with its value and default
  get      Print one flag's value
  set      Write one flag
  default  Print one flag's compiled-in default
  reset    Restore every flag to its default`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show every flag with its value and default",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer ctx.Close()

				values := ctx.Flags.List()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tVALUE\tDEFAULT\tDESCRIPTION")
				for _, f := range features.ListAll() {
					fmt.Fprintf(tw, "%s\t%t\t%t\t%s\n", f.Key, values[f.Key], ctx.Flags.Default(f.Key), f.Description)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one flag's value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := parseKey(args[0])
				if err != nil {
					return err
				}
				ctx, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer ctx.Close()

				fmt.Fprintln(cmd.OutOrStdout(), ctx.Flags.IsEnabled(f.Key))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <true|false>",
			Short: "Write one flag",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := parseKey(args[0])
				if err != nil {
					return err
				}
				enabled, err := strconv.ParseBool(args[1])
				if err != nil {
					return fmt.Errorf("invalid value %q: want true or false", args[1])
				}
				ctx, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer ctx.Close()

				ctx.Flags.SetEnabled(f.Key, enabled)
				ctx.Flags.LogCurrentState()
				return nil
			},
		},
		&cobra.Command{
			Use:   "default <key>",
			Short: "Print one flag's compiled-in default",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := parseKey(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.Default)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore every flag to its default",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer ctx.Close()

				ctx.Flags.ResetToDefaults()
				ctx.Flags.LogCurrentState()
				return nil
			},
		},
	)
	return cmd
}

func parseKey(s string) (features.Feature, error) {
	f, ok := features.Lookup(features.Key(s))
	if !ok {
		var known []string
		for _, f := range features.ListAll() {
			known = append(known, string(f.Key))
		}
		return features.Feature{}, fmt.Errorf("unknown flag %q (known: %v)", s, known)
	}
	return f, nil
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every value from the shared store",
		Long: `Remove every value from the shared store. Flags read as their defaults
afterwards. The full access grant is not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			ctx.Store.ClearAllSharedData()
			ctx.Logger.Info("shared data cleared")
			return nil
		},
	}
}
