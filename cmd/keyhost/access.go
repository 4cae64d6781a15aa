package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilbur182/keyhost/internal/capability"
	"github.com/wilbur182/keyhost/internal/keyboard"
)

func newAccessCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Show whether full access is granted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			out := cmd.OutOrStdout()
			granted := ctx.Capability.HasFullAccess()
			if granted {
				fmt.Fprintln(out, "granted")
			} else {
				fmt.Fprintln(out, "degraded")
				fmt.Fprintln(out, keyboard.FullAccessMessage)
			}

			st := ctx.Capability.State()
			fmt.Fprintf(out, "observed: %s\n", st.ObservedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "grant file: %s\n", ctx.Config.Capability.GrantFile)
			ctx.Logger.Debug("capability cache",
				"queries", ctx.Capability.Queries(), "provider_calls", ctx.Capability.ProviderCalls())
			fmt.Fprintf(out, "provider calls: %d\n", ctx.Capability.ProviderCalls())
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "grant",
			Short: "Grant full access",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				return capability.Grant(cfg.Capability.GrantFile)
			},
		},
		&cobra.Command{
			Use:   "revoke",
			Short: "Revoke full access",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				return capability.Revoke(cfg.Capability.GrantFile)
			},
		},
	)
	return cmd
}
