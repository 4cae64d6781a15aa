package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wilbur182/keyhost/internal/config"
	"github.com/wilbur182/keyhost/internal/host"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	debug      bool
	role       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "keyhost",
		Short: "Shared feature flags for a keyboard extension and its host app",
		Long: `keyhost runs either side of a keyboard app group: the keyboard
extension or the host app. Both sides share feature flags through a store in
the group container. Each side checks full access for itself.

Use "keyhost [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: $KEYHOST_CONFIG or ~/.config/keyhost/config.json)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.role, "role", string(host.RoleApp), "process role: app or extension")

	cmd.AddCommand(
		newFlagsCmd(opts),
		newClearCmd(opts),
		newAccessCmd(opts),
		newWatchCmd(opts),
		newSettingsCmd(opts),
		newTypeCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFrom(o.configPath)
	}
	return config.Load()
}

func (o *rootOptions) logger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	if o.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// open builds the process context. Callers must Close it.
func (o *rootOptions) open(cmd *cobra.Command) (*host.Context, error) {
	role, err := host.ParseRole(o.role)
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	ctx, err := host.New(cfg, role, nil, o.logger(cmd.ErrOrStderr(), cfg))
	if err != nil {
		return nil, err
	}
	ctx.Logger.Debug("context ready", "backend", cfg.Store.Backend, "dir", cfg.Store.Dir)
	return ctx, nil
}
