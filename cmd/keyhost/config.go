package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wilbur182/keyhost/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the keyhost config file",
	}

	var (
		force   bool
		backend string
		dir     string
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Long: `Write a config file with the default settings to --config, or to
$KEYHOST_CONFIG or ~/.config/keyhost/config.json when --config is not set.
An existing file is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.ConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", path, err)
			}

			cfg := config.Default()
			if backend != "" {
				cfg.Store.Backend = backend
			}
			if dir != "" {
				cfg.Store.Dir = dir
			}
			// Validate a copy so the file keeps unexpanded paths.
			check := *cfg
			if err := check.Validate(); err != nil {
				return err
			}

			var err error
			if opts.configPath == "" {
				err = config.Save(cfg)
			} else {
				err = config.SaveTo(path, cfg)
			}
			if err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	initCmd.Flags().StringVar(&backend, "backend", "", "store backend: file, sqlite or memory")
	initCmd.Flags().StringVar(&dir, "dir", "", "app group container directory")

	cmd.AddCommand(initCmd)
	return cmd
}
