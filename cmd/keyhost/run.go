package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wilbur182/keyhost/internal/fdmonitor"
	"github.com/wilbur182/keyhost/internal/features"
	"github.com/wilbur182/keyhost/internal/keyboard"
	"github.com/wilbur182/keyhost/internal/settings"
	"github.com/wilbur182/keyhost/internal/version"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var fdThreshold int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print flag changes made by other processes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			w, err := ctx.Watch()
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			if w == nil {
				return errors.New("the configured backend has no shared file to watch")
			}
			defer w.Stop()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fds := fdmonitor.New(ctx.Logger)
			if fdThreshold > 0 {
				fds.SetThreshold(fdThreshold)
			}
			out := cmd.OutOrStdout()
			for {
				select {
				case <-runCtx.Done():
					return nil
				case c, ok := <-w.Events():
					if !ok {
						return nil
					}
					values := ctx.Flags.List()
					parts := make([]string, 0, len(values))
					for _, f := range features.ListAll() {
						parts = append(parts, fmt.Sprintf("%s=%t", f.Key, values[f.Key]))
					}
					fmt.Fprintf(out, "%s writer=%s %s\n", c.At.Format(time.RFC3339), c.Writer, strings.Join(parts, " "))
					fds.Check("watch")
				}
			}
		},
	}
	cmd.Flags().IntVar(&fdThreshold, "fd-threshold", fdmonitor.DefaultWarningThreshold, "open file descriptor count that triggers a warning")
	return cmd
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Open the settings screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("settings needs an interactive terminal; use 'keyhost flags' instead")
			}
			ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			w, err := ctx.Watch()
			if err != nil {
				ctx.Logger.Warn("watcher unavailable, changes from the extension need a restart", "err", err)
			}
			if w != nil {
				defer w.Stop()
			}

			ctx.BecameActive()
			model := settings.New(ctx.Flags, ctx.Capability, w)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("running settings: %w", err)
			}
			return nil
		},
	}
}

func newTypeCmd(opts *rootOptions) *cobra.Command {
	var paste bool

	cmd := &cobra.Command{
		Use:   "type [text]",
		Short: "Type text into a keyboard session and print the analysis",
		Long: `Type text into a keyboard session the way the extension would, then print
what the session produced. Autocorrect and haptics follow the shared flags.
Without full access the analysis is reduced to a word count.

Examples:
  keyhost --role extension type "teh quick fox"
  keyhost --role extension type --paste`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if paste {
				clip, err := clipboard.ReadAll()
				if err != nil {
					return fmt.Errorf("reading clipboard: %w", err)
				}
				text += clip
			}
			if text == "" {
				return errors.New("nothing to type: pass text or --paste")
			}

			ctx, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer ctx.Close()

			ctx.Flags.LogCurrentState()
			s := keyboard.NewSession(ctx.Flags, ctx.Capability)
			s.Insert(text)
			a := s.Analyse()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "text: %s\n", s.Text())
			fmt.Fprintf(out, "mode: %s\n", a.Mode)
			fmt.Fprintf(out, "words: %d\n", a.Words)
			if a.Mode == keyboard.ModeFull {
				fmt.Fprintf(out, "sentences: %d\n", a.Sentences)
				if len(a.Repeated) > 0 {
					fmt.Fprintf(out, "repeated: %s\n", strings.Join(a.Repeated, ", "))
				}
			}
			if a.Message != "" {
				fmt.Fprintln(out, a.Message)
			}
			fmt.Fprintf(out, "haptics: %d\n", s.Haptics())
			return nil
		},
	}
	cmd.Flags().BoolVar(&paste, "paste", false, "append the clipboard contents to the typed text")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := version.String()
			if version.IsDevelopment(v) {
				fmt.Fprintf(cmd.OutOrStdout(), "keyhost version %s (development build)\n", v)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keyhost version %s\n", v)
		},
	}
}
