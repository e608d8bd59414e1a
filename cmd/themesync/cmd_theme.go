package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wilbur182/themesync/internal/state"
	"github.com/wilbur182/themesync/internal/theme"
	"github.com/wilbur182/themesync/internal/ui"
)

var plainFlag bool

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current theme",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		_, err = fmt.Fprintln(cmd.OutOrStdout(), rt.state.Theme())
		return err
	},
}

var setCmd = &cobra.Command{
	Use:       "set <light|dark>",
	Short:     "Set the theme",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(theme.Light), string(theme.Dark)},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := theme.Parse(args[0])
		if err != nil {
			return err
		}
		rt, err := openRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.state.SetTheme(p); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rt.state.Theme())
		return err
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Switch between light and dark",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		_, err = fmt.Fprintln(cmd.OutOrStdout(), rt.state.ToggleTheme())
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the theme interactively, or print every change",
	Long: `Opens the interactive switcher when stdout is a terminal. Otherwise,
or with --plain, prints one line per change until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&plainFlag, "plain", false, "print changes instead of opening the switcher")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !plainFlag && isTerminal(os.Stdout) {
		return ui.Run(rt.state, rt.styles, tea.WithAltScreen())
	}
	return printChanges(ctx, cmd, rt.state)
}

// printChanges writes the current theme and then one line per change.
func printChanges(ctx context.Context, cmd *cobra.Command, st *state.State) error {
	out := cmd.OutOrStdout()
	changes := make(chan state.Change, 16)
	unsubscribe := st.Subscribe(func(c state.Change) {
		if !c.Changed {
			return
		}
		select {
		case changes <- c:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	if _, err := fmt.Fprintf(out, "theme=%s origin=%s\n", st.Theme(), state.OriginSeed); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			if _, err := fmt.Fprintf(out, "theme=%s previous=%s origin=%s\n", c.Current, c.Previous, c.Origin); err != nil {
				return err
			}
		}
	}
}
