package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wilbur182/themesync/internal/backend"
)

// envToken supplies the login token when no argument is given.
const envToken = "THEMESYNC_TOKEN"

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Sign in with a bearer token and adopt the saved theme",
	Long: `Stores the token and, when a backend is configured, applies the theme
saved for your account. If the account has no saved theme yet, the current
one is uploaded instead. The token may also come from $THEMESYNC_TOKEN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := os.Getenv(envToken)
		if len(args) == 1 {
			token = args[0]
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("no token given and $%s is empty", envToken)
		}

		rt, err := openRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.session.Login(token); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signed in as %s\n", rt.session.Subject())

		if rt.client == nil {
			return nil
		}
		err = rt.coord.AdoptBackendTheme(cmd.Context())
		switch {
		case err == nil:
			fmt.Fprintf(out, "theme %s adopted from %s\n", rt.state.Theme(), rt.client.BaseURL())
		case errors.Is(err, backend.ErrUnexpectedStatus):
			// Nothing saved remotely yet; seed it with the local choice.
			logger.Debug("login: no remote theme", "err", err)
			if err := rt.session.SyncThemeWithBackend(cmd.Context(), rt.state.Theme()); err != nil {
				return err
			}
			fmt.Fprintf(out, "theme %s uploaded to %s\n", rt.state.Theme(), rt.client.BaseURL())
		default:
			return err
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.session.Logout(); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "signed out")
		return err
	},
}
