package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wilbur182/themesync/internal/config"
	"github.com/wilbur182/themesync/internal/markdown"
	"github.com/wilbur182/themesync/internal/store"
	"github.com/wilbur182/themesync/internal/theme"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the current theme comes from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		report := statusReport(rt)
		current := rt.state.Theme()
		colour := isTerminal(os.Stdout)
		out := markdown.NewRenderer(logger).Render(report, markdown.StyleFor(current, colour), terminalWidth())
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

// statusReport describes every source of the theme as markdown.
func statusReport(rt *themeRuntime) string {
	var b strings.Builder
	b.WriteString("# themesync\n\n")
	b.WriteString("| Source | Value |\n|---|---|\n")

	fmt.Fprintf(&b, "| Current | **%s** |\n", rt.state.Theme())

	persisted, ok, err := store.LoadTheme(rt.store)
	switch {
	case err != nil:
		fmt.Fprintf(&b, "| Persisted | error: %v |\n", err)
	case ok:
		fmt.Fprintf(&b, "| Persisted | %s |\n", persisted)
	default:
		b.WriteString("| Persisted | none (following system) |\n")
	}
	fmt.Fprintf(&b, "| Store | %s `%s` |\n", cfg.Store.Driver, rt.storePath())

	if rt.detector == nil {
		b.WriteString("| System | detection disabled |\n")
	} else if p, ok := rt.detector.Detect(); ok {
		fmt.Fprintf(&b, "| System | %s |\n", p)
	} else {
		b.WriteString("| System | unknown |\n")
	}

	if rt.session.IsAuthenticated() {
		fmt.Fprintf(&b, "| Signed in | %s |\n", rt.session.Subject())
	} else {
		b.WriteString("| Signed in | no |\n")
	}
	if rt.client == nil {
		b.WriteString("| Backend | not configured |\n")
	} else {
		fmt.Fprintf(&b, "| Backend | `%s` |\n", rt.client.BaseURL())
	}
	return b.String()
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

var formatFlag string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, lexer, err := renderConfig(cfg, formatFlag)
		if err != nil {
			return err
		}
		if isTerminal(os.Stdout) {
			p, perr := theme.Parse(cfg.UI.Default)
			if perr != nil {
				p = theme.Default
			}
			if highlighted, herr := markdown.Highlight(src, lexer, p); herr == nil {
				src = highlighted
			}
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), src)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.ConfigPath()
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	},
}

var configSetBackendCmd = &cobra.Command{
	Use:   "set-backend <url>",
	Short: "Save the preferences service URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.SaveBackendURL(args[0])
	},
}

func init() {
	configShowCmd.Flags().StringVar(&formatFlag, "format", "yaml", "output format: yaml or json")
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetBackendCmd)
}

// renderConfig serializes cfg with secrets masked and returns the chroma
// lexer name for it.
func renderConfig(c *config.Config, format string) (string, string, error) {
	masked := *c
	if masked.Auth.SigningKey != "" {
		masked.Auth.SigningKey = "********"
	}
	if masked.Server.SigningKey != "" {
		masked.Server.SigningKey = "********"
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(displayConfig(&masked), "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("encode config: %w", err)
		}
		return string(data) + "\n", "json", nil
	case "yaml", "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(displayConfig(&masked)); err != nil {
			return "", "", fmt.Errorf("encode config: %w", err)
		}
		_ = enc.Close()
		return buf.String(), "yaml", nil
	}
	return "", "", fmt.Errorf("unknown format %q", format)
}

// displayConfig prints durations the way they are written in the file.
func displayConfig(c *config.Config) map[string]any {
	return map[string]any{
		"store": c.Store,
		"backend": map[string]any{
			"url":     c.Backend.URL,
			"timeout": c.Backend.Timeout.String(),
		},
		"auth": c.Auth,
		"system": map[string]any{
			"disabled":     c.System.Disabled,
			"pollInterval": c.System.PollInterval.String(),
		},
		"server": c.Server,
		"ui":     c.UI,
	}
}
