package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/wilbur182/themesync/internal/config"
)

// Version is set at build time via ldflags
var Version = ""

var (
	configPath string
	debugFlag  bool

	logger *slog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "themesync",
	Short: "Keep one light/dark theme in sync across processes and devices",
	Long: `themesync holds a single light/dark theme preference.

The preference is persisted locally, followed by every running themesync
process, seeded from the operating system until you choose, and pushed to a
preferences service when you are signed in.

Run without arguments to open the interactive switcher.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelInfo
		if debugFlag {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)

		c, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	RunE: runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "themesync version %s\n", effectiveVersion(Version))
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.Version = effectiveVersion(Version)

	rootCmd.AddCommand(
		getCmd,
		setCmd,
		toggleCmd,
		watchCmd,
		statusCmd,
		configCmd,
		loginCmd,
		logoutCmd,
		serveCmd,
		tokenCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// effectiveVersion returns the version string, with fallback to build info.
func effectiveVersion(v string) string {
	if v != "" {
		return v
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	var revision string
	var dirty bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}

	if revision != "" {
		ver := "devel+" + revision
		if len(ver) > 20 {
			ver = ver[:20]
		}
		if dirty {
			ver += "+dirty"
		}
		return ver
	}
	return "devel"
}
