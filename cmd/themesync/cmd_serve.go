package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wilbur182/themesync/internal/prefserver"
)

var (
	addrFlag string
	ttlFlag  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a development preferences service",
	Long: `Serves GET and PUT /api/user/preferences, keeping preferences in memory.
Requests must carry an HS256 bearer token signed with server.signingKey
(or $THEMESYNC_SIGNING_KEY); use "themesync token" to mint one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if addrFlag != "" {
			addr = addrFlag
		}
		srv, err := prefserver.New(prefserver.Options{
			SigningKey: []byte(cfg.Server.SigningKey),
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("prefserver: listening", "addr", addr)
			return srv.Listen(addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token for the development service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := prefserver.Mint([]byte(cfg.Server.SigningKey), args[0], ttlFlag)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default server.addr)")
	tokenCmd.Flags().DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
}
