package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/interfaces/http/rest"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree over a JSON HTTP API",
		Long: `Starts the HTTP API for one tree. Runs until interrupted.

Examples:
  kin serve
  kin serve --addr :9090 --tree lee`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")

	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		cfg := d.Config.Server
		if addr != "" {
			cfg.Addr = addr
		}

		router := rest.NewRouter(
			d.PersonHandler,
			d.RelationshipHandler,
			d.SuggestionHandler,
			cfg,
			d.Logger,
		)

		if err := rest.Serve(ctx, cfg, router.Setup(), d.Logger); err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
}
