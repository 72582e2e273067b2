package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ashare/api"
)

func newServeCmd(rc *RootConfig) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve recommendations, provider health and the conversation store
over HTTP, with a websocket push of appended events at /api/chat/ws.

Example:
  ashare serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = rc.Config.Server.Addr
			}

			e, release, err := rc.engine("")
			if err != nil {
				return err
			}
			defer release()

			store, err := rc.store()
			if err != nil {
				return err
			}
			defer store.Close()

			srv := api.New(api.Options{
				Addr:        addr,
				Recommender: e,
				Store:       store,
				Health:      rc.providerHealth,
				Logger:      rc.Log,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			rc.Log.Info("shutting down")
			if err := srv.Shutdown(); err != nil && err != context.Canceled {
				return err
			}
			return <-errc
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}
