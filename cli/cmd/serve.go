package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/bundlesize/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bundling worker as an HTTP and WebSocket server",
	Long: `Run the bundlesize server.

Endpoints:
  GET  /ws              worker protocol over WebSocket
  POST /api/v1/bundle   bundle a module and return the result
  GET  /health          health check
  GET  /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server.Version = Version
		return server.Run(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().String("address", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}
