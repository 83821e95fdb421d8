package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/queryflow/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  GET  /health
  POST /api/v1/query                      {"user_query": "...", "max_retries": 3}
  GET  /api/v1/runs/{run_id}/checkpoints

Examples:
  queryflow serve
  queryflow serve --addr 0.0.0.0:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	srv := api.NewServer(a.runner,
		api.WithLogger(a.logger),
		api.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		api.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	)
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}
