package cmd

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/queryflow/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the query tools over MCP on stdio",
	Long: `Serve the query tools over the Model Context Protocol on stdin and stdout.

Tools:
  query_data       answer a question in natural language
  distinct_values  list the values of a column

Logs go to stderr.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	return mcpserver.NewServer(a.runner, appVersion, a.logger).ServeStdio()
}
