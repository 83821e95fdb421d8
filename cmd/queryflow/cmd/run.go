package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/queryflow/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run <question>",
	Short: "Answer one question",
	Long: `Answer one question against the configured data store.

Examples:
  queryflow run "total revenue by region for 2024"
  queryflow run --max-retries 5 --json "top ten customers by order count"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runMaxRetries int
	runJSON       bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0,
		"retry budget for rejected queries (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false,
		"print the result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.runner.Run(ctx, service.Request{
		Prompt:     strings.Join(args, " "),
		MaxRetries: runMaxRetries,
	})
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), res, runJSON)
}
