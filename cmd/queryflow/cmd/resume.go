package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted run from its latest checkpoint",
	Long: `Resume an interrupted run from its latest checkpoint.

Requires checkpoint.path to be set.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <run-id>",
	Short: "List the checkpoints of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpoints,
}

var resumeJSON bool

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(checkpointsCmd)

	resumeCmd.Flags().BoolVar(&resumeJSON, "json", false,
		"print the result as JSON")
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.runner.Resume(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resuming run %s: %w", args[0], err)
	}
	return writeResult(cmd.OutOrStdout(), res, resumeJSON)
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	infos, err := a.runner.Checkpoints(ctx, args[0])
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return fmt.Errorf("no checkpoints for run %s", args[0])
	}

	out := cmd.OutOrStdout()
	for _, info := range infos {
		fmt.Fprintf(out, "%3d  %-10s  %s  %d bytes\n",
			info.Sequence, info.Step, info.Timestamp.Format("2006-01-02 15:04:05"), info.Size)
	}
	return nil
}
