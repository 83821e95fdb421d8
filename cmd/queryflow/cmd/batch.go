package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer every question in a file",
	Long: `Answer every question in a file, one per line. Blank lines and lines
starting with # are skipped. Use - to read from stdin.

Each result is printed as one JSON line, in input order. A failed question
does not stop the others; the command fails if any question failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var batchConcurrency int

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0,
		"runs in flight at once (default from config)")
}

// batchLine is one line of batch output.
type batchLine struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	prompts, err := readPrompts(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no questions in %s", args[0])
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = a.cfg.Batch.Concurrency
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, r := range a.runner.RunBatch(ctx, prompts, concurrency) {
		line := batchLine{Index: r.Index, Prompt: r.Prompt}
		if r.Err != nil {
			line.Error = r.Err.Error()
			failed++
		} else {
			line.Result = r.Result
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(prompts))
	}
	return nil
}

func readPrompts(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening questions: %w", err)
		}
		defer f.Close()
		r = f
	}

	var prompts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading questions: %w", err)
	}
	return prompts, nil
}
