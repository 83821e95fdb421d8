package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ClaudeCLI implements an eino chat model using the Claude CLI binary.
type ClaudeCLI struct {
	path      string
	model     string
	workdir   string
	timeout   time.Duration
	maxTokens int
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a new Claude CLI model.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:    "claude",
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithModel sets the default model.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithWorkdir sets the working directory for claude commands.
func WithWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// WithTimeout bounds each command.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// WithMaxTokens sets the default output token limit.
func WithMaxTokens(n int) ClaudeOption {
	return func(c *ClaudeCLI) { c.maxTokens = n }
}

// Generate runs the CLI once and returns its output as an assistant message.
func (c *ClaudeCLI) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.buildArgs(input, model.GetCommonOptions(&model.Options{}, opts...))
	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.WaitDelay = time.Second
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("claude cli: %w", ctx.Err())
		}
		errMsg := strings.TrimSpace(stderr.String())
		return nil, &CallError{
			Op:         "claude cli",
			StatusCode: statusForMessage(errMsg),
			Message:    errMsg,
			Err:        err,
		}
	}

	return schema.AssistantMessage(strings.TrimSpace(stdout.String()), nil), nil
}

// Stream runs Generate and yields its message as a single chunk.
func (c *ClaudeCLI) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := c.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// buildArgs constructs CLI arguments from a conversation.
func (c *ClaudeCLI) buildArgs(input []*schema.Message, o *model.Options) []string {
	args := []string{"--print"}

	var system []string
	var prompt strings.Builder
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.User:
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		case schema.Assistant:
			// Claude CLI takes one prompt, so history is inlined.
			if prompt.Len() > 0 {
				prompt.WriteString("\nAssistant: ")
				prompt.WriteString(msg.Content)
				prompt.WriteString("\n\nUser: ")
			}
		}
	}
	if len(system) > 0 {
		args = append(args, "--system-prompt", strings.Join(system, "\n\n"))
	}

	// Model priority: call option > client default
	modelName := c.model
	if o.Model != nil && *o.Model != "" {
		modelName = *o.Model
	}
	if modelName != "" {
		args = append(args, "--model", modelName)
	}

	maxTokens := c.maxTokens
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		maxTokens = *o.MaxTokens
	}
	if maxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(maxTokens))
	}

	if p := strings.TrimSpace(prompt.String()); p != "" {
		args = append(args, "-p", p)
	}

	return args
}

// statusForMessage maps CLI error text to the HTTP status the failure
// should surface as.
func statusForMessage(errMsg string) int {
	errLower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(errLower, "rate limit"),
		strings.Contains(errLower, "overloaded"),
		strings.Contains(errLower, "503"),
		strings.Contains(errLower, "529"):
		return http.StatusServiceUnavailable
	case strings.Contains(errLower, "timeout"):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
