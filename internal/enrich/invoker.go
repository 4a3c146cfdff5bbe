package enrich

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
)

// Invoker performs the external enrichment call: prompt in, reply out. The
// transport behind it is opaque to the orchestrator.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// CommandInvoker shells out to a configured command (for example
// `claude -p`), writing the prompt to stdin and reading the reply from
// stdout. A non-zero exit, a dead context, or an exceeded timeout all
// surface as apperr.ErrCall.
type CommandInvoker struct {
	Argv    []string
	Timeout time.Duration
}

func (c *CommandInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	if len(c.Argv) == 0 {
		return "", fmt.Errorf("enrich: no enrichment command configured: %w", apperr.ErrCall)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("enrich: invoke %s: %v: %s: %w",
			c.Argv[0], err, firstLine(stderr.String()), apperr.ErrCall)
	}
	return stdout.String(), nil
}

// firstLine trims stderr down to something loggable.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
