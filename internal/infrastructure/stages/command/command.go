// Package command runs a pipeline stage as an external process: the document
// text goes to stdin and the answer is read from stdout.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	waitDelay     = 2 * time.Second
	maxStderrEcho = 512
)

var (
	ErrBadClassifierOutput = errors.New(`classifier output must be "1\n" or "0\n"`)
	ErrBadStageOutput      = errors.New("stage output must be one JSON object")
)

type runner struct {
	argv   []string
	logger *slog.Logger
}

func newRunner(commandLine string, logger *slog.Logger) (runner, error) {
	argv := strings.Fields(commandLine)
	if len(argv) == 0 {
		return runner{}, errors.New("empty command")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return runner{argv: argv, logger: logger}, nil
}

func (r runner) run(ctx context.Context, text string) ([]byte, error) {
	r.logger.Debug("executing stage command", "command", r.argv[0])

	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", r.argv[0], ctxErr)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", r.argv[0], err, tail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrEcho {
		s = "..." + s[len(s)-maxStderrEcho:]
	}
	return s
}

// Stage runs a command that prints one JSON object.
type Stage struct {
	runner
}

func NewStage(commandLine string, logger *slog.Logger) (*Stage, error) {
	r, err := newRunner(commandLine, logger)
	if err != nil {
		return nil, err
	}
	return &Stage{runner: r}, nil
}

func (s *Stage) Invoke(ctx context.Context, text string) (json.RawMessage, error) {
	out, err := s.run(ctx, text)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrBadStageOutput
	}
	return json.RawMessage(trimmed), nil
}

// Classifier runs a command that prints exactly "1\n" (legal) or "0\n".
type Classifier struct {
	runner
}

func NewClassifier(commandLine string, logger *slog.Logger) (*Classifier, error) {
	r, err := newRunner(commandLine, logger)
	if err != nil {
		return nil, err
	}
	return &Classifier{runner: r}, nil
}

func (c *Classifier) Classify(ctx context.Context, text string) (bool, error) {
	out, err := c.run(ctx, text)
	if err != nil {
		return false, err
	}
	switch string(out) {
	case "1\n":
		return true, nil
	case "0\n":
		return false, nil
	default:
		return false, fmt.Errorf("%w, got %q", ErrBadClassifierOutput, out)
	}
}
