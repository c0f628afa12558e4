package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultInterpreter = "python3"
	defaultCodeTimeout = 10 * time.Second
)

// CodeRunner executes one generated script and returns its stdout. A crash,
// non-zero exit or timeout is returned as a normal error.
type CodeRunner interface {
	Run(ctx context.Context, code string) (string, error)
}

// PythonRunner executes generated scripts in an isolated interpreter
// subprocess with a wall-clock timeout. Generated code can hang, so the
// timeout bounds every attempt.
type PythonRunner struct {
	Interpreter string
	Timeout     time.Duration
}

// NewPythonRunner creates a runner. Zero values fall back to python3 with a
// 10 second timeout.
func NewPythonRunner(interpreter string, timeout time.Duration) *PythonRunner {
	if interpreter == "" {
		interpreter = defaultInterpreter
	}
	if timeout <= 0 {
		timeout = defaultCodeTimeout
	}
	return &PythonRunner{Interpreter: interpreter, Timeout: timeout}
}

func (r *PythonRunner) Run(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", errors.New("empty script")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Interpreter, "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("script timed out after %s", r.Timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.New(msg)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", errors.New("script produced no output")
	}
	return out, nil
}
