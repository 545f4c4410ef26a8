// Package exec runs external probe binaries (ping and friends) with a timeout
// and reports failures as structured tool errors.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/zero-day-ai/reconpipe/toolerr"
)

// Command describes one external process invocation.
type Command struct {
	// Name is the binary to execute (required). It is resolved through PATH.
	Name string

	// Args are the command-line arguments.
	Args []string

	// Timeout bounds the execution. Zero means the parent context decides.
	Timeout time.Duration

	// Stdin is written to the process's standard input when non-empty.
	Stdin []byte
}

// Result holds the captured output of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Success reports whether the process exited with code 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Run executes cmd and waits for it to finish.
//
// A non-zero exit code is not an error: the Result carries the code and the
// caller decides what it means (ping exits 1 when the host does not answer).
// Errors are *toolerr.Error values tagged with the binary name:
// ErrCodeBinaryNotFound, ErrCodeTimeout or ErrCodeExecutionFailed.
//
// Example:
//
//	res, err := exec.Run(ctx, exec.Command{Name: "ping", Args: []string{"-c", "1", host}, Timeout: 3 * time.Second})
//	if err != nil {
//	    return err
//	}
//	reachable := res.Success()
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, toolerr.New("exec", "run", toolerr.ErrCodeInvalidInput, "command name is required")
	}

	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return nil, toolerr.New(cmd.Name, "run", toolerr.ErrCodeBinaryNotFound,
			fmt.Sprintf("binary %q not found in PATH", cmd.Name)).WithCause(toolerr.ErrBinaryNotFound)
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if len(cmd.Stdin) > 0 {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	start := time.Now()
	err = c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, toolerr.New(cmd.Name, "run", toolerr.ErrCodeTimeout,
			fmt.Sprintf("timed out after %v", cmd.Timeout)).WithCause(toolerr.ErrTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return res, toolerr.New(cmd.Name, "run", toolerr.ErrCodeExecutionFailed, "cancelled").
			WithCause(ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, toolerr.New(cmd.Name, "run", toolerr.ErrCodeExecutionFailed, "command execution failed").
		WithCause(err)
}

// LookPath returns the absolute path of a binary in PATH.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("binary %q not found in PATH: %w", name, err)
	}
	return path, nil
}
