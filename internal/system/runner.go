// Package system abstracts process execution so bootstrap components can be
// exercised against a fake runner in tests.
package system

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes host commands. All bootstrap components take a Runner
// instead of calling os/exec directly.
type Runner interface {
	// Run executes a command, streaming its combined output to the
	// runner's writers. Used for long-running commands whose diagnostic
	// output the operator should see live (kubeadm init, kubeadm join).
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its combined output.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports the path of a binary, or an error if absent.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands on the host via os/exec.
type ExecRunner struct {
	// Stdout and Stderr receive streamed command output; both default to
	// the process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a Runner streaming to the current process's
// stdout/stderr.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	// #nosec G204 - command names and arguments come from internal component code, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.stdout()
	cmd.Stderr = r.stderr()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204 - command names and arguments come from internal component code, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("%s %s: %w (output: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *ExecRunner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *ExecRunner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}
