package system

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner records commands and serves canned responses, for tests.
type FakeRunner struct {
	mu sync.Mutex

	// Outputs maps a command prefix (joined with spaces) to the output
	// returned by Output. The longest matching prefix wins.
	Outputs map[string]string

	// Errors maps a command prefix to an error returned by Run/Output.
	Errors map[string]error

	// Missing lists binary names LookPath reports as absent.
	Missing []string

	calls []string
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.record(name, args)
	if err := f.match(f.errorsMap(), name, args); err != nil {
		return err
	}
	return nil
}

// Output implements Runner.
func (f *FakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	f.record(name, args)
	if err := f.match(f.errorsMap(), name, args); err != nil {
		return "", err
	}

	cmdline := commandLine(name, args)
	var best string
	var bestLen int
	f.mu.Lock()
	for prefix, out := range f.Outputs {
		if strings.HasPrefix(cmdline, prefix) && len(prefix) > bestLen {
			best, bestLen = out, len(prefix)
		}
	}
	f.mu.Unlock()
	return best, nil
}

// LookPath implements Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	for _, m := range f.Missing {
		if m == name {
			return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
		}
	}
	return "/usr/bin/" + name, nil
}

// Calls returns the recorded command lines in invocation order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CalledWith reports whether any recorded command line starts with prefix.
func (f *FakeRunner) CalledWith(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *FakeRunner) record(name string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, commandLine(name, args))
}

func (f *FakeRunner) errorsMap() map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Errors
}

func (f *FakeRunner) match(errs map[string]error, name string, args []string) error {
	cmdline := commandLine(name, args)
	for prefix, err := range errs {
		if strings.HasPrefix(cmdline, prefix) {
			return err
		}
	}
	return nil
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
