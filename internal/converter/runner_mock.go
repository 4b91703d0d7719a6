package converter

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
)

// MockCommandRunner implements CommandRunner for testing.
// Records all command invocations and returns pre-configured results.
type MockCommandRunner struct {
	mu sync.Mutex

	// commands maps "name arg1 arg2 ..." to MockResult.
	commands map[string]MockResult

	// binaries maps names to resolved paths for LookPath.
	binaries map[string]string

	// defaultError is returned for unexpected commands.
	defaultError error

	// Calls records all command invocations in order.
	Calls []CommandCall

	// OnRun runs before a result is returned, e.g. to create the files a
	// real converter would write.
	OnRun func(name string, args []string)
}

// MockResult holds the pre-configured result and error for a command.
type MockResult struct {
	Result Result
	Err    error
}

// CommandCall records a single command invocation.
type CommandCall struct {
	Name string
	Args []string
	Key  string // "name arg1 arg2 ..."
}

// NewMockCommandRunner creates a mock that fails on unexpected commands.
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{
		commands:     make(map[string]MockResult),
		binaries:     make(map[string]string),
		defaultError: fmt.Errorf("unexpected command"),
	}
}

// Binary registers a binary for LookPath.
func (m *MockCommandRunner) Binary(name, path string) *MockCommandRunner {
	m.binaries[name] = path
	return m
}

// Expect registers a command and its expected result.
// cmd format: "name arg1 arg2 ..." (space-separated).
func (m *MockCommandRunner) Expect(cmd string, result Result, err error) *MockCommandRunner {
	m.commands[cmd] = MockResult{Result: result, Err: err}
	return m
}

// ExpectSuccess is shorthand for a zero exit with no output.
func (m *MockCommandRunner) ExpectSuccess(cmd string) *MockCommandRunner {
	return m.Expect(cmd, Result{}, nil)
}

// ExpectFailure registers a non-zero exit with diagnostic output.
func (m *MockCommandRunner) ExpectFailure(cmd string, exitCode int, stderr string) *MockCommandRunner {
	return m.Expect(cmd, Result{ExitCode: exitCode, Stderr: []byte(stderr)}, nil)
}

// AllowUnexpected makes unexpected commands succeed with empty output.
func (m *MockCommandRunner) AllowUnexpected() *MockCommandRunner {
	m.defaultError = nil
	return m
}

// LookPath implements CommandRunner.
func (m *MockCommandRunner) LookPath(name string) (string, error) {
	if path, ok := m.binaries[name]; ok {
		return path, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Run implements CommandRunner.
func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	key := name
	if len(args) > 0 {
		key = name + " " + strings.Join(args, " ")
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, CommandCall{
		Name: name,
		Args: args,
		Key:  key,
	})
	onRun := m.OnRun
	result, ok := m.commands[key]
	defaultErr := m.defaultError
	m.mu.Unlock()

	if onRun != nil {
		onRun(name, args)
	}

	if ok {
		return result.Result, result.Err
	}

	if defaultErr != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s", defaultErr, key)
	}
	return Result{}, nil
}

// Called returns true if the command was called at least once.
func (m *MockCommandRunner) Called(cmd string) bool {
	return m.CallCount(cmd) > 0
}

// CallCount returns how many times the command was called.
func (m *MockCommandRunner) CallCount(cmd string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, call := range m.Calls {
		if call.Key == cmd {
			count++
		}
	}
	return count
}

// AssertCalled fails the test if the command was not called.
func (m *MockCommandRunner) AssertCalled(t *testing.T, cmd string) {
	t.Helper()
	if !m.Called(cmd) {
		t.Errorf("expected command to be called: %s", cmd)
		t.Errorf("actual calls: %v", m.CallKeys())
	}
}

// AssertNotCalled fails the test if the command was called.
func (m *MockCommandRunner) AssertNotCalled(t *testing.T, cmd string) {
	t.Helper()
	if m.Called(cmd) {
		t.Errorf("expected command NOT to be called: %s", cmd)
	}
}

// CallKeys returns all called command keys for debugging.
func (m *MockCommandRunner) CallKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, len(m.Calls))
	for i, call := range m.Calls {
		keys[i] = call.Key
	}
	return keys
}
