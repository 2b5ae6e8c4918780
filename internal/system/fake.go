package system

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// FakeRunner records invocations and answers them from canned responses.
// It is meant for tests in packages that depend on a Runner.
type FakeRunner struct {
	mu sync.Mutex

	// Paths maps binary names to the path LookPath reports.
	Paths map[string]string
	// Handler answers Run calls; nil means every command succeeds.
	Handler func(name string, args []string, stdin []byte) ([]byte, error)

	Calls []string
}

func NewFakeRunner(binaries ...string) *FakeRunner {
	f := &FakeRunner{Paths: make(map[string]string)}
	for _, b := range binaries {
		f.Paths[b] = "/usr/bin/" + b
	}
	return f
}

func (f *FakeRunner) AddBinary(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Paths[name] = "/usr/bin/" + name
}

func (f *FakeRunner) LookPath(file string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Paths[file]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (f *FakeRunner) Run(_ context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	var input []byte
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		input = b
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, strings.TrimSpace(fmt.Sprintf("%s %s", name, strings.Join(args, " "))))
	handler := f.Handler
	f.mu.Unlock()
	if handler == nil {
		return nil, nil
	}
	return handler(name, args, input)
}

func (f *FakeRunner) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}
