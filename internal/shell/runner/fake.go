package runner

import (
	"context"
	"strings"
	"sync"
)

// =============================================================================
// Fake Runner (test support)
// =============================================================================

// Fake is an in-memory Runner for tests. It records every invocation and
// replies from a script of stubbed results keyed by command prefix, falling
// back to a zero exit.
type Fake struct {
	mu sync.Mutex

	// Calls holds each invocation as "name arg1 arg2 ...".
	Calls []string

	// Script maps a command-line prefix to its result. When several
	// prefixes match, the longest one wins.
	Script map[string]Result

	// Errs maps a command-line prefix to a hard failure.
	Errs map[string]error
}

// NewFake creates an empty fake runner.
func NewFake() *Fake {
	return &Fake{
		Script: make(map[string]Result),
		Errs:   make(map[string]error),
	}
}

func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	line := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	f.Calls = append(f.Calls, line)
	f.mu.Unlock()

	if prefix, ok := longestPrefix(f.Errs, line); ok {
		return Result{ExitCode: -1}, f.Errs[prefix]
	}
	if prefix, ok := longestPrefix(f.Script, line); ok {
		return f.Script[prefix], nil
	}
	return Result{}, nil
}

// longestPrefix returns the longest registered prefix of line. Longest-match
// keeps overlapping entries deterministic despite map iteration order.
func longestPrefix[V any](m map[string]V, line string) (string, bool) {
	best, found := "", false
	for prefix := range m {
		if strings.HasPrefix(line, prefix) && (!found || len(prefix) > len(best)) {
			best, found = prefix, true
		}
	}
	return best, found
}

// CallCount returns how many recorded invocations match the prefix.
func (f *Fake) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
