package testing

import (
	"fmt"
	"strings"
	"sync"
)

// CallLog records calls in order. It is safe for concurrent use and may be
// shared by several fakes.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends a formatted call.
func (l *CallLog) Add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Index returns the position of the first call starting with prefix, or -1.
func (l *CallLog) Index(prefix string) int {
	for i, c := range l.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// Count returns how many calls start with prefix.
func (l *CallLog) Count(prefix string) int {
	n := 0
	for _, c := range l.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
