// Package confirm provides the approval policies asked before trades are sent.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"trading-agent/internal/interfaces"
)

// Auto approves everything.
type Auto struct{}

func (Auto) Confirm(context.Context, string) (bool, error) { return true, nil }

// Deny rejects everything.
type Deny struct{}

func (Deny) Confirm(context.Context, string) (bool, error) { return false, nil }

// Terminal prints the summary and reads a y/yes answer. One goroutine owns
// the input; a line read while no prompt waits goes to the next prompt.
type Terminal struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan answer
}

type answer struct {
	line string
	err  error
}

var (
	_ interfaces.Confirmer = Auto{}
	_ interfaces.Confirmer = Deny{}
	_ interfaces.Confirmer = (*Terminal)(nil)
)

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, lines: make(chan answer)}
}

// read forwards input lines until the reader fails, then closes lines.
func (t *Terminal) read() {
	defer close(t.lines)
	for {
		line, err := t.in.ReadString('\n')
		if line != "" || err == nil {
			t.lines <- answer{line: line}
		}
		if err != nil {
			if err != io.EOF {
				t.lines <- answer{err: err}
			}
			return
		}
	}
}

func (t *Terminal) Confirm(ctx context.Context, summary string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := fmt.Fprintf(t.out, "%s\nProceed? [y/N]: ", summary); err != nil {
		return false, err
	}
	t.once.Do(func() { go t.read() })

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-t.lines:
		if !ok {
			return false, io.EOF
		}
		if a.err != nil {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// New picks a policy by name: auto, terminal or deny.
func New(mode string, in io.Reader, out io.Writer) (interfaces.Confirmer, error) {
	switch strings.ToLower(mode) {
	case "", "auto":
		return Auto{}, nil
	case "terminal":
		return NewTerminal(in, out), nil
	case "deny":
		return Deny{}, nil
	}
	return nil, fmt.Errorf("unknown confirm mode %q", mode)
}
