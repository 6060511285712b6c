package confirm

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminal(t *testing.T) {
	tests := map[string]struct {
		input string
		want  bool
	}{
		"y":         {"y\n", true},
		"yes upper": {"  YES \n", true},
		"no":        {"n\n", false},
		"empty":     {"\n", false},
		"eof":       {"yes", true},
		"other":     {"sure\n", false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			ok, err := NewTerminal(strings.NewReader(tc.input), &out).Confirm(context.Background(), "BUY 200 USDC of WETH")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.Contains(t, out.String(), "BUY 200 USDC of WETH")
			assert.Contains(t, out.String(), "[y/N]")
		})
	}
}

func TestTerminalContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ok, err := NewTerminal(r, io.Discard).Confirm(ctx, "sell")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalAnswerAfterCancelledPrompt(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term := NewTerminal(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := term.Confirm(ctx, "first")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := term.Confirm(context.Background(), "second")
		done <- result{ok, err}
	}()
	_, err = w.Write([]byte("y\n"))
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.ok)
	case <-time.After(time.Second):
		t.Fatal("second prompt did not receive the answer")
	}
}

func TestTerminalClosedInput(t *testing.T) {
	term := NewTerminal(strings.NewReader("y\n"), io.Discard)
	ok, err := term.Confirm(context.Background(), "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = term.Confirm(context.Background(), "second")
	assert.False(t, ok)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPolicies(t *testing.T) {
	ok, _ := Auto{}.Confirm(context.Background(), "")
	assert.True(t, ok)
	ok, _ = Deny{}.Confirm(context.Background(), "")
	assert.False(t, ok)

	c, err := New("TERMINAL", strings.NewReader(""), io.Discard)
	require.NoError(t, err)
	assert.IsType(t, &Terminal{}, c)

	_, err = New("maybe", nil, nil)
	assert.Error(t, err)
}
