package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"maestro-ai/internal/domain"
)

const renderWidth = 100

// terminalConsole is the stdin/stdout human console. Markdown narration is
// rendered through glamour when a terminal renderer could be built, and
// printed raw otherwise.
type terminalConsole struct {
	in       *bufio.Reader
	out      io.Writer
	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

func newTerminalConsole(in io.Reader, out io.Writer) *terminalConsole {
	c := &terminalConsole{
		in:  bufio.NewReader(in),
		out: out,
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err == nil {
		c.renderer = r
	}
	return c
}

// WaitForResponse shows the prompt and blocks until the operator types a
// line or the context is cancelled. The read runs in its own goroutine so
// cancellation is not held hostage by a blocked terminal read.
func (c *terminalConsole) WaitForResponse(ctx context.Context, prompt string, visibleHistory []domain.Turn) (string, error) {
	c.PrintMessage(prompt, domain.MimeMarkdown)
	fmt.Fprint(c.out, "> ")

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", fmt.Errorf("read operator input: %w", res.err)
		}
		return strings.TrimSpace(res.line), nil
	}
}

func (c *terminalConsole) PrintMessage(text, mimeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mimeType == domain.MimeMarkdown && c.renderer != nil {
		if rendered, err := c.renderer.Render(text); err == nil {
			fmt.Fprint(c.out, rendered)
			return
		}
	}
	fmt.Fprintln(c.out, text)
}
