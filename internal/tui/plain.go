package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PlainIO implements IO on a line-oriented terminal.
// The prompt is only printed when input comes from a terminal, so piping a
// file of questions into chat produces a clean transcript.
type PlainIO struct {
	scanner     *bufio.Scanner
	out         io.Writer
	errW        io.Writer
	interactive bool

	mu          sync.Mutex
	midLine     bool // a streamed reply has not ended with a newline yet
	contextUsed int
	contextMax  int
}

var _ IO = (*PlainIO)(nil)

// NewPlainIO creates a PlainIO on stdin/stdout/stderr.
func NewPlainIO() *PlainIO {
	return NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr, term.IsTerminal(int(os.Stdin.Fd())))
}

// NewPlainIOWith creates a PlainIO on the given streams.
func NewPlainIOWith(in io.Reader, out, errW io.Writer, interactive bool) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errW: errW, interactive: interactive}
}

func (p *PlainIO) ReadInput() (string, error) {
	if p.interactive {
		fmt.Fprint(p.out, "\n> ")
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) TextDelta(delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, delta)
	if delta != "" {
		p.midLine = !strings.HasSuffix(delta, "\n")
	}
}

func (p *PlainIO) TextDone(_ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *PlainIO) SystemMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	fmt.Fprintf(p.errW, "error: %s\n", msg)
}

func (p *PlainIO) SetContextInfo(used, total int) {
	p.mu.Lock()
	p.contextUsed, p.contextMax = used, total
	p.mu.Unlock()
}

// ContextInfo returns the last values passed to SetContextInfo.
func (p *PlainIO) ContextInfo() (used, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contextUsed, p.contextMax
}

// Width is the terminal width, or 80 when output is not a terminal.
func (p *PlainIO) Width() int {
	if f, ok := p.out.(*os.File); ok && p.interactive {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

func (p *PlainIO) endLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}

// truncate shortens s to maxLen bytes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
