package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// PipeIO implements IO for non-interactive pipe/CI mode.
// Model text goes to stdout, notices go to stderr.
type PipeIO struct {
	format    string    // "text" or "jsonl"
	printLast bool      // only output the final reply
	writer    io.Writer // stdout
	errW      io.Writer // stderr
	lastText  string
}

var _ IO = (*PipeIO)(nil)

// NewPipeIO creates a PipeIO on stdout/stderr.
func NewPipeIO(format string, printLast bool) *PipeIO {
	return NewPipeIOWith(format, printLast, os.Stdout, os.Stderr)
}

func NewPipeIOWith(format string, printLast bool, out, errW io.Writer) *PipeIO {
	if format == "" {
		format = "text"
	}
	return &PipeIO{format: format, printLast: printLast, writer: out, errW: errW}
}

func (p *PipeIO) ReadInput() (string, error) { return "", io.EOF }

func (p *PipeIO) TextDelta(delta string) {
	if p.printLast || p.format == "jsonl" {
		return // emitted whole on TextDone / Flush
	}
	fmt.Fprint(p.writer, delta)
}

func (p *PipeIO) TextDone(fullText string) {
	p.lastText = fullText
	if p.printLast {
		return
	}
	if p.format == "jsonl" {
		p.emitJSONL("text", map[string]string{"content": fullText})
	} else {
		fmt.Fprintln(p.writer) // newline after streaming deltas
	}
}

func (p *PipeIO) SystemMessage(text string) {
	if p.format == "jsonl" {
		p.emitJSONL("notice", map[string]string{"message": text})
		return
	}
	fmt.Fprintln(p.errW, text)
}

func (p *PipeIO) Error(msg string) {
	fmt.Fprintf(p.errW, "error: %s\n", msg)
}

func (p *PipeIO) SetContextInfo(used, total int) {
	if p.format == "jsonl" {
		p.emitJSONL("context", map[string]int{"used": used, "total": total})
	}
}

// Flush outputs the last reply in printLast mode.
func (p *PipeIO) Flush() {
	if p.printLast && p.lastText != "" {
		fmt.Fprintln(p.writer, p.lastText)
	}
}

// emitJSONL writes a JSON line to stdout.
func (p *PipeIO) emitJSONL(eventType string, data any) {
	line, _ := json.Marshal(map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	fmt.Fprintln(p.writer, string(line))
}
