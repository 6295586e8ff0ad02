// Package tui defines the IO interface between a chat session and the
// terminal, with PlainIO for interactive use and PipeIO for scripts.
package tui

// IO is the contract between the chat loop and the UI layer.
// TextDelta and SystemMessage also make every IO a session sink.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// TextDelta appends an incremental text chunk from the model stream.
	TextDelta(delta string)

	// TextDone signals that the current reply is complete.
	TextDone(fullText string)

	// SystemMessage displays a notice such as a compaction report.
	SystemMessage(text string)

	// Error displays an error message.
	Error(msg string)

	// SetContextInfo updates the context usage indicator: used tokens of total.
	SetContextInfo(used, total int)
}
