package tui

import (
	"fmt"
	"strings"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// SlashCommand is a built-in chat command.
type SlashCommand struct {
	Name string // e.g. "/compact"
	Desc string
}

// BuiltinSlashCommands returns the chat commands in help order.
func BuiltinSlashCommands() []SlashCommand {
	return []SlashCommand{
		{Name: "/help", Desc: "Show help message"},
		{Name: "/compact", Desc: "Summarize older history now"},
		{Name: "/history", Desc: "Show the curated message history"},
		{Name: "/status", Desc: "Show model, token usage and threshold"},
		{Name: "/usage", Desc: "Show token usage per turn"},
		{Name: "/clear", Desc: "Clear history"},
		{Name: "/quit", Desc: "Exit"},
	}
}

// ResolveSlash expands a unique prefix ("/comp") to its command name.
// It returns false for unknown or ambiguous input.
func ResolveSlash(input string) (string, bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", false
	}
	word := strings.ToLower(fields[0])
	var matches []string
	for _, c := range BuiltinSlashCommands() {
		if c.Name == word {
			return c.Name, true
		}
		if strings.HasPrefix(c.Name, word) {
			matches = append(matches, c.Name)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

// HelpText lists the commands.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range BuiltinSlashCommands() {
		fmt.Fprintf(&b, "  %-10s %s\n", c.Name, c.Desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHistory renders messages one per line, each cut to width.
func FormatHistory(msgs []provider.Message, width int) string {
	if len(msgs) == 0 {
		return "(no messages)"
	}
	if width < 20 {
		width = 80
	}
	var b strings.Builder
	for i, m := range msgs {
		prefix := fmt.Sprintf("%3d %-5s ", i, m.Role())
		text := strings.ReplaceAll(m.Text(), "\n", " ")
		if text == "" {
			text = "(empty)"
		}
		b.WriteString(prefix)
		b.WriteString(truncate(text, width-len(prefix)-3))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
