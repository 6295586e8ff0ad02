package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexion-ai/reactagent/internal/compaction"
	"github.com/apexion-ai/reactagent/internal/session"
	"github.com/apexion-ai/reactagent/internal/tui"
)

// runChat starts the interactive chat (REPL) mode.
func runChat(cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ui := tui.NewPlainIO()
	ui.SystemMessage(fmt.Sprintf("reactagent %s | %s/%s | /help for commands",
		displayVersion(), a.provider.Name(), a.session.Model()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT cancels the running turn; with no turn running it exits.
	turns := &turnCanceller{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGTERM || !turns.cancelTurn() {
				cancel()
				os.Exit(130)
			}
		}
	}()

	return chatLoop(ctx, a, ui, turns)
}

// turnCanceller holds the cancel func of the turn in flight.
type turnCanceller struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (t *turnCanceller) start(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	return ctx, func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		cancel()
	}
}

func (t *turnCanceller) cancelTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return false
	}
	t.cancel()
	t.cancel = nil
	return true
}

// chatLoop reads lines until EOF or /quit.
func chatLoop(ctx context.Context, a *app, ui tui.IO, turns *turnCanceller) error {
	if turns == nil {
		turns = &turnCanceller{}
	}
	for {
		input, err := ui.ReadInput()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := handleSlash(ctx, a, ui, input); quit {
				return nil
			}
			continue
		}

		turnCtx, done := turns.start(ctx)
		reply, err := a.session.Send(turnCtx, input, ui)
		done()
		switch {
		case errors.Is(err, context.Canceled):
			ui.TextDone("")
			ui.SystemMessage("Interrupted.")
		case err != nil:
			ui.Error(err.Error())
		default:
			ui.TextDone(reply.Text)
		}
		ui.SetContextInfo(a.contextUsage())
	}
}

// handleSlash runs a chat command and reports whether to exit.
func handleSlash(ctx context.Context, a *app, ui tui.IO, input string) bool {
	name, ok := tui.ResolveSlash(input)
	if !ok {
		ui.Error(fmt.Sprintf("unknown command %q, try /help", strings.Fields(input)[0]))
		return false
	}

	switch name {
	case "/quit":
		return true
	case "/help":
		ui.SystemMessage(tui.HelpText())
	case "/clear":
		if err := a.session.Clear(); err != nil {
			ui.Error(err.Error())
			return false
		}
		ui.SystemMessage("History cleared.")
	case "/history":
		width := 80
		if w, ok := ui.(interface{ Width() int }); ok {
			width = w.Width()
		}
		ui.SystemMessage(tui.FormatHistory(a.session.History(), width))
	case "/status":
		ui.SystemMessage(statusText(a))
	case "/usage":
		ui.SystemMessage(a.session.Usage().Summary())
	case "/compact":
		prep, err := a.session.Compact(ctx)
		switch {
		case err != nil:
			ui.Error(err.Error())
		case !prep.Replaced:
			ui.SystemMessage("Nothing to compact.")
		default:
			ui.SystemMessage(fmt.Sprintf("Context compacted: %d messages remain.", len(prep.History)))
		}
		if prep.Decision.Action == compaction.CompactionRequired {
			a.logger.Debug("manual compaction", zap.Int("split_index", prep.Decision.SplitIndex))
		}
	}
	ui.SetContextInfo(a.contextUsage())
	return false
}

func statusText(a *app) string {
	used, total := a.contextUsage()
	var b strings.Builder
	fmt.Fprintf(&b, "ID:        %s\n", a.session.ID)
	fmt.Fprintf(&b, "Provider:  %s\n", a.provider.Name())
	fmt.Fprintf(&b, "Model:     %s\n", a.session.Model())
	fmt.Fprintf(&b, "Messages:  %d in log, %d sent\n", a.session.Len(), len(a.session.History()))
	if total > 0 {
		fmt.Fprintf(&b, "Tokens:    %d / %d (%.0f%%)\n", used, total, float64(used)/float64(total)*100)
	} else {
		fmt.Fprintf(&b, "Tokens:    %d / unknown limit\n", used)
	}
	if th := a.session.Threshold(); th >= 1 {
		b.WriteString("Threshold: off\n")
	} else {
		fmt.Fprintf(&b, "Threshold: %.0f%%\n", th*100)
	}
	u := a.session.LastUsage()
	fmt.Fprintf(&b, "Last turn: %d in / %d out tokens\n", u.InputTokens, u.OutputTokens)
	sum, turns := a.session.Usage().Total()
	fmt.Fprintf(&b, "Session:   %d in / %d out tokens over %d turns", sum.InputTokens, sum.OutputTokens, turns)
	return b.String()
}

// Ensure the session's Sink is satisfied by every IO implementation.
var _ session.Sink = tui.IO(nil)
