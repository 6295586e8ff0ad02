package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/reactagent/internal/tui"
)

func newRunCmd() *cobra.Command {
	var (
		prompt       string
		outputFormat string
		printLast    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a single prompt non-interactively",
		Example: `  reactagent run -P "explain the CAP theorem"
  echo "summarize this" | reactagent run -P - --format jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read prompt: %w", err)
				}
				prompt = string(data)
			}
			prompt = strings.TrimSpace(prompt)
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			if outputFormat != "text" && outputFormat != "jsonl" {
				return fmt.Errorf("unknown --format %q (want text or jsonl)", outputFormat)
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ui := tui.NewPipeIO(outputFormat, printLast)
			defer ui.Flush()
			return runOnce(ctx, a, ui, prompt)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the prompt to send (- reads stdin)")
	cmd.Flags().StringVar(&outputFormat, "format", "text", "output format: text or jsonl")
	cmd.Flags().BoolVar(&printLast, "print-last", false, "only print the final reply")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce sends prompt and writes the reply to ui.
func runOnce(ctx context.Context, a *app, ui tui.IO, prompt string) error {
	reply, err := a.session.Send(ctx, prompt, ui)
	if err != nil {
		return err
	}
	ui.TextDone(reply.Text)
	ui.SetContextInfo(a.contextUsage())
	return nil
}
