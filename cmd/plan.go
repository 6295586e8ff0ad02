package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/apexion-ai/reactagent/internal/compaction"
	"github.com/apexion-ai/reactagent/internal/config"
	"github.com/apexion-ai/reactagent/internal/logging"
	"github.com/apexion-ai/reactagent/internal/provider"
	"github.com/apexion-ai/reactagent/internal/session"
)

func newPlanCmd() *cobra.Command {
	var (
		file  string
		force bool
		apply bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Curate a transcript file and show the compaction decision",
		Long: "plan reads a YAML transcript (a list of {role, content} messages, or a\n" +
			"document with a messages key), curates it and reports whether it would be\n" +
			"compacted for the configured model. With --apply the compaction is run\n" +
			"and the new history is printed as YAML.",
		Example: `  reactagent plan -f chat.yaml
  reactagent plan -f chat.yaml --force --apply > compacted.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			msgs, err := parseTranscript(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			cfg, err := initConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if apply {
				// The report goes to stderr so stdout stays a valid transcript.
				out = cmd.ErrOrStderr()
			}
			res, err := planTranscript(out, cfg, msgs, force)
			if err != nil {
				return err
			}
			if !apply || res.decision.Action != compaction.CompactionRequired {
				return nil
			}

			p, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			c := &session.LLMCompactor{Provider: p, Model: cfg.SummaryModel}
			compacted, err := c.Compact(cmd.Context(), res.curated, res.decision.SplitIndex)
			if err != nil {
				return fmt.Errorf("compact: %w", err)
			}
			return writeTranscript(cmd.OutOrStdout(), compacted)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "transcript file (YAML)")
	cmd.Flags().BoolVar(&force, "force", false, "decide as if compaction was requested manually")
	cmd.Flags().BoolVar(&apply, "apply", false, "run the compaction and print the result")
	cmd.MarkFlagRequired("file")

	return cmd
}

// transcript is the document form of a transcript file.
type transcript struct {
	Messages []provider.Message `yaml:"messages"`
}

// parseTranscript accepts a bare message list or a {messages: [...]} document.
func parseTranscript(data []byte) ([]provider.Message, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var msgs []provider.Message
		if err := doc.Decode(&msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	case yaml.MappingNode:
		var t transcript
		if err := doc.Decode(&t); err != nil {
			return nil, err
		}
		return t.Messages, nil
	}
	return nil, fmt.Errorf("line %d: transcript must be a list of messages or a mapping with a messages key", doc.Line)
}

func writeTranscript(w io.Writer, msgs []provider.Message) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(transcript{Messages: msgs}); err != nil {
		return err
	}
	return enc.Close()
}

type planResult struct {
	curated  []provider.Message
	dropped  int
	decision compaction.Decision
}

// planTranscript curates msgs, runs the planner and writes a report to w.
func planTranscript(w io.Writer, cfg *config.Config, msgs []provider.Message, force bool) (planResult, error) {
	model := cfg.ActiveModel()
	acc := buildAccountant(cfg, model)
	planner := compaction.NewPlanner(acc, logging.New(cfg.Log), nil)
	threshold := cfg.ChatCompression.ContextPercentageThreshold

	var res planResult
	res.curated, res.dropped = session.CurateWithStats(msgs)

	fmt.Fprintf(w, "Messages:  %d (%d after curation, %d dropped)\n", len(msgs), len(res.curated), res.dropped)
	fmt.Fprintf(w, "Model:     %s\n", model)
	fmt.Fprintf(w, "Tokenizer: %s\n", acc.CounterName())
	if limit, err := acc.TokenLimit(model); err == nil {
		fmt.Fprintf(w, "Limit:     %d tokens\n", limit)
	} else {
		fmt.Fprintf(w, "Limit:     unknown (%v)\n", err)
	}

	if !force && threshold >= 1 {
		fmt.Fprintln(w, "Decision:  no_action (automatic compaction disabled)")
		return res, nil
	}
	d, err := planner.Decide(res.curated, threshold, model, force)
	if err != nil {
		return res, err
	}
	res.decision = d

	fmt.Fprintf(w, "Tokens:    %d\n", d.TotalTokens)
	fmt.Fprintf(w, "Threshold: %.2f\n", threshold)
	if d.Warning != nil {
		fmt.Fprintf(w, "Warning:   %v\n", d.Warning)
	}
	if d.Action == compaction.CompactionRequired {
		fmt.Fprintf(w, "Decision:  %s at split index %d of %d\n", d.Action, d.SplitIndex, len(res.curated))
	} else {
		fmt.Fprintf(w, "Decision:  %s\n", d.Action)
	}
	return res, nil
}
