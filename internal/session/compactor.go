package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// Compactor shrinks curated history. split is the planner's advisory
// boundary; the returned sequence replaces the whole message log.
type Compactor interface {
	Compact(ctx context.Context, curated []provider.Message, split int) ([]provider.Message, error)
}

// UnsupportedCompactor is used when no summarizer is configured.
type UnsupportedCompactor struct{}

func (UnsupportedCompactor) Compact(context.Context, []provider.Message, int) ([]provider.Message, error) {
	return nil, fmt.Errorf("compaction: %w", provider.ErrUnsupported)
}

// SummaryMarker prefixes the user message that carries a conversation summary.
const SummaryMarker = "[Previous conversation summary]"

const summaryAck = "Got it. I have the summary of our earlier conversation and will continue from there."

var errNothingToCompact = errors.New("nothing to compact")

// LLMCompactor asks a model to summarize the older part of the history.
type LLMCompactor struct {
	Provider provider.Provider
	Model    string // optional: a cheaper model for summaries. Empty = provider default.
}

const summarizePrompt = `Summarize the conversation so far for continuity. Include:
- The user's goals and questions
- Answers and decisions already given
- Facts, names and numbers the conversation depends on
- Anything left open
If the conversation starts with an earlier summary, fold it into the new one.
Be concise but thorough. Max 2000 tokens.`

// Compact summarizes curated[:cut] and keeps curated[cut:] verbatim. cut
// starts at split and moves forward to the next user message so the kept
// tail begins a fresh exchange. A trailing user message is the pending
// prompt and is always kept.
func (c *LLMCompactor) Compact(ctx context.Context, curated []provider.Message, split int) ([]provider.Message, error) {
	cut := boundary(curated, split)
	if cut == 0 {
		return nil, errNothingToCompact
	}

	msgs := provider.CloneMessages(curated[:cut])
	msgs = append(msgs, provider.UserMessage(summarizePrompt))

	model := c.Model
	if model == "" {
		model = c.Provider.DefaultModel()
	}
	req := &provider.ChatRequest{
		Model:        model,
		Messages:     msgs,
		SystemPrompt: "You are a conversation summarizer. Produce a concise, structured summary of the conversation.",
		MaxTokens:    2048,
	}

	events, err := c.Provider.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("summarize LLM call failed: %w", err)
	}

	var result strings.Builder
	for event := range events {
		switch event.Type {
		case provider.EventTextDelta:
			result.WriteString(event.TextDelta)
		case provider.EventError:
			go drain(events)
			return nil, fmt.Errorf("summarize stream error: %w", event.Error)
		}
	}

	summary := strings.TrimSpace(result.String())
	if summary == "" {
		return nil, fmt.Errorf("summarizer returned empty summary")
	}

	out := make([]provider.Message, 0, len(curated)-cut+2)
	out = append(out,
		provider.UserMessage(SummaryMarker+"\n\n"+summary),
		provider.ModelMessage(summaryAck))
	out = append(out, curated[cut:]...)
	return out, nil
}

// boundary returns the number of leading messages to summarize, 0 when
// there is nothing that can be summarized.
func boundary(curated []provider.Message, split int) int {
	limit := len(curated)
	if limit > 0 && curated[limit-1].Role() == provider.RoleUser {
		limit--
	}
	cut := max(split, 1)
	for cut < limit && curated[cut].Role() != provider.RoleUser {
		cut++
	}
	return min(cut, limit)
}

func drain(events <-chan provider.Event) {
	for range events {
	}
}
