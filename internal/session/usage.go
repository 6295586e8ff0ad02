package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// TurnUsage records the tokens one reply consumed.
type TurnUsage struct {
	Model     string
	Usage     provider.Usage
	Timestamp time.Time
}

// UsageTracker accumulates provider-reported token usage across turns.
type UsageTracker struct {
	mu    sync.Mutex
	turns []TurnUsage
	total provider.Usage
}

func (u *UsageTracker) Record(model string, usage provider.Usage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.turns = append(u.turns, TurnUsage{Model: model, Usage: usage, Timestamp: time.Now()})
	u.total.InputTokens += usage.InputTokens
	u.total.OutputTokens += usage.OutputTokens
}

// Total returns the summed usage and the number of turns.
func (u *UsageTracker) Total() (provider.Usage, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total, len(u.turns)
}

func (u *UsageTracker) Reset() {
	u.mu.Lock()
	u.turns = nil
	u.total = provider.Usage{}
	u.mu.Unlock()
}

// Summary lists every turn and the totals.
func (u *UsageTracker) Summary() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.turns) == 0 {
		return "No usage recorded."
	}
	var sb strings.Builder
	for i, t := range u.turns {
		fmt.Fprintf(&sb, "  Turn %d: %s  in=%d out=%d\n", i+1, t.Model, t.Usage.InputTokens, t.Usage.OutputTokens)
	}
	fmt.Fprintf(&sb, "Total: %d input + %d output = %d tokens over %d turns",
		u.total.InputTokens, u.total.OutputTokens, u.total.InputTokens+u.total.OutputTokens, len(u.turns))
	return sb.String()
}
