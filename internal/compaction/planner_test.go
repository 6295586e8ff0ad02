package compaction

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/apexion-ai/reactagent/internal/metrics"
	"github.com/apexion-ai/reactagent/internal/provider"
	"github.com/apexion-ai/reactagent/internal/tokens"
)

// stubAccountant returns fixed answers and records calls.
type stubAccountant struct {
	total      int
	countErr   error
	limit      int
	limitErr   error
	countCalls int
	limitCalls int
}

func (s *stubAccountant) CountTokens([]provider.Message) (int, error) {
	s.countCalls++
	return s.total, s.countErr
}

func (s *stubAccountant) TokenLimit(string) (int, error) {
	s.limitCalls++
	return s.limit, s.limitErr
}

func conversation(n int) []provider.Message {
	msgs := make([]provider.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			msgs = append(msgs, provider.UserMessage(fmt.Sprintf("question %d", i)))
		} else {
			msgs = append(msgs, provider.ModelMessage(fmt.Sprintf("answer %d", i)))
		}
	}
	return msgs
}

func TestDecide_EmptyHistory(t *testing.T) {
	acc := &stubAccountant{}
	p := NewPlanner(acc, nil, nil)

	// Empty history short-circuits before fraction validation.
	d, err := p.Decide(nil, 7, "gpt-4o", true)
	require.NoError(t, err)
	assert.Equal(t, NoActionNeeded, d.Action)
	assert.Zero(t, acc.countCalls)
}

func TestDecide_BelowThreshold(t *testing.T) {
	acc := &stubAccountant{total: 50, limit: 100}
	p := NewPlanner(acc, nil, nil)

	d, err := p.Decide(conversation(2), 0.7, "gpt-4o", false)
	require.NoError(t, err)
	assert.Equal(t, NoActionNeeded, d.Action)
	assert.Equal(t, 50, d.TotalTokens)
	assert.NoError(t, d.Warning)
}

func TestDecide_AboveThreshold(t *testing.T) {
	acc := &stubAccountant{total: 80, limit: 100}
	p := NewPlanner(acc, nil, nil)
	history := conversation(6)

	d, err := p.Decide(history, 0.7, "gpt-4o", false)
	require.NoError(t, err)
	assert.Equal(t, CompactionRequired, d.Action)
	assert.Equal(t, 80, d.TotalTokens)

	want, err := FindSplitIndex(history, 0.7)
	require.NoError(t, err)
	assert.Equal(t, want, d.SplitIndex)
}

func TestDecide_ExactlyAtThresholdCompacts(t *testing.T) {
	acc := &stubAccountant{total: 70, limit: 100}
	d, err := NewPlanner(acc, nil, nil).Decide(conversation(2), 0.7, "m", false)
	require.NoError(t, err)
	assert.Equal(t, CompactionRequired, d.Action)
}

func TestDecide_ForceSkipsLimit(t *testing.T) {
	acc := &stubAccountant{total: 1, limitErr: tokens.ErrUnknownModelLimit}
	d, err := NewPlanner(acc, nil, nil).Decide(conversation(4), 0.5, "m", true)
	require.NoError(t, err)
	assert.Equal(t, CompactionRequired, d.Action)
	assert.Equal(t, 1, d.TotalTokens)
	assert.Zero(t, acc.limitCalls)
	assert.NoError(t, d.Warning)
}

func TestDecide_InvalidFraction(t *testing.T) {
	for _, f := range []float64{0, -0.1, 1, 1.5, math.NaN()} {
		for _, force := range []bool{false, true} {
			acc := &stubAccountant{total: 10, limit: 100}
			_, err := NewPlanner(acc, nil, nil).Decide(conversation(2), f, "m", force)
			assert.ErrorIs(t, err, ErrInvalidFraction, "fraction=%v force=%v", f, force)
			assert.Zero(t, acc.countCalls, "accountant must not be consulted for bad fractions")
		}
	}
}

func TestDecide_UnknownModelLimitDegrades(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	collector := metrics.NewCollector("test", nil)
	acc := &stubAccountant{
		total:    80,
		limitErr: fmt.Errorf("%w: %q", tokens.ErrUnknownModelLimit, "phi4"),
	}
	p := NewPlanner(acc, zap.New(core), collector)

	d, err := p.Decide(conversation(2), 0.7, "phi4", false)
	require.NoError(t, err)
	assert.Equal(t, NoActionNeeded, d.Action)
	assert.ErrorIs(t, d.Warning, tokens.ErrUnknownModelLimit)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "token accounting failed", entry.Message)
	assert.Equal(t, "unknown_model_limit", entry.ContextMap()["reason"])

	gathered, err := testutil.GatherAndCount(collector.Registry(), "test_accounting_warnings_total")
	require.NoError(t, err)
	assert.Equal(t, 1, gathered)
}

func TestDecide_CountFailureDegrades(t *testing.T) {
	acc := &stubAccountant{countErr: errors.New("tokenizer offline"), limit: 100}
	d, err := NewPlanner(acc, nil, nil).Decide(conversation(2), 0.5, "m", false)
	require.NoError(t, err)
	assert.Equal(t, NoActionNeeded, d.Action)
	assert.ErrorIs(t, d.Warning, tokens.ErrAccountingUnavailable)
	assert.Contains(t, d.Warning.Error(), "tokenizer offline")
	assert.Zero(t, acc.limitCalls)
}

func TestDecide_ForcedCountFailureStillCompacts(t *testing.T) {
	acc := &stubAccountant{countErr: tokens.ErrAccountingUnavailable}
	history := conversation(4)
	d, err := NewPlanner(acc, nil, nil).Decide(history, 0.5, "m", true)
	require.NoError(t, err)
	assert.Equal(t, CompactionRequired, d.Action)
	assert.Zero(t, d.TotalTokens)
	assert.ErrorIs(t, d.Warning, tokens.ErrAccountingUnavailable)
	assert.LessOrEqual(t, d.SplitIndex, len(history))
}

func TestDecide_WithRealAccountant(t *testing.T) {
	acc := tokens.NewAccountant(tokens.EstimateCounter{}, tokens.NewLimits("ollama", map[string]int{"tiny": 40}))
	p := NewPlanner(acc, nil, nil)

	d, err := p.Decide(conversation(2), 0.5, "tiny", false)
	require.NoError(t, err)
	assert.Equal(t, NoActionNeeded, d.Action)

	d, err = p.Decide(conversation(12), 0.5, "tiny", false)
	require.NoError(t, err)
	assert.Equal(t, CompactionRequired, d.Action)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "no_action", NoActionNeeded.String())
	assert.Equal(t, "compact", CompactionRequired.String())
	assert.Equal(t, "Action(7)", Action(7).String())
}
