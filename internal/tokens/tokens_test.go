package tokens

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/apexion-ai/reactagent/internal/provider"
)

type failingCounter struct{ err error }

func (f failingCounter) Name() string { return "failing" }
func (f failingCounter) CountTokens([]provider.Message) (int, error) {
	return 0, f.err
}

func TestEstimateText(t *testing.T) {
	assert.Equal(t, 0, EstimateText(""))
	assert.Equal(t, 1, EstimateText("hi"))
	assert.Equal(t, 2, EstimateText("12345678"))
}

func TestEstimateCounter_CountTokens(t *testing.T) {
	n, err := EstimateCounter{}.CountTokens([]provider.Message{
		provider.UserMessage("12345678"),
		provider.ModelMessage(""),
	})
	require.NoError(t, err)
	assert.Equal(t, 2*perMessageOverhead+2, n)
}

func TestEstimateCounter_MonotonicUnderAppend(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		texts := rapid.SliceOf(rapid.String()).Draw(rt, "texts")
		var msgs []provider.Message
		prev := 0
		for i, text := range texts {
			if i%2 == 0 {
				msgs = append(msgs, provider.UserMessage(text))
			} else {
				msgs = append(msgs, provider.ModelMessage(text))
			}
			n, err := EstimateCounter{}.CountTokens(msgs)
			require.NoError(rt, err)
			if n < prev {
				rt.Fatalf("count decreased from %d to %d after append", prev, n)
			}
			prev = n
		}
	})
}

func TestAccountant_DefaultsToEstimate(t *testing.T) {
	a := NewAccountant(nil, nil)
	assert.Equal(t, "estimate", a.CounterName())

	n, err := a.CountTokens([]provider.Message{provider.UserMessage("hello world!")})
	require.NoError(t, err)
	assert.Equal(t, perMessageOverhead+3, n)

	_, err = a.TokenLimit("my-finetune")
	assert.ErrorIs(t, err, ErrUnknownModelLimit)
}

func TestAccountant_WrapsCounterFailures(t *testing.T) {
	a := NewAccountant(failingCounter{err: errors.New("boom")}, nil)
	_, err := a.CountTokens([]provider.Message{provider.UserMessage("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountingUnavailable)
	assert.Contains(t, err.Error(), "boom")

	already := NewAccountant(failingCounter{err: ErrAccountingUnavailable}, nil)
	_, err = already.CountTokens(nil)
	assert.Equal(t, ErrAccountingUnavailable, err)
}

func TestLimits_TokenLimit(t *testing.T) {
	l := NewLimits("ollama", map[string]int{"phi4*": 16384})

	n, err := l.TokenLimit("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 128000, n)

	n, err = l.TokenLimit("phi4:14b")
	require.NoError(t, err)
	assert.Equal(t, 16384, n)

	_, err = l.TokenLimit("mystery")
	assert.ErrorIs(t, err, ErrUnknownModelLimit)
	assert.Contains(t, err.Error(), "mystery")
}

func TestLimits_CopiesOverrides(t *testing.T) {
	overrides := map[string]int{"phi4": 1000}
	l := NewLimits("ollama", overrides)
	overrides["phi4"] = 0

	n, err := l.TokenLimit("phi4")
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestEncodingForModel(t *testing.T) {
	assert.Equal(t, "o200k_base", EncodingForModel("gpt-4o-mini"))
	assert.Equal(t, "o200k_base", EncodingForModel("o3-mini"))
	assert.Equal(t, "cl100k_base", EncodingForModel("gpt-4"))
	assert.Equal(t, "cl100k_base", EncodingForModel("llama3.2"))
}

func TestTiktokenCounter_Name(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenCounter("gpt-4o").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenCounter("claude").Name())
}
