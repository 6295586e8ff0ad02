package compaction

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/apexion-ai/reactagent/internal/provider"
)

func TestFindSplitIndex_Empty(t *testing.T) {
	for _, f := range []float64{-1, 0, 0.5, 1, 2, math.NaN()} {
		idx, err := FindSplitIndex(nil, f)
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
	}
}

func TestFindSplitIndex_InvalidFraction(t *testing.T) {
	history := []provider.Message{provider.UserMessage("hi")}
	for _, f := range []float64{0, -0.5, 1, 1.01, math.NaN(), math.Inf(1)} {
		_, err := FindSplitIndex(history, f)
		assert.ErrorIs(t, err, ErrInvalidFraction, "fraction %v", f)
	}
}

func TestFindSplitIndex_Weights(t *testing.T) {
	history := []provider.Message{
		provider.UserMessage(""),
		provider.ModelMessage(""),
		provider.UserMessage(strings.Repeat("x", 90)),
	}
	w0, w1, w2 := canonicalSize(history[0]), canonicalSize(history[1]), canonicalSize(history[2])
	total := float64(w0 + w1 + w2)

	// Targets sit half a byte away from each boundary.
	tests := []struct {
		fraction float64
		want     int
	}{
		{(float64(w0) - 0.5) / total, 0},
		{(float64(w0) + 0.5) / total, 1},
		{(float64(w0+w1) - 0.5) / total, 1},
		{(float64(w0+w1) + 0.5) / total, 2},
		{0.99, 2},
	}
	for _, tt := range tests {
		got, err := FindSplitIndex(history, tt.fraction)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "fraction %v", tt.fraction)
	}
}

func TestFindSplitIndex_SingleMessage(t *testing.T) {
	idx, err := FindSplitIndex([]provider.Message{provider.UserMessage("only")}, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestCanonicalSize(t *testing.T) {
	assert.Equal(t, len(`{"role":"user","content":"hi"}`), canonicalSize(provider.UserMessage("hi")))
	assert.Equal(t, len(`{"role":"model","content":"ok"}`), canonicalSize(provider.ModelMessage("ok")))
}

func genHistory() *rapid.Generator[[]provider.Message] {
	return rapid.Custom(func(t *rapid.T) []provider.Message {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		msgs := make([]provider.Message, n)
		for i := range msgs {
			text := rapid.String().Draw(t, "text")
			if rapid.Bool().Draw(t, "user") {
				msgs[i] = provider.UserMessage(text)
			} else {
				msgs[i] = provider.ModelMessage(text)
			}
		}
		return msgs
	})
}

func TestProperty_FindSplitIndex_InRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		history := genHistory().Draw(rt, "history")
		f := rapid.Float64Range(1e-9, 1-1e-9).Draw(rt, "fraction")

		idx, err := FindSplitIndex(history, f)
		require.NoError(rt, err)
		if idx < 0 || idx > len(history) {
			rt.Fatalf("split index %d outside [0, %d]", idx, len(history))
		}
	})
}

func TestProperty_FindSplitIndex_MonotonicInFraction(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		history := genHistory().Draw(rt, "history")
		a := rapid.Float64Range(1e-9, 1-1e-9).Draw(rt, "a")
		b := rapid.Float64Range(1e-9, 1-1e-9).Draw(rt, "b")
		if a > b {
			a, b = b, a
		}
		ia, err := FindSplitIndex(history, a)
		require.NoError(rt, err)
		ib, err := FindSplitIndex(history, b)
		require.NoError(rt, err)
		if ia > ib {
			rt.Fatalf("split(%v)=%d > split(%v)=%d", a, ia, b, ib)
		}
	})
}

func TestProperty_Decide_SplitInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		history := genHistory().Draw(rt, "history")
		f := rapid.Float64Range(0.01, 0.99).Draw(rt, "threshold")
		acc := &stubAccountant{total: rapid.IntRange(0, 1000).Draw(rt, "total"), limit: 100}

		d, err := NewPlanner(acc, nil, nil).Decide(history, f, "m", rapid.Bool().Draw(rt, "force"))
		require.NoError(rt, err)
		if d.SplitIndex < 0 || d.SplitIndex > len(history) {
			rt.Fatalf("split index %d outside [0, %d]", d.SplitIndex, len(history))
		}
	})
}
