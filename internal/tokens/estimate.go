package tokens

import "github.com/apexion-ai/reactagent/internal/provider"

// perMessageOverhead approximates role markers and separators.
const perMessageOverhead = 4

// EstimateCounter is the rough chars/4 estimate. It never fails.
type EstimateCounter struct{}

func (EstimateCounter) Name() string { return "estimate" }

func (EstimateCounter) CountTokens(messages []provider.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		total += perMessageOverhead + EstimateText(msg.Text())
	}
	return total, nil
}

// EstimateText returns a rough token estimate for a string (chars / 4).
// Non-empty text counts at least one token.
func EstimateText(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}
