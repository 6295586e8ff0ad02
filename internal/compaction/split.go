package compaction

import (
	"encoding/json"
	"fmt"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// FindSplitIndex returns the boundary, in history positions, up to which a
// compactor should summarize.
//
// Each message weighs the byte length of its canonical JSON form. The result
// is the index of the first message at which the running weight reaches
// fraction of the total, so it always lies in [0, len(history)]. An empty
// history yields 0 whatever the fraction.
func FindSplitIndex(history []provider.Message, fraction float64) (int, error) {
	if len(history) == 0 {
		return 0, nil
	}
	if err := validateFraction(fraction); err != nil {
		return 0, err
	}

	weights := make([]int, len(history))
	total := 0
	for i, msg := range history {
		weights[i] = canonicalSize(msg)
		total += weights[i]
	}

	target := fraction * float64(total)
	running := 0
	for i, w := range weights {
		running += w
		if float64(running) >= target {
			return i, nil
		}
	}
	return len(history), nil
}

func validateFraction(fraction float64) error {
	// NaN fails both comparisons and is rejected too.
	if !(fraction > 0 && fraction < 1) {
		return fmt.Errorf("%w: %v", ErrInvalidFraction, fraction)
	}
	return nil
}

func canonicalSize(msg provider.Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		return len(msg.Text())
	}
	return len(data)
}
