package tokens

import (
	"fmt"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// Limits resolves the context window of a model: config overrides first,
// then the provider's built-in model table.
type Limits struct {
	providerName string
	overrides    map[string]int
}

// NewLimits builds a limits table. overrides maps model ids or glob patterns
// to context window sizes; it is copied.
func NewLimits(providerName string, overrides map[string]int) *Limits {
	o := make(map[string]int, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &Limits{providerName: providerName, overrides: o}
}

func (l *Limits) TokenLimit(modelID string) (int, error) {
	d := provider.DetectContextWindowWithConfig(l.providerName, modelID, l.overrides)
	if !d.Known || d.Tokens <= 0 {
		return 0, fmt.Errorf("%w: %q (%s)", ErrUnknownModelLimit, modelID, d.Reason)
	}
	return d.Tokens, nil
}
