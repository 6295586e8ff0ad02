// Package tokens estimates token usage of a conversation and looks up the
// context window capacity of a model.
package tokens

import (
	"errors"
	"fmt"

	"github.com/apexion-ai/reactagent/internal/provider"
)

var (
	// ErrAccountingUnavailable means a count or limit could not be produced.
	ErrAccountingUnavailable = errors.New("token accounting unavailable")

	// ErrUnknownModelLimit means no context window is known for the model.
	ErrUnknownModelLimit = errors.New("unknown model token limit")
)

// TokenAccountant estimates token counts for a list of messages and exposes a
// per-model context-window capacity.
//
// CountTokens must be monotonically non-decreasing as messages are appended
// to a fixed prefix. TokenLimit returns a positive capacity, or an error
// wrapping ErrUnknownModelLimit; it never falls back to a silent default.
type TokenAccountant interface {
	CountTokens(messages []provider.Message) (int, error)
	TokenLimit(modelID string) (int, error)
}

// Counter counts tokens for a list of messages.
type Counter interface {
	CountTokens(messages []provider.Message) (int, error)
	Name() string
}

// Accountant is the standard TokenAccountant: a Counter plus a Limits table.
type Accountant struct {
	counter Counter
	limits  *Limits
}

// NewAccountant combines counter and limits. A nil counter uses the chars/4
// estimate; nil limits know no model.
func NewAccountant(counter Counter, limits *Limits) *Accountant {
	if counter == nil {
		counter = EstimateCounter{}
	}
	if limits == nil {
		limits = NewLimits("", nil)
	}
	return &Accountant{counter: counter, limits: limits}
}

func (a *Accountant) CountTokens(messages []provider.Message) (int, error) {
	n, err := a.counter.CountTokens(messages)
	if err != nil {
		if errors.Is(err, ErrAccountingUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrAccountingUnavailable, a.counter.Name(), err)
	}
	return n, nil
}

func (a *Accountant) TokenLimit(modelID string) (int, error) {
	return a.limits.TokenLimit(modelID)
}

// CounterName reports which counter backs this accountant.
func (a *Accountant) CounterName() string { return a.counter.Name() }
