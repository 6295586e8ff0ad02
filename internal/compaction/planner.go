// Package compaction decides, from token accounting, whether conversation
// history must be compacted before the next request and where to split it.
//
// The planner never modifies history. Its Decision is advice for a compactor,
// which is the only component that replaces history content.
package compaction

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/apexion-ai/reactagent/internal/metrics"
	"github.com/apexion-ai/reactagent/internal/provider"
	"github.com/apexion-ai/reactagent/internal/tokens"
)

// ErrInvalidFraction is returned when a threshold or split fraction is
// outside the open interval (0, 1).
var ErrInvalidFraction = errors.New("fraction must be in (0, 1)")

// Action is the outcome of a compaction check.
type Action int

const (
	NoActionNeeded Action = iota
	CompactionRequired
)

func (a Action) String() string {
	switch a {
	case NoActionNeeded:
		return "no_action"
	case CompactionRequired:
		return "compact"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Decision is the planner's verdict for one evaluation.
//
// Warning is set when token accounting failed and the check was skipped or
// degraded; it is informational and never fails the send path.
type Decision struct {
	Action      Action
	SplitIndex  int
	TotalTokens int
	Warning     error
}

// Planner evaluates curated history against a TokenAccountant.
type Planner struct {
	accountant tokens.TokenAccountant
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewPlanner creates a planner. logger and collector may be nil.
func NewPlanner(accountant tokens.TokenAccountant, logger *zap.Logger, collector *metrics.Collector) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		accountant: accountant,
		logger:     logger.With(zap.String("component", "compaction")),
		metrics:    collector,
	}
}

// Decide reports whether history must be compacted for modelID.
//
// With force=false the history is compacted only once it reaches threshold
// times the model's token limit. With force=true the limit is not consulted.
// Invalid fractions are returned as errors; accounting failures degrade to
// NoActionNeeded (automatic check) with Decision.Warning set.
func (p *Planner) Decide(history []provider.Message, threshold float64, modelID string, force bool) (Decision, error) {
	if len(history) == 0 {
		return Decision{Action: NoActionNeeded}, nil
	}
	if err := validateFraction(threshold); err != nil {
		return Decision{}, err
	}

	total, err := p.accountant.CountTokens(history)
	if err != nil {
		warning := p.warn("count", modelID, err)
		if !force {
			p.metrics.RecordDecision(NoActionNeeded.String(), force, 0)
			return Decision{Action: NoActionNeeded, Warning: warning}, nil
		}
		// A forced compaction does not need the count to pick a split.
		return p.required(history, threshold, 0, force, warning)
	}

	if !force {
		capacity, err := p.accountant.TokenLimit(modelID)
		if err != nil {
			warning := p.warn("limit", modelID, err)
			p.metrics.RecordDecision(NoActionNeeded.String(), force, total)
			return Decision{Action: NoActionNeeded, TotalTokens: total, Warning: warning}, nil
		}
		if float64(total) < threshold*float64(capacity) {
			p.logger.Debug("history within budget",
				zap.Int("tokens", total),
				zap.Int("capacity", capacity),
				zap.Float64("threshold", threshold))
			p.metrics.RecordDecision(NoActionNeeded.String(), force, total)
			return Decision{Action: NoActionNeeded, TotalTokens: total}, nil
		}
	}

	return p.required(history, threshold, total, force, nil)
}

func (p *Planner) required(history []provider.Message, threshold float64, total int, force bool, warning error) (Decision, error) {
	split, err := FindSplitIndex(history, threshold)
	if err != nil {
		return Decision{}, err
	}
	p.logger.Info("compaction required",
		zap.Int("tokens", total),
		zap.Int("split_index", split),
		zap.Int("messages", len(history)),
		zap.Bool("forced", force))
	p.metrics.RecordDecision(CompactionRequired.String(), force, total)
	return Decision{
		Action:      CompactionRequired,
		SplitIndex:  split,
		TotalTokens: total,
		Warning:     warning,
	}, nil
}

// warn logs and counts an accounting failure and returns it as the warning.
// Errors that are neither an unknown limit nor already marked unavailable are
// wrapped with tokens.ErrAccountingUnavailable.
func (p *Planner) warn(stage, modelID string, err error) error {
	reason := "accounting_unavailable"
	switch {
	case errors.Is(err, tokens.ErrUnknownModelLimit):
		reason = "unknown_model_limit"
	case !errors.Is(err, tokens.ErrAccountingUnavailable):
		err = fmt.Errorf("%w: %w", tokens.ErrAccountingUnavailable, err)
	}
	p.logger.Warn("token accounting failed",
		zap.String("stage", stage),
		zap.String("model", modelID),
		zap.String("reason", reason),
		zap.Error(err))
	p.metrics.RecordAccountingWarning(reason)
	return err
}
