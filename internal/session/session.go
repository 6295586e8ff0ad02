// Package session coordinates one conversation: it owns the message log,
// curates it before every request, asks the compaction planner whether the
// history has outgrown the model, and streams replies from the provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apexion-ai/reactagent/internal/compaction"
	"github.com/apexion-ai/reactagent/internal/metrics"
	"github.com/apexion-ai/reactagent/internal/provider"
)

// ErrBusy is returned when an operation starts while another one is still
// evaluating or streaming on the same session.
var ErrBusy = errors.New("session is busy")

// ErrIncompleteStream is returned when the provider closes a reply stream
// without signalling completion.
var ErrIncompleteStream = errors.New("reply stream ended before completion")

// Phase is the session's position in the evaluate-then-act cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseEvaluating
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseStreaming:
		return "streaming"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Sink receives streamed reply text and session notices.
type Sink interface {
	TextDelta(delta string)
	SystemMessage(msg string)
}

type discardSink struct{}

func (discardSink) TextDelta(string)     {}
func (discardSink) SystemMessage(string) {}

// Options configures a Session. Provider and Planner are required.
type Options struct {
	Provider  provider.Provider
	Planner   *compaction.Planner
	Compactor Compactor // nil = UnsupportedCompactor

	Model        string // empty = provider default
	Threshold    float64
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int

	History []provider.Message // initial log content

	// MaxRetries bounds retries of transient request failures. 0 = default, <0 = none.
	MaxRetries int
	// CompactOnOverflow runs a forced compaction and resends once when the
	// provider rejects a request as too long for its context window.
	CompactOnOverflow bool

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Preparation is the outcome of readying the history for a request.
type Preparation struct {
	History  []provider.Message // what to send
	Decision compaction.Decision
	Dropped  int  // messages left out by curation
	Replaced bool // the log was replaced by the compactor
	// CompactErr is set when an automatic compaction failed; the
	// un-compacted curated history is sent instead.
	CompactErr error
}

// Reply is the result of one successful exchange.
type Reply struct {
	Text        string
	Usage       provider.Usage
	Preparation Preparation
}

// Session holds the conversation state for one chat.
type Session struct {
	ID        string
	CreatedAt time.Time

	log   *MessageLog
	phase atomic.Int32

	provider     provider.Provider
	planner      *compaction.Planner
	compactor    Compactor
	model        string
	threshold    float64
	systemPrompt string
	temperature  *float64
	maxTokens    int

	maxRetries        int
	retryDelay        func(attempt int) time.Duration
	compactOnOverflow bool

	logger  *zap.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	lastUsage provider.Usage
	usage     UsageTracker
}

// New creates a session with a fresh ID.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	compactor := opts.Compactor
	if compactor == nil {
		compactor = UnsupportedCompactor{}
	}
	model := opts.Model
	if model == "" && opts.Provider != nil {
		model = opts.Provider.DefaultModel()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	maxRetries := opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	id := uuid.NewString()
	return &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		log:          NewMessageLog(opts.History),
		provider:     opts.Provider,
		planner:      opts.Planner,
		compactor:    compactor,
		model:        model,
		threshold:    opts.Threshold,
		systemPrompt: opts.SystemPrompt,
		temperature:  opts.Temperature,
		maxTokens:    maxTokens,
		maxRetries:   maxRetries,
		retryDelay:   retryDelay,

		compactOnOverflow: opts.CompactOnOverflow,
		logger:            logger.With(zap.String("session", id)),
		metrics:           opts.Metrics,
	}
}

func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) Model() string { return s.model }

func (s *Session) Threshold() float64 { return s.threshold }

// Len is the raw log length, before curation.
func (s *Session) Len() int { return s.log.Len() }

// LastUsage is the token usage the provider reported for the last reply.
func (s *Session) LastUsage() provider.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsage
}

// Usage is the running token usage of the session.
func (s *Session) Usage() *UsageTracker { return &s.usage }

// Snapshot returns a copy of the raw log.
func (s *Session) Snapshot() []provider.Message { return s.log.Snapshot() }

// History returns the curated view of the log.
func (s *Session) History() []provider.Message { return Curate(s.log.Snapshot()) }

func (s *Session) enter() bool {
	return s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseEvaluating))
}

func (s *Session) leave() { s.phase.Store(int32(PhaseIdle)) }

// Clear empties the log.
func (s *Session) Clear() error {
	if !s.enter() {
		return ErrBusy
	}
	defer s.leave()
	s.log.Replace(nil)
	s.mu.Lock()
	s.lastUsage = provider.Usage{}
	s.mu.Unlock()
	s.usage.Reset()
	return nil
}

// Prepare curates the log and runs the compaction check. With force the
// model limit is not consulted and a compactor failure is returned as an
// error; otherwise a failed compaction is reported in CompactErr.
func (s *Session) Prepare(ctx context.Context, force bool) (Preparation, error) {
	if !s.enter() {
		return Preparation{}, ErrBusy
	}
	defer s.leave()
	return s.prepare(ctx, force, discardSink{})
}

// Compact forces a compaction of the current history.
func (s *Session) Compact(ctx context.Context) (Preparation, error) {
	return s.Prepare(ctx, true)
}

func (s *Session) prepare(ctx context.Context, force bool, sink Sink) (Preparation, error) {
	curated, dropped := CurateWithStats(s.log.Snapshot())
	if dropped > 0 {
		s.logger.Info("curation dropped messages", zap.Int("dropped", dropped), zap.Int("kept", len(curated)))
		s.metrics.RecordCurationDrops(dropped)
	}
	prep := Preparation{History: curated, Dropped: dropped}

	// A threshold of 1 turns the automatic check off.
	if !force && s.threshold >= 1 {
		return prep, nil
	}

	decision, err := s.planner.Decide(curated, s.threshold, s.model, force)
	if err != nil {
		return Preparation{}, err
	}
	prep.Decision = decision
	if decision.Warning != nil {
		sink.SystemMessage("Token accounting unavailable: " + decision.Warning.Error())
	}
	if decision.Action != compaction.CompactionRequired {
		return prep, nil
	}

	sink.SystemMessage("Compacting context (summarizing conversation)...")
	replacement, err := s.compactor.Compact(ctx, curated, decision.SplitIndex)
	if errors.Is(err, errNothingToCompact) {
		s.metrics.RecordCompaction("skipped")
		s.logger.Info("nothing to compact", zap.Int("messages", len(curated)), zap.Bool("forced", force))
		return prep, nil
	}
	if err != nil {
		s.metrics.RecordCompaction("failed")
		if force {
			return Preparation{}, fmt.Errorf("compact history: %w", err)
		}
		s.logger.Warn("automatic compaction failed", zap.Error(err))
		sink.SystemMessage("Compact failed: " + err.Error())
		prep.CompactErr = err
		return prep, nil
	}

	s.log.Replace(replacement)
	s.metrics.RecordCompaction("ok")
	s.logger.Info("history compacted",
		zap.Int("before", len(curated)),
		zap.Int("after", len(replacement)),
		zap.Int("split_index", decision.SplitIndex),
		zap.Bool("forced", force))
	sink.SystemMessage(fmt.Sprintf("Context compacted: %d → %d messages.", len(curated), len(replacement)))

	prep.History = provider.CloneMessages(replacement)
	prep.Replaced = true
	return prep, nil
}

// Send commits text as a user message, prepares the history and streams the
// model's reply into sink. The reply is committed only when the stream
// completes; a cancelled or failed stream leaves the user message alone in
// the log. sink may be nil.
func (s *Session) Send(ctx context.Context, text string, sink Sink) (Reply, error) {
	if sink == nil {
		sink = discardSink{}
	}
	if !s.enter() {
		return Reply{}, ErrBusy
	}
	defer s.leave()

	s.log.Append(provider.UserMessage(text))

	prep, err := s.prepare(ctx, false, sink)
	if err != nil {
		return Reply{}, err
	}

	s.phase.Store(int32(PhaseStreaming))
	events, prep, err := s.request(ctx, prep, sink)
	if err != nil {
		return Reply{}, err
	}

	var content strings.Builder
	var usage provider.Usage
	var streamErr error
	done := false
	for event := range events {
		if ctx.Err() != nil {
			break
		}
		switch event.Type {
		case provider.EventTextDelta:
			content.WriteString(event.TextDelta)
			sink.TextDelta(event.TextDelta)
		case provider.EventDone:
			done = true
			if event.Usage != nil {
				usage = *event.Usage
			}
		case provider.EventError:
			streamErr = event.Error
		}
		if streamErr != nil {
			break
		}
	}
	go drain(events)

	if err := ctx.Err(); err != nil {
		s.logger.Info("reply cancelled", zap.Int("partial_bytes", content.Len()))
		return Reply{}, err
	}
	if streamErr != nil {
		return Reply{}, fmt.Errorf("stream: %w", streamErr)
	}
	if !done {
		return Reply{}, ErrIncompleteStream
	}

	full := content.String()
	if full == "" {
		s.logger.Warn("model returned an empty reply")
	}
	s.log.Append(provider.ModelMessage(full))

	s.mu.Lock()
	s.lastUsage = usage
	s.mu.Unlock()
	s.usage.Record(s.model, usage)

	return Reply{Text: full, Usage: usage, Preparation: prep}, nil
}

// request opens the reply stream, retrying transient failures. A context
// overflow triggers one forced compaction when enabled. Providers usually
// report HTTP failures as the first stream event rather than from Chat, so an
// error that arrives before any content is handled the same way.
func (s *Session) request(ctx context.Context, prep Preparation, sink Sink) (<-chan provider.Event, Preparation, error) {
	overflowHandled := false
	for attempt := 0; ; attempt++ {
		req := &provider.ChatRequest{
			Model:        s.model,
			Messages:     prep.History,
			SystemPrompt: s.systemPrompt,
			MaxTokens:    s.maxTokens,
			Temperature:  s.temperature,
		}
		events, err := s.provider.Chat(ctx, req)
		if err == nil {
			events, err = firstEvent(ctx, events)
			if err == nil {
				return events, prep, nil
			}
		}
		if ctx.Err() != nil {
			return nil, prep, ctx.Err()
		}

		if IsContextOverflow(err) && s.compactOnOverflow && !overflowHandled && s.threshold < 1 {
			overflowHandled = true
			s.logger.Warn("context overflow, compacting", zap.Error(err))
			s.phase.Store(int32(PhaseEvaluating))
			compacted, cerr := s.prepare(ctx, true, sink)
			s.phase.Store(int32(PhaseStreaming))
			if cerr != nil {
				return nil, prep, fmt.Errorf("LLM call failed: %w (compaction: %v)", err, cerr)
			}
			prep = compacted
			continue
		}

		if attempt >= s.maxRetries || !isRetryableError(err) {
			return nil, prep, fmt.Errorf("LLM call failed: %w", err)
		}
		delay := s.retryDelay(attempt)
		sink.SystemMessage(formatRetryMessage(attempt, s.maxRetries, delay, err))
		s.logger.Info("retrying request", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, prep, err
		}
	}
}

// firstEvent waits for the first event of a stream. If it is an error, the
// rest of the stream is drained and the error returned. Otherwise the event
// is put back in front of the remaining ones.
func firstEvent(ctx context.Context, events <-chan provider.Event) (<-chan provider.Event, error) {
	var first provider.Event
	var ok bool
	select {
	case first, ok = <-events:
	case <-ctx.Done():
		go drain(events)
		return nil, ctx.Err()
	}
	if !ok {
		return events, nil
	}
	if first.Type == provider.EventError && first.Error != nil && ctx.Err() == nil {
		go drain(events)
		return nil, first.Error
	}
	out := make(chan provider.Event, 1)
	out <- first
	go func() {
		defer close(out)
		for event := range events {
			out <- event
		}
	}()
	return out, nil
}

// SendMessage is Send without streaming output.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	reply, err := s.Send(ctx, text, nil)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}
