package session

import (
	"sync"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// MessageLog is the ordered record of every message exchanged in one session.
// Messages are never reordered; the only wholesale change is Replace.
type MessageLog struct {
	mu       sync.Mutex
	messages []provider.Message
}

// NewMessageLog returns a log seeded with a copy of initial.
func NewMessageLog(initial []provider.Message) *MessageLog {
	return &MessageLog{messages: provider.CloneMessages(initial)}
}

// Append adds msg at the end of the log.
func (l *MessageLog) Append(msg provider.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

// Snapshot returns an independent copy of the log.
func (l *MessageLog) Snapshot() []provider.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return provider.CloneMessages(l.messages)
}

// Replace substitutes the whole log with a copy of msgs.
func (l *MessageLog) Replace(msgs []provider.Message) {
	next := provider.CloneMessages(msgs)
	l.mu.Lock()
	l.messages = next
	l.mu.Unlock()
}

func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}
