package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role tags who produced a message. Only RoleUser and RoleModel exist; the
// zero value is not a valid role.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleModel
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleModel:
		return "model"
	}
	return "unknown"
}

// ParseRole accepts the canonical names plus the aliases used by
// OpenAI-style ("assistant") and LangChain-style ("human", "ai") transcripts.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "human":
		return RoleUser, nil
	case "model", "assistant", "ai":
		return RoleModel, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Message is a single immutable message in the conversation history.
// It holds no pointers, so copying the value copies the message.
type Message struct {
	role Role
	text string
}

// UserMessage builds a message authored by the user.
func UserMessage(text string) Message {
	return Message{role: RoleUser, text: text}
}

// ModelMessage builds a message produced by the model. Empty text is allowed
// here; whether it is usable is decided at curation time.
func ModelMessage(text string) Message {
	return Message{role: RoleModel, text: text}
}

func (m Message) Role() Role   { return m.role }
func (m Message) Text() string { return m.text }

// wireMessage is the canonical serialized form of a Message.
// Content is a pointer so that transcripts may carry an explicit null.
type wireMessage struct {
	Role    string  `json:"role" yaml:"role"`
	Content *string `json:"content" yaml:"content"`
}

// MarshalJSON encodes the canonical form {"role":...,"content":...}.
func (m Message) MarshalJSON() ([]byte, error) {
	text := m.text
	return json.Marshal(wireMessage{Role: m.role.String(), Content: &text})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return m.fromWire(w)
}

// MarshalYAML encodes the same shape as MarshalJSON.
func (m Message) MarshalYAML() (any, error) {
	text := m.text
	return wireMessage{Role: m.role.String(), Content: &text}, nil
}

func (m *Message) UnmarshalYAML(value *yaml.Node) error {
	var w wireMessage
	if err := value.Decode(&w); err != nil {
		return err
	}
	return m.fromWire(w)
}

func (m *Message) fromWire(w wireMessage) error {
	role, err := ParseRole(w.Role)
	if err != nil {
		return err
	}
	m.role = role
	m.text = ""
	if w.Content != nil {
		m.text = *w.Content
	}
	return nil
}

// CloneMessages returns an independent copy of msgs. A nil input stays nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
