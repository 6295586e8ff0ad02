package provider

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

// --- Provider metadata tests ---

func TestOpenAIProvider_Metadata(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o", name: "openai"}
	if p.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", p.Name())
	}
	if p.DefaultModel() != "gpt-4o" {
		t.Errorf("expected model 'gpt-4o', got %q", p.DefaultModel())
	}
}

func TestAnthropicProvider_Metadata(t *testing.T) {
	p := &AnthropicProvider{model: "claude-sonnet-4-20250514"}
	if p.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", p.Name())
	}
	if p.DefaultModel() != "claude-sonnet-4-20250514" {
		t.Errorf("expected model 'claude-sonnet-4-20250514', got %q", p.DefaultModel())
	}
}

// --- OpenAI provider name detection ---

func TestOpenAIProvider_NameDetection(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{"", "openai"},
		{"https://api.deepseek.com/v1", "deepseek"},
		{"http://localhost:11434/v1", "ollama"},
		{"https://generativelanguage.googleapis.com/v1beta/openai/", "gemini"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/v1", "qwen"},
		{"https://custom.api.com/v1", "openai"},
	}
	for _, tt := range tests {
		p := NewOpenAIProvider("test-key", tt.baseURL, "test-model")
		if p.Name() != tt.expected {
			t.Errorf("baseURL=%q: expected name %q, got %q", tt.baseURL, tt.expected, p.Name())
		}
	}
}

func TestOpenAIProvider_BuildMessages(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o"}
	req := &ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []Message{UserMessage("hi"), ModelMessage("hello")},
	}
	params, err := p.buildMessages(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("expected system + 2 messages, got %d", len(params))
	}
	if params[0].OfSystem == nil || params[1].OfUser == nil || params[2].OfAssistant == nil {
		t.Errorf("unexpected param kinds: %+v", params)
	}

	if _, err := p.buildMessages(&ChatRequest{Messages: []Message{{}}}); err == nil {
		t.Error("expected error for zero-value message")
	}
}

func TestAnthropicProvider_BuildMessages(t *testing.T) {
	p := &AnthropicProvider{model: "claude-sonnet-4-20250514"}
	params, err := p.buildMessages([]Message{UserMessage("hi"), ModelMessage("hello")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Role != "user" || params[1].Role != "assistant" {
		t.Errorf("unexpected roles %q, %q", params[0].Role, params[1].Role)
	}
}

func TestExtractReasoningContent(t *testing.T) {
	if got := extractReasoningContent(`{"reasoning_content":"thinking"}`); got != "thinking" {
		t.Errorf("expected 'thinking', got %q", got)
	}
	if got := extractReasoningContent(`{"content":"hi"}`); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := extractReasoningContent(`not json`); got != "" {
		t.Errorf("expected empty for invalid JSON, got %q", got)
	}
}

// --- Message types ---

func TestRole_String(t *testing.T) {
	if RoleUser.String() != "user" {
		t.Errorf("expected 'user', got %q", RoleUser)
	}
	if RoleModel.String() != "model" {
		t.Errorf("expected 'model', got %q", RoleModel)
	}
	if Role(0).String() != "unknown" {
		t.Errorf("zero role should be unknown, got %q", Role(0))
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"Human", RoleUser},
		{"model", RoleModel},
		{"assistant", RoleModel},
		{" ai ", RoleModel},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseRole(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseRole("system"); err == nil {
		t.Error("expected error for system role")
	}
}

func TestMessage_CanonicalJSON(t *testing.T) {
	data, err := json.Marshal(UserMessage("hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"role":"user","content":"hi"}` {
		t.Errorf("unexpected canonical form %s", data)
	}

	data, _ = json.Marshal(ModelMessage(""))
	if string(data) != `{"role":"model","content":""}` {
		t.Errorf("unexpected canonical form %s", data)
	}
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	var msgs []Message
	in := `[{"role":"human","content":"hi"},{"role":"assistant","content":null}]`
	if err := json.Unmarshal([]byte(in), &msgs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msgs[0] != UserMessage("hi") {
		t.Errorf("got %+v", msgs[0])
	}
	if msgs[1] != ModelMessage("") {
		t.Errorf("null content should decode to empty model text, got %+v", msgs[1])
	}

	var m Message
	if err := json.Unmarshal([]byte(`{"role":"tool","content":"x"}`), &m); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestMessage_UnmarshalYAML(t *testing.T) {
	in := `
- role: user
  content: hello
- role: model
  content: ~
`
	var msgs []Message
	if err := yaml.Unmarshal([]byte(in), &msgs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []Message{UserMessage("hello"), ModelMessage("")}
	if len(msgs) != len(want) || msgs[0] != want[0] || msgs[1] != want[1] {
		t.Errorf("got %+v, want %+v", msgs, want)
	}
}

func TestMessage_YAMLRoundTrip(t *testing.T) {
	in := []Message{UserMessage("q"), ModelMessage("")}
	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Message
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestCloneMessages(t *testing.T) {
	if CloneMessages(nil) != nil {
		t.Error("nil should stay nil")
	}
	src := []Message{UserMessage("a"), ModelMessage("b")}
	dst := CloneMessages(src)
	src[0] = UserMessage("changed")
	if dst[0] != UserMessage("a") {
		t.Errorf("clone observed mutation: %+v", dst[0])
	}
}

// --- Event types ---

func TestEventTypes(t *testing.T) {
	if EventTextDelta != 0 {
		t.Error("EventTextDelta should be 0")
	}
	if EventDone != 1 {
		t.Error("EventDone should be 1")
	}
	if EventError != 2 {
		t.Error("EventError should be 2")
	}
}
