package provider

import (
	"path"
	"strings"
)

// ContextWindowDecision describes the context window detected for a model and
// how it was found.
type ContextWindowDecision struct {
	Tokens int
	Known  bool
	Reason string
}

// knownContextWindows maps model-family keywords to their context window.
// Order matters: more specific keywords come first.
var knownContextWindows = []struct {
	keyword string
	tokens  int
}{
	{"gpt-4o", 128000},
	{"gpt-4.1", 1047576},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5", 16385},
	{"o1", 200000},
	{"o3", 200000},
	{"claude", 200000},
	{"gemini", 1048576},
	{"deepseek", 64000},
	{"qwen", 32768},
	{"llama3", 131072},
	{"llama-3", 131072},
	{"mistral", 32768},
	{"gemma", 8192},
}

// DetectContextWindow looks up the context window for a model id.
//
// It reports Known=false when the model family is not recognized, so callers
// can surface the missing limit instead of silently assuming one.
func DetectContextWindow(providerName, model string) ContextWindowDecision {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return ContextWindowDecision{Reason: "empty model id"}
	}
	// Ollama tags look like "llama3.2:3b"; the family is before the colon.
	if i := strings.IndexByte(m, ':'); i > 0 {
		m = m[:i]
	}

	for _, kw := range knownContextWindows {
		if strings.Contains(m, kw.keyword) {
			return ContextWindowDecision{
				Tokens: kw.tokens,
				Known:  true,
				Reason: "model family " + kw.keyword,
			}
		}
	}

	if strings.ToLower(strings.TrimSpace(providerName)) == "anthropic" {
		return ContextWindowDecision{Tokens: 200000, Known: true, Reason: "anthropic provider default"}
	}

	return ContextWindowDecision{Reason: "unknown model family"}
}

// DetectContextWindowWithConfig applies user-configured limits before falling
// back to DetectContextWindow.
//
// Priority:
// 1) exact match in overrides
// 2) glob match in overrides (e.g. "llama3*")
// 3) built-in detection
func DetectContextWindowWithConfig(providerName, model string, overrides map[string]int) ContextWindowDecision {
	if len(overrides) > 0 {
		rules := make([]string, 0, len(overrides))
		for rule := range overrides {
			rules = append(rules, rule)
		}
		if rule, ok := matchModelList(model, rules); ok && overrides[rule] > 0 {
			return ContextWindowDecision{
				Tokens: overrides[rule],
				Known:  true,
				Reason: "config model_limits rule " + rule,
			}
		}
	}
	return DetectContextWindow(providerName, model)
}

// matchModelList returns the first rule matching model. Exact rules win over
// glob rules so that "llama3:70b" can override a broader "llama3*".
func matchModelList(model string, rules []string) (string, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, raw := range rules {
		if strings.ToLower(strings.TrimSpace(raw)) == m && m != "" {
			return raw, true
		}
	}
	best := ""
	for _, raw := range rules {
		rule := strings.ToLower(strings.TrimSpace(raw))
		if rule == "" || !isGlobRule(rule) {
			continue
		}
		if ok, _ := path.Match(rule, m); ok {
			// Longest pattern wins; map iteration order must not matter.
			if len(raw) > len(best) || (len(raw) == len(best) && raw < best) {
				best = raw
			}
		}
	}
	return best, best != ""
}

func isGlobRule(rule string) bool {
	return strings.ContainsAny(rule, "*?[")
}
