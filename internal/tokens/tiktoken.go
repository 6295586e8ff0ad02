package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/apexion-ai/reactagent/internal/provider"
)

// TiktokenCounter counts tokens with a BPE encoding. For non-OpenAI models the
// count is an approximation, but it is stable and monotonic.
type TiktokenCounter struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// EncodingForModel maps a model id to its tiktoken encoding name.
func EncodingForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

// NewTiktokenCounter creates a counter for the given model. The encoding is
// loaded lazily on first use.
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{encoding: EncodingForModel(model)}
}

func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// init lazily loads the encoding (may download BPE data on first use).
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("%w: load tiktoken encoding %s: %v", ErrAccountingUnavailable, t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(messages []provider.Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		// <|start|>role\ncontent<|end|>\n
		total += perMessageOverhead
		total += len(t.enc.Encode(msg.Role().String(), nil, nil))
		total += len(t.enc.Encode(msg.Text(), nil, nil))
	}
	if total > 0 {
		total += 3 // reply priming
	}
	return total, nil
}
