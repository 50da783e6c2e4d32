package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TiktokenCounter counts tokens with a BPE vocabulary. Open-weight models
// served locally (llama, mistral, qwen) have their own vocabularies; for
// them cl100k_base is used and the count is flagged as estimated.
type TiktokenCounter struct {
	exact      *ModelMatcher
	approx     *ModelMatcher
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
}

// NewTiktokenCounter creates a new tiktoken-backed counter.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		exact: NewModelMatcher(
			[]string{"gpt-4o", "gpt-4.1", "gpt-4", "gpt-3.5", "o1", "o3", "o4"},
			nil,
		),
		approx: NewModelMatcher(
			[]string{"llama", "mistral", "mixtral", "qwen", "gemma", "phi", "deepseek"},
			nil,
		),
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// SupportsModel reports whether the counter knows the model family.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.exact.Matches(model) || c.approx.Matches(model)
}

// CountText counts tokens for a plain text string.
func (c *TiktokenCounter) CountText(model, text string) (Count, error) {
	codec, err := c.getCodec(modelToEncoding(model))
	if err != nil {
		return Count{}, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return Count{}, fmt.Errorf("encode text: %w", err)
	}
	return Count{
		Tokens:    len(ids),
		Model:     model,
		Estimated: !c.exact.Matches(model),
	}, nil
}

func (c *TiktokenCounter) getCodec(encoding tokenizer.Encoding) (tokenizer.Codec, error) {
	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// modelToEncoding maps model names to encoding names.
//
// Encoding reference:
// - O200kBase: GPT-4.1, GPT-4o, O1, O3, O4-mini
// - Cl100kBase: GPT-4, GPT-3.5-turbo and every approximated model
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	default:
		return tokenizer.Cl100kBase
	}
}
