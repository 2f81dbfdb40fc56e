package generator

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	encOnce sync.Once
	enc     tokenizer.Codec
)

// CountTokens counts cl100k_base tokens in text, falling back to the
// standard chars/4 estimate if the codec cannot be loaded or encoding
// fails. An estimate is always better than failing a trial over token
// accounting.
func CountTokens(text string) int {
	encOnce.Do(func() {
		enc, _ = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if enc != nil {
		if ids, _, err := enc.Encode(text); err == nil {
			return len(ids)
		}
	}
	return len(text) / 4
}
