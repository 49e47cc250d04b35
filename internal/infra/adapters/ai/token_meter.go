package ai

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"mediaforge/internal/domain/ports/adapter"
)

var (
	_ adapter.PromptMeter = (*TokenMeter)(nil)
	_ adapter.PromptMeter = WordMeter{}
)

// TokenMeter counts BPE tokens with a tiktoken encoding.
type TokenMeter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenMeter loads the named encoding. The BPE ranks are fetched on first
// use and cached under TIKTOKEN_CACHE_DIR.
func NewTokenMeter(encoding string) (*TokenMeter, error) {
	enc, err := tiktoken.GetEncoding(orDefault(encoding, "cl100k_base"))
	if err != nil {
		return nil, err
	}
	return &TokenMeter{enc: enc}, nil
}

func (m *TokenMeter) Count(text string) int {
	return len(m.enc.Encode(text, nil, nil))
}

// WordMeter approximates tokens by whitespace-separated words. It is the
// fallback when no encoding can be loaded.
type WordMeter struct{}

func (WordMeter) Count(text string) int { return len(strings.Fields(text)) }
