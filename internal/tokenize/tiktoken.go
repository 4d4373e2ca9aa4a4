package tokenize

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TikToken counts tokens with a BPE encoding.
type TikToken struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTikToken loads the named encoding (e.g. cl100k_base).
func NewTikToken(encoding string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding %s: %w", encoding, err)
	}
	return &TikToken{name: encoding, enc: enc}, nil
}

func (t *TikToken) Name() string { return t.name }

func (t *TikToken) TokenLength(s string) int {
	if s == "" {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}

func (t *TikToken) TakeFirstTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= n {
		return s
	}
	return t.enc.Decode(tokens[:n])
}

func (t *TikToken) TakeLastTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= n {
		return s
	}
	return t.enc.Decode(tokens[len(tokens)-n:])
}
