package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"maestro-ai/internal/domain"
)

// Per-turn overhead approximating the chat message framing tokens
// (role marker plus separators) that providers charge for.
const turnOverheadTokens = 4

// TiktokenCounter implements domain.TokenCounter using BPE encodings.
// Models without a registered encoding fall back to cl100k_base, which is
// close enough for the usage estimates recorded when a provider omits counts.
type TiktokenCounter struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given model.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load encoding: %w", err)
		}
	}
	return &TiktokenCounter{encoding: enc}, nil
}

// CountText implements domain.TokenCounter.
func (c *TiktokenCounter) CountText(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// CountTurns implements domain.TokenCounter. Each turn carries a fixed
// framing overhead on top of its content tokens.
func (c *TiktokenCounter) CountTurns(turns []domain.Turn) int {
	total := 0
	for _, t := range turns {
		total += c.CountText(t.Content) + turnOverheadTokens
	}
	return total
}

var _ domain.TokenCounter = (*TiktokenCounter)(nil)
