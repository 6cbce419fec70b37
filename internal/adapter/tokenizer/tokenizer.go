// Package tokenizer provides token counters for context budgeting.
package tokenizer

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
)

// DefaultEncoding is the BPE used when none is configured.
const DefaultEncoding = "cl100k_base"

var (
	_ domain.TokenCounter = (*TiktokenCounter)(nil)
	_ domain.TokenCounter = EstimateCounter{}
)

// TiktokenCounter counts tokens with a tiktoken BPE encoding.
type TiktokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads encoding. Loading may fetch the BPE ranks on
// first use; set TIKTOKEN_CACHE_DIR to reuse them offline.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements domain.TokenCounter.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates one token per four characters.
type EstimateCounter struct{}

// Count implements domain.TokenCounter.
func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// NewCounter returns a tiktoken counter for encoding, or EstimateCounter
// when the encoding cannot be loaded.
func NewCounter(encoding string, l *slog.Logger) domain.TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	c, err := NewTiktokenCounter(encoding)
	if err != nil {
		logger.Component(l, "tokenizer").Warn("tiktoken unavailable, estimating tokens from length",
			"encoding", encoding, "error", err)
		return EstimateCounter{}
	}
	return c
}
