package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCounter(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateCounter{}.Count(tt.text), tt.text)
	}
}

func TestNewCounterFallsBackOnUnknownEncoding(t *testing.T) {
	c := NewCounter("no_such_encoding", nil)
	assert.IsType(t, EstimateCounter{}, c)
	assert.Equal(t, 2, c.Count("12345678"))
}
