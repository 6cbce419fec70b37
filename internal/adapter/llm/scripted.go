package llm

import (
	"context"
	"io"
	"sync"
	"time"

	"lumen-agent/internal/domain"
)

// Compile-time interface assertion.
var _ domain.Generator = (*ScriptedGenerator)(nil)

// defaultChunkRunes is the fragment size of scripted replies.
const defaultChunkRunes = 4

// ScriptedOptions tunes how scripted replies are streamed.
type ScriptedOptions struct {
	ChunkRunes int           // runes per fragment, default 4
	Delay      time.Duration // pause before each fragment
}

// ScriptedGenerator replays canned replies in order and cycles when they
// run out. It backs offline demos and end-to-end tests.
type ScriptedGenerator struct {
	opts ScriptedOptions

	mu       sync.Mutex
	replies  []string
	next     int
	requests []domain.GenerationRequest
}

// NewScriptedGenerator creates a generator replaying replies.
func NewScriptedGenerator(replies []string, opts ScriptedOptions) *ScriptedGenerator {
	if opts.ChunkRunes <= 0 {
		opts.ChunkRunes = defaultChunkRunes
	}
	if len(replies) == 0 {
		replies = []string{"I am running without a language model."}
	}
	return &ScriptedGenerator{opts: opts, replies: replies}
}

// Name implements domain.Generator.
func (g *ScriptedGenerator) Name() string { return "scripted" }

// Generate implements domain.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.TokenStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	reply := g.replies[g.next%len(g.replies)]
	g.next++
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	return &scriptedStream{fragments: chunkRunes(reply, g.opts.ChunkRunes), delay: g.opts.Delay}, nil
}

// Requests returns the requests received so far.
func (g *ScriptedGenerator) Requests() []domain.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.GenerationRequest(nil), g.requests...)
}

func chunkRunes(s string, n int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/n+1)
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}

type scriptedStream struct {
	mu        sync.Mutex
	fragments []string
	delay     time.Duration
	closed    bool
}

func (s *scriptedStream) Next(ctx context.Context) (string, error) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.fragments) == 0 {
		return "", io.EOF
	}
	frag := s.fragments[0]
	s.fragments = s.fragments[1:]
	return frag, nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
