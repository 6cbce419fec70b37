package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// maxSSELine bounds one SSE line.
const maxSSELine = 1 << 20

// lineParser converts one SSE data payload into a text fragment. done
// reports that the backend signalled completion. A nil error with an empty
// fragment skips the line.
type lineParser func(data []byte) (fragment string, done bool, err error)

// sseStream is a pull-based domain.TokenStream over a Server-Sent Events
// body. Cancelling the context given to newSSEStream closes the body, which
// unblocks a pending read.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	parse   lineParser
	stop    func() bool

	mu   sync.Mutex
	done bool
	once sync.Once
}

func newSSEStream(ctx context.Context, body io.ReadCloser, parse lineParser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	s := &sseStream{body: body, scanner: scanner, parse: parse}
	s.stop = context.AfterFunc(ctx, func() { _ = body.Close() })
	return s
}

// Next returns the next non-empty fragment, or io.EOF once the backend sent
// its terminator or closed the body cleanly.
func (s *sseStream) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				return "", fmt.Errorf("read stream: %w", err)
			}
			s.done = true
			return "", io.EOF
		}

		line := s.scanner.Bytes()
		// Skip blank lines, comments and non-data fields.
		if len(line) == 0 || line[0] == ':' || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return "", io.EOF
		}

		frag, done, err := s.parse(data)
		if err != nil {
			s.done = true
			return "", err
		}
		if done {
			s.done = true
		}
		if frag != "" {
			return frag, nil
		}
	}
}

// Close releases the body. Safe to call more than once.
func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		err = s.body.Close()
	})
	return err
}
