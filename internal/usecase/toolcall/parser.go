// Package toolcall extracts structured tool invocations from generated text.
package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
)

// fenceOpen matches an opening code fence and captures its info string and
// any text after it on the same line.
var fenceOpen = regexp.MustCompile("^\\s*```+\\s*([A-Za-z_][\\w-]*)?\\s*(.*)$")

// acceptedInfo lists fence info strings that may carry a tool call.
var acceptedInfo = map[string]bool{"": true, "tool_call": true, "tool": true, "json": true}

// Options configures a Parser.
type Options struct {
	// RepairJSON retries malformed blocks after running them through jsonrepair.
	RepairJSON bool
	Logger     *slog.Logger
}

// Skip records a block that looked like a tool call but was not accepted.
type Skip struct {
	Block  int    `json:"block"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Result is the outcome of parsing one turn.
type Result struct {
	Calls   []domain.ToolCall
	Skipped []Skip
}

// Parser is stateless apart from its configuration and safe for concurrent use.
type Parser struct {
	known  map[domain.ToolName]bool
	repair bool
	logger *slog.Logger
}

// New creates a parser accepting only the named tools.
func New(known []domain.ToolName, opts Options) *Parser {
	k := make(map[domain.ToolName]bool, len(known))
	for _, n := range known {
		k[n] = true
	}
	return &Parser{known: k, repair: opts.RepairJSON, logger: logger.Component(opts.Logger, "toolcall")}
}

// NewFromSchemas creates a parser accepting the tools described by schemas.
func NewFromSchemas(schemas []domain.ToolSchema, opts Options) *Parser {
	names := make([]domain.ToolName, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return New(names, opts)
}

type wireCall struct {
	Tool       *string        `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// Parse returns the tool calls found in text, in document order. Invalid
// JSON and unknown tools are reported in Skipped and never fail the parse.
func (p *Parser) Parse(text string) Result {
	var res Result
	for i, blk := range fencedBlocks(text) {
		if !acceptedInfo[strings.ToLower(blk.info)] {
			continue
		}
		call, err := p.decode(blk.body)
		switch {
		case errors.Is(err, errNotToolCall):
			continue
		case err != nil:
			p.logger.Debug("tool call skipped", "block", i, "error", err)
			res.Skipped = append(res.Skipped, Skip{Block: i, Reason: err.Error(), Err: err})
			continue
		}
		res.Calls = append(res.Calls, call)
	}
	return res
}

var errNotToolCall = errors.New("block is not a tool call")

func (p *Parser) decode(body string) (domain.ToolCall, error) {
	raw := strings.TrimSpace(body)
	if !strings.HasPrefix(raw, "{") {
		return domain.ToolCall{}, errNotToolCall
	}

	var w wireCall
	if err := unmarshal([]byte(raw), &w); err != nil {
		if !p.repair || !repairable(err) {
			return domain.ToolCall{}, fmt.Errorf("%w: %v", domain.ErrToolParse, err)
		}
		fixed, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return domain.ToolCall{}, fmt.Errorf("%w: repair: %v", domain.ErrToolParse, rerr)
		}
		w = wireCall{}
		if err := unmarshal([]byte(fixed), &w); err != nil {
			return domain.ToolCall{}, fmt.Errorf("%w: %v", domain.ErrToolParse, err)
		}
	}

	if w.Tool == nil {
		return domain.ToolCall{}, errNotToolCall
	}
	name := domain.ToolName(strings.TrimSpace(*w.Tool))
	if !p.known[name] {
		return domain.ToolCall{}, fmt.Errorf("%w: %q", domain.ErrUnknownTool, name)
	}
	if w.Parameters == nil {
		w.Parameters = map[string]any{}
	}
	return domain.ToolCall{Tool: name, Parameters: w.Parameters}, nil
}

var errTrailingData = errors.New("unexpected data after JSON object")

// unmarshal decodes a single JSON value and rejects trailing data.
func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("%w at offset %d", errTrailingData, dec.InputOffset())
	}
	return nil
}

// repairable reports whether err is a malformed-JSON error worth repairing.
// Truncated input surfaces as io.ErrUnexpectedEOF from the decoder.
func repairable(err error) bool {
	var syn *json.SyntaxError
	return errors.As(err, &syn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errTrailingData)
}

type block struct {
	info string
	body string
}

// fencedBlocks splits text into closed code fences. An unterminated fence
// at the end of the text is ignored.
func fencedBlocks(text string) []block {
	var (
		out  []block
		open bool
		info string
		body strings.Builder
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !open {
			m := fenceOpen.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			// Single-line form: ```tool_call {...}```
			if i := strings.Index(m[2], "```"); i >= 0 {
				out = append(out, block{info: m[1], body: m[2][:i]})
				continue
			}
			open = true
			info = m[1]
			body.Reset()
			body.WriteString(m[2])
			continue
		}
		if i := strings.Index(line, "```"); i >= 0 {
			body.WriteString("\n")
			body.WriteString(line[:i])
			out = append(out, block{info: info, body: body.String()})
			open = false
			continue
		}
		body.WriteString("\n")
		body.WriteString(line)
	}
	return out
}
