// Package streamfilter separates hidden reasoning from visible model output
// while text arrives in arbitrarily split fragments.
package streamfilter

import (
	"strings"
)

// State is the filter's position relative to reasoning markers.
type State int

const (
	// Outside is the initial state: text is visible.
	Outside State = iota
	// InsideReasoning means text is buffered as reasoning until the close marker.
	InsideReasoning
)

func (s State) String() string {
	if s == InsideReasoning {
		return "INSIDE_REASONING"
	}
	return "OUTSIDE"
}

// MarkerPair delimits one reasoning block.
type MarkerPair struct {
	Open  string
	Close string
}

// DefaultMarkers are the reasoning delimiters emitted by common local models.
var DefaultMarkers = []MarkerPair{
	{Open: "<thinking>", Close: "</thinking>"},
	{Open: "<think>", Close: "</think>"},
}

// Chunk is the output of one Write: text safe to show and reasoning text
// that arrived with the fragment.
type Chunk struct {
	Visible   string
	Reasoning string
}

// Filter is an incremental reasoning-marker state machine. It is owned by a
// single turn and is not safe for concurrent use.
type Filter struct {
	pairs []MarkerPair

	state   State
	active  int // index into pairs while InsideReasoning
	pending string
	// stripLeading trims whitespace off visible text right after a block closes.
	stripLeading bool

	block  strings.Builder // reasoning of the open block
	blocks []string        // closed blocks of this turn
}

// New creates a filter for the given marker pairs. Pairs with an empty
// marker are ignored; no usable pair means DefaultMarkers.
func New(pairs ...MarkerPair) *Filter {
	var usable []MarkerPair
	for _, p := range pairs {
		if p.Open != "" && p.Close != "" {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		usable = DefaultMarkers
	}
	return &Filter{pairs: usable}
}

// State returns the current state.
func (f *Filter) State() State { return f.state }

// Write consumes one fragment.
func (f *Filter) Write(fragment string) Chunk {
	buf := f.pending + fragment
	f.pending = ""

	var visible, reasoning strings.Builder
	for buf != "" {
		if f.state == Outside {
			idx, pair := f.findOpen(buf)
			if idx < 0 {
				keep := partialSuffix(buf, f.openMarkers())
				f.emit(&visible, buf[:len(buf)-keep])
				f.pending = buf[len(buf)-keep:]
				break
			}
			f.emit(&visible, buf[:idx])
			buf = buf[idx+len(f.pairs[pair].Open):]
			f.state = InsideReasoning
			f.active = pair
			continue
		}

		closeMarker := f.pairs[f.active].Close
		idx := strings.Index(buf, closeMarker)
		if idx < 0 {
			keep := partialSuffix(buf, []string{closeMarker})
			text := buf[:len(buf)-keep]
			f.block.WriteString(text)
			reasoning.WriteString(text)
			f.pending = buf[len(buf)-keep:]
			break
		}
		f.block.WriteString(buf[:idx])
		reasoning.WriteString(buf[:idx])
		f.blocks = append(f.blocks, f.block.String())
		f.block.Reset()
		buf = buf[idx+len(closeMarker):]
		f.state = Outside
		f.stripLeading = true
	}
	return Chunk{Visible: visible.String(), Reasoning: reasoning.String()}
}

// End finishes the turn. Held-back text is released as visible when
// outside a block; an unclosed block is discarded. The filter is left in
// Outside, with closed blocks still available from Reasoning.
func (f *Filter) End() Chunk {
	var out Chunk
	if f.state == Outside {
		var visible strings.Builder
		f.emit(&visible, f.pending)
		out.Visible = visible.String()
	}
	f.pending = ""
	f.block.Reset()
	f.state = Outside
	f.stripLeading = false
	return out
}

// Reasoning returns the closed reasoning blocks of the turn, concatenated
// in document order.
func (f *Filter) Reasoning() string {
	return strings.Join(f.blocks, "")
}

// Blocks returns the closed reasoning blocks of the turn.
func (f *Filter) Blocks() []string {
	out := make([]string, len(f.blocks))
	copy(out, f.blocks)
	return out
}

// Reset clears all state for a new turn.
func (f *Filter) Reset() {
	f.End()
	f.blocks = nil
}

func (f *Filter) emit(dst *strings.Builder, s string) {
	if f.stripLeading {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			return
		}
		f.stripLeading = false
	}
	dst.WriteString(s)
}

// findOpen returns the position and pair index of the earliest complete open
// marker in s. On a tie the longer marker wins.
func (f *Filter) findOpen(s string) (int, int) {
	bestIdx, bestPair := -1, -1
	for i, p := range f.pairs {
		idx := strings.Index(s, p.Open)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx || (idx == bestIdx && len(p.Open) > len(f.pairs[bestPair].Open)) {
			bestIdx, bestPair = idx, i
		}
	}
	return bestIdx, bestPair
}

func (f *Filter) openMarkers() []string {
	out := make([]string, len(f.pairs))
	for i, p := range f.pairs {
		out[i] = p.Open
	}
	return out
}

// partialSuffix returns the length of the longest suffix of s that is a
// strict prefix of one of the markers.
func partialSuffix(s string, markers []string) int {
	longest := 0
	for _, m := range markers {
		maxLen := min(len(m)-1, len(s))
		for n := maxLen; n > longest; n-- {
			if strings.HasSuffix(s, m[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}
