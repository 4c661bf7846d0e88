package reasoning

import (
	"strings"

	"github.com/papercomputeco/yui/pkg/llm/delta"
)

// Phase is the lifecycle position of a Splitter.
type Phase int

const (
	// PhaseNoReasoningSeen: no tag-scanned content has arrived yet, or the
	// message bypasses tag scanning (plain model or API reasoning).
	PhaseNoReasoningSeen Phase = iota

	// PhaseTagScanning: content is accumulating as tentative reasoning while
	// waiting for a closing tag.
	PhaseTagScanning

	// PhaseTagFound: a closing tag split reasoning from content.
	PhaseTagFound

	// PhaseFinalized: Done or Error was applied. Further deltas are ignored.
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseNoReasoningSeen:
		return "no_reasoning_seen"
	case PhaseTagScanning:
		return "tag_scanning"
	case PhaseTagFound:
		return "tag_found"
	case PhaseFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Splitter holds the split state of one assistant message. It is not safe
// for concurrent use; each in-flight message owns its own Splitter.
type Splitter struct {
	tagScanning bool

	// all content delta text, append only
	raw          strings.Builder
	apiReasoning strings.Builder

	hasAPIReasoning bool
	closeTagFound   bool
	finalized       bool

	// Tag positions in raw, -1 until located. scanned is the raw length
	// already searched, so each delta only searches the appended suffix
	// plus a tag-length overlap.
	scanned  int
	openIdx  int
	closeIdx int
	pairIdx  int

	reasoning    string
	content      string
	finishReason string
	errMsg       string
}

// NewSplitter returns a Splitter for one message. tagScanning enables the
// inline <think> heuristics and should be set for reasoning models only.
func NewSplitter(tagScanning bool) *Splitter {
	return &Splitter{
		tagScanning: tagScanning,
		openIdx:     -1,
		closeIdx:    -1,
		pairIdx:     -1,
	}
}

// Apply folds d into the state and returns the updated snapshot. applied is
// false when the delta was ignored because the message is already finalized.
func (s *Splitter) Apply(d delta.Delta) (snap Snapshot, applied bool) {
	if s.finalized {
		return s.Snapshot(), false
	}

	switch d.Kind {
	case delta.KindReasoning:
		s.hasAPIReasoning = true
		s.apiReasoning.WriteString(d.Text)
		s.reasoning = s.apiReasoning.String()
		// Tag scanning is abandoned: everything received so far is content.
		s.content = s.raw.String()

	case delta.KindContent:
		s.raw.WriteString(d.Text)
		s.split()

	case delta.KindDone:
		s.finishReason = d.Reason()
		s.finalize()

	case delta.KindError:
		s.errMsg = d.Message
		if s.content == "" {
			s.content = "Error: " + d.Message
		} else {
			s.content += "\n\nError: " + d.Message
		}
		s.finalized = true

	default:
		return s.Snapshot(), false
	}

	return s.Snapshot(), true
}

func (s *Splitter) split() {
	raw := s.raw.String()
	if s.hasAPIReasoning || !s.tagScanning {
		s.content = raw
		return
	}

	s.scan(raw)

	var split Split
	switch {
	case s.pairIdx >= 0:
		split = splitPair(raw, s.openIdx, s.pairIdx)
	case s.closeIdx >= 0:
		split = splitClose(raw, s.closeIdx)
	default:
		split = Split{Reasoning: strings.TrimSpace(raw)}
	}

	if split.Closed {
		s.closeTagFound = true
	}
	s.reasoning, s.content = split.Reasoning, split.Content
}

// scan locates the first opening tag, the first closing tag, and the first
// closing tag after the opening tag.
func (s *Splitter) scan(raw string) {
	if s.openIdx < 0 {
		s.openIdx = indexFold(raw, OpenTag, s.scanned-len(OpenTag)+1)
	}
	if s.closeIdx < 0 {
		s.closeIdx = indexFold(raw, CloseTag, s.scanned-len(CloseTag)+1)
	}
	if s.openIdx >= 0 && s.pairIdx < 0 {
		from := max(s.openIdx+len(OpenTag), s.scanned-len(CloseTag)+1)
		s.pairIdx = indexFold(raw, CloseTag, from)
	}
	s.scanned = len(raw)
}

func (s *Splitter) finalize() {
	if s.tagScanning && !s.hasAPIReasoning && !s.closeTagFound {
		raw := s.raw.String()
		if split := SplitRaw(raw); split.Closed {
			s.closeTagFound = true
			s.reasoning, s.content = split.Reasoning, split.Content
		} else {
			// The block was never closed: show everything as the answer.
			s.reasoning = ""
			s.content = strings.TrimSpace(raw)
		}
	}
	s.finalized = true
}

// Snapshot returns the current state by value.
func (s *Splitter) Snapshot() Snapshot {
	return Snapshot{
		Content:      s.content,
		Reasoning:    s.reasoning,
		FinishReason: s.finishReason,
		Error:        s.errMsg,
		Final:        s.finalized,
	}
}

// Phase reports the lifecycle position.
func (s *Splitter) Phase() Phase {
	switch {
	case s.finalized:
		return PhaseFinalized
	case s.closeTagFound && !s.hasAPIReasoning:
		return PhaseTagFound
	case s.tagScanning && !s.hasAPIReasoning && s.raw.Len() > 0:
		return PhaseTagScanning
	default:
		return PhaseNoReasoningSeen
	}
}

// HasAPIReasoning reports whether structured reasoning was received.
func (s *Splitter) HasAPIReasoning() bool { return s.hasAPIReasoning }

// CloseTagFound reports whether a closing tag has been located.
func (s *Splitter) CloseTagFound() bool { return s.closeTagFound }

// Finalized reports whether Done or Error was applied.
func (s *Splitter) Finalized() bool { return s.finalized }

// Raw returns all content text received so far.
func (s *Splitter) Raw() string { return s.raw.String() }
