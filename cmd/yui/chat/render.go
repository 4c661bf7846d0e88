package chatcmder

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/papercomputeco/yui/pkg/cliui"
	"github.com/papercomputeco/yui/pkg/reasoning"
)

// terminalSink prints a streaming message as it grows: reasoning dimmed,
// then the answer. Only the new suffix of each field is written; a field
// that was rewritten rather than extended stops updating live.
type terminalSink struct {
	w io.Writer

	mu        sync.Mutex
	reasoning string
	content   string
	started   bool
	answering bool
}

func newTerminalSink(w io.Writer) *terminalSink {
	return &terminalSink{w: w}
}

func (t *terminalSink) Update(_ context.Context, _ string, snap reasoning.Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.render(snap)
	return nil
}

func (t *terminalSink) Finalize(_ context.Context, _ string, snap reasoning.Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.render(snap)

	switch {
	case snap.Error != "" && !strings.Contains(t.content, snap.Error):
		fmt.Fprintf(t.w, "\n%s %s", cliui.FailMark, cliui.ErrorStyle.Render(snap.Error))
	case snap.Stopped():
		fmt.Fprintf(t.w, "\n%s", cliui.DimStyle.Render("[stopped]"))
	case snap.FinishReason == "length":
		fmt.Fprintf(t.w, "\n%s", cliui.DimStyle.Render("[truncated: max tokens reached]"))
	}
	fmt.Fprintln(t.w)
	return nil
}

func (t *terminalSink) render(snap reasoning.Snapshot) {
	if !t.answering && len(snap.Reasoning) > len(t.reasoning) && strings.HasPrefix(snap.Reasoning, t.reasoning) {
		if !t.started {
			fmt.Fprint(t.w, cliui.DimStyle.Render("thinking: "))
			t.started = true
		}
		fmt.Fprint(t.w, cliui.ReasoningStyle.Render(snap.Reasoning[len(t.reasoning):]))
		t.reasoning = snap.Reasoning
	}

	if len(snap.Content) > len(t.content) && strings.HasPrefix(snap.Content, t.content) {
		if !t.answering {
			if t.started {
				fmt.Fprint(t.w, "\n\n")
			}
			t.answering = true
			t.started = true
		}
		fmt.Fprint(t.w, snap.Content[len(t.content):])
		t.content = snap.Content
	}
}
