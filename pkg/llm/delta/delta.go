// Package delta maps decoded stream events to typed increments of an
// assistant message.
package delta

import "fmt"

// Kind discriminates the Delta variants.
type Kind int

const (
	// KindReasoning carries structured reasoning text supplied by the API.
	KindReasoning Kind = iota + 1

	// KindContent carries answer text (possibly with inline reasoning tags).
	KindContent

	// KindDone signals the end of the message.
	KindDone

	// KindError signals a transport or upstream failure.
	KindError
)

// FinishReasonStopped is the finish reason recorded when the caller aborts
// a stream.
const FinishReasonStopped = "stopped"

func (k Kind) String() string {
	switch k {
	case KindReasoning:
		return "reasoning"
	case KindContent:
		return "content"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Delta is a single typed increment. Only the fields relevant to Kind are
// set: Text for reasoning and content, FinishReason for done (nil when the
// stream did not report one), Message for error.
type Delta struct {
	Kind         Kind
	Text         string
	FinishReason *string
	Message      string
}

// Reasoning returns a reasoning delta.
func Reasoning(text string) Delta {
	return Delta{Kind: KindReasoning, Text: text}
}

// Content returns a content delta.
func Content(text string) Delta {
	return Delta{Kind: KindContent, Text: text}
}

// Done returns a completion delta with an optional finish reason.
func Done(finishReason *string) Delta {
	return Delta{Kind: KindDone, FinishReason: finishReason}
}

// DoneWithReason returns a completion delta with the given finish reason.
func DoneWithReason(reason string) Delta {
	return Done(&reason)
}

// Stopped returns the completion delta for an aborted stream.
func Stopped() Delta {
	return DoneWithReason(FinishReasonStopped)
}

// Error returns an error delta.
func Error(message string) Delta {
	return Delta{Kind: KindError, Message: message}
}

// Terminal reports whether the delta ends the message.
func (d Delta) Terminal() bool {
	return d.Kind == KindDone || d.Kind == KindError
}

// Reason returns the finish reason or "" when none was reported.
func (d Delta) Reason() string {
	if d.FinishReason == nil {
		return ""
	}
	return *d.FinishReason
}
