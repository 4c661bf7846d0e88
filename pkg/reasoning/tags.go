// Package reasoning separates model "thinking" from the final answer while a
// response streams in.
//
// Upstream servers either deliver reasoning structurally (reasoning_content
// deltas) or inline, wrapped in <think>...</think> tags within the content.
// The Splitter handles both and produces a live (reasoning, content) pair
// after every delta.
package reasoning

import "strings"

const (
	// OpenTag opens an inline reasoning block.
	OpenTag = "<think>"

	// CloseTag closes an inline reasoning block.
	CloseTag = "</think>"
)

// Split is the result of partitioning raw model output.
type Split struct {
	Reasoning string
	Content   string

	// Closed reports whether a closing tag was located.
	Closed bool
}

// SplitRaw partitions the complete raw text. When an opening tag is followed
// by a closing tag, the text between them is the reasoning and the text
// around them is the content. Otherwise text before the first closing tag is
// the reasoning and text after it is the content. Without a closing tag the
// whole text is tentatively reasoning.
//
// Tags match ASCII case-insensitively. Results are whitespace trimmed.
func SplitRaw(raw string) Split {
	open := indexFold(raw, OpenTag, 0)
	if open >= 0 {
		if end := indexFold(raw, CloseTag, open+len(OpenTag)); end >= 0 {
			return splitPair(raw, open, end)
		}
	}

	if end := indexFold(raw, CloseTag, 0); end >= 0 {
		return splitClose(raw, end)
	}

	return Split{Reasoning: strings.TrimSpace(raw)}
}

func splitPair(raw string, open, end int) Split {
	return Split{
		Reasoning: strings.TrimSpace(raw[open+len(OpenTag) : end]),
		Content:   strings.TrimSpace(raw[:open] + raw[end+len(CloseTag):]),
		Closed:    true,
	}
}

func splitClose(raw string, end int) Split {
	return Split{
		Reasoning: strings.TrimSpace(raw[:end]),
		Content:   strings.TrimSpace(raw[end+len(CloseTag):]),
		Closed:    true,
	}
}

// indexFold returns the index of the first ASCII case-insensitive match of
// tag in s at or after from, or -1. tag must be lower case.
func indexFold(s, tag string, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(tag) <= len(s); i++ {
		if s[i] == tag[0] && hasPrefixFold(s[i:], tag) {
			return i
		}
	}
	return -1
}

func hasPrefixFold(s, tag string) bool {
	for j := 0; j < len(tag); j++ {
		c := s[j]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != tag[j] {
			return false
		}
	}
	return true
}
