package reasoning

import (
	"strings"
	"sync"
)

// DefaultModelPatterns match model names that emit inline <think> blocks.
var DefaultModelPatterns = []string{
	"deepseek-r1",
	"r1-distill",
	"reasoner",
	"qwq",
	"qwen3",
	"think",
}

// Detector flags reasoning models by case-insensitive substring match on the
// model name. Patterns can be replaced while the detector is in use.
type Detector struct {
	mu       sync.RWMutex
	patterns []string
}

// NewDetector returns a Detector for patterns, or for DefaultModelPatterns
// when none are given.
func NewDetector(patterns ...string) *Detector {
	d := &Detector{}
	d.SetPatterns(patterns...)
	return d
}

// SetPatterns replaces the patterns. No patterns restores
// DefaultModelPatterns.
func (d *Detector) SetPatterns(patterns ...string) {
	if len(patterns) == 0 {
		patterns = DefaultModelPatterns
	}

	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}

	d.mu.Lock()
	d.patterns = normalized
	d.mu.Unlock()
}

// Patterns returns a copy of the active patterns.
func (d *Detector) Patterns() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.patterns...)
}

// IsReasoningModel reports whether model matches any pattern.
func (d *Detector) IsReasoningModel(model string) bool {
	model = strings.ToLower(model)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.patterns {
		if strings.Contains(model, p) {
			return true
		}
	}
	return false
}

// Resolve applies an explicit per-request override before falling back to
// name detection.
func (d *Detector) Resolve(model string, override *bool) bool {
	if override != nil {
		return *override
	}
	return d.IsReasoningModel(model)
}
