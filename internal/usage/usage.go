// Package usage provides token usage tracking, cost estimation, and formatting.
package usage

import (
	"fmt"
	"math"
	"sync"
)

// Usage represents token usage for a single request.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
}

// Total returns the total token count.
func (u *Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add adds another usage record to this one.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// Cost represents pricing for a model (per million tokens).
type Cost struct {
	Input      float64 `json:"input" yaml:"input"`
	Output     float64 `json:"output" yaml:"output"`
	CacheRead  float64 `json:"cache_read" yaml:"cache_read"`
	CacheWrite float64 `json:"cache_write" yaml:"cache_write"`
}

// Estimate calculates the estimated cost for the given usage.
func (c *Cost) Estimate(usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	total := float64(usage.InputTokens)*c.Input +
		float64(usage.OutputTokens)*c.Output +
		float64(usage.CacheReadTokens)*c.CacheRead +
		float64(usage.CacheWriteTokens)*c.CacheWrite
	return total / 1_000_000
}

// Totals is a snapshot of one session's accumulated token usage:
// session_id -> {total_input_tokens, total_output_tokens, call_count}.
type Totals struct {
	SessionID         string `json:"session_id"`
	TotalInputTokens  int64  `json:"total_input_tokens"`
	TotalOutputTokens int64  `json:"total_output_tokens"`
	CallCount         int64  `json:"call_count"`
}

// Counter is the process-wide, session-keyed Token Counter. A component
// that records usage under one session id and a caller that reads totals
// under a differently-derived id will silently observe zero totals: Add and
// Snapshot take the same sessionID string verbatim, so callers must derive
// it once per turn and thread it through unchanged rather than recomputing
// it at each call site.
type Counter struct {
	mu    sync.Mutex
	stats map[string]*Totals
}

// NewCounter creates an empty token counter.
func NewCounter() *Counter {
	return &Counter{stats: make(map[string]*Totals)}
}

// Add records one LLM call's token usage under sessionID, creating the
// session's entry on first use.
func (c *Counter) Add(sessionID string, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.stats[sessionID]
	if !ok {
		t = &Totals{SessionID: sessionID}
		c.stats[sessionID] = t
	}
	t.TotalInputTokens += inputTokens
	t.TotalOutputTokens += outputTokens
	t.CallCount++
}

// Snapshot returns a value copy of the session's totals so callers never
// observe the struct being mutated mid-read. Returns a zeroed Totals keyed
// to sessionID if nothing has been recorded for it yet.
func (c *Counter) Snapshot(sessionID string) Totals {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.stats[sessionID]; ok {
		return *t
	}
	return Totals{SessionID: sessionID}
}

// Reset discards a session's accumulated totals.
func (c *Counter) Reset(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, sessionID)
}

// FormatTokenCount formats a token count for display.
func FormatTokenCount(count int64) string {
	if count <= 0 {
		return "0"
	}
	if count >= 1_000_000 {
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	}
	if count >= 10_000 {
		return fmt.Sprintf("%dk", count/1_000)
	}
	if count >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	}
	return fmt.Sprintf("%d", count)
}

// FormatUSD formats a dollar amount for display.
func FormatUSD(amount float64) string {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	if amount >= 0.01 {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("$%.4f", amount)
}

// FormatUsage formats usage for display.
func FormatUsage(usage *Usage) string {
	if usage == nil {
		return "0 tokens"
	}
	total := usage.Total()
	return FormatTokenCount(total) + " tokens"
}

// FormatUsageDetailed formats usage with breakdown.
func FormatUsageDetailed(usage *Usage) string {
	if usage == nil {
		return "No usage"
	}
	parts := []string{}
	if usage.InputTokens > 0 {
		parts = append(parts, fmt.Sprintf("in: %s", FormatTokenCount(usage.InputTokens)))
	}
	if usage.OutputTokens > 0 {
		parts = append(parts, fmt.Sprintf("out: %s", FormatTokenCount(usage.OutputTokens)))
	}
	if usage.CacheReadTokens > 0 {
		parts = append(parts, fmt.Sprintf("cache-r: %s", FormatTokenCount(usage.CacheReadTokens)))
	}
	if usage.CacheWriteTokens > 0 {
		parts = append(parts, fmt.Sprintf("cache-w: %s", FormatTokenCount(usage.CacheWriteTokens)))
	}
	if len(parts) == 0 {
		return "0 tokens"
	}
	return fmt.Sprintf("%s (%s)", FormatTokenCount(usage.Total()), joinParts(parts))
}

func joinParts(parts []string) string {
	result := ""
	for i, p := range parts {
		if i > 0 {
			result += ", "
		}
		result += p
	}
	return result
}
