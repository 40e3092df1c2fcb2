// Package context holds the running message transcript for one task:
// append-with-pairing, token-budget-aware preparation, and truncation
// that never orphans a tool_use from its tool_result.
package context

import (
	"fmt"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// bytesPerToken is the deterministic character-based token estimate:
// exact tokenization is not required, only a stable heuristic.
const bytesPerToken = 4

// Transcript holds one task's alternating entry sequence. It is not
// safe for concurrent use; callers serialize access per task.
type Transcript struct {
	framing *types.Entry
	entries []types.Entry
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// SeedFraming installs the first entry, which Prepare always keeps
// regardless of budget. Calling it again replaces the prior framing.
func (t *Transcript) SeedFraming(entry types.Entry) {
	t.framing = &entry
}

// Append adds an entry, enforcing the pairing invariant: an assistant
// entry carrying tool_use blocks must be immediately followed by a
// user entry carrying a tool_result for every one of those ids before
// any further assistant entry is appended.
func (t *Transcript) Append(entry types.Entry) error {
	if pending := t.pendingToolUseIDs(); len(pending) > 0 {
		if entry.Role != types.RoleUser {
			return fmt.Errorf("append: expected a tool_result user entry to close %v, got role %s", pending, entry.Role)
		}
		got := make(map[string]bool, len(entry.ToolResultIDs()))
		for _, id := range entry.ToolResultIDs() {
			got[id] = true
		}
		for _, id := range pending {
			if !got[id] {
				return fmt.Errorf("append: tool_result missing for tool_use %s", id)
			}
		}
	}
	t.entries = append(t.entries, entry)
	return nil
}

// pendingToolUseIDs returns the tool_use ids of the trailing assistant
// entry that have not yet been closed by a following tool_result.
func (t *Transcript) pendingToolUseIDs() []string {
	if len(t.entries) == 0 {
		return nil
	}
	last := t.entries[len(t.entries)-1]
	if last.Role != types.RoleAssistant {
		return nil
	}
	return last.ToolUseIDs()
}

// Entries returns the full entry sequence, framing entry first.
func (t *Transcript) Entries() []types.Entry {
	if t.framing == nil {
		out := make([]types.Entry, len(t.entries))
		copy(out, t.entries)
		return out
	}
	out := make([]types.Entry, 0, len(t.entries)+1)
	out = append(out, *t.framing)
	out = append(out, t.entries...)
	return out
}

// estimateTokens applies the deterministic bytes/4 heuristic to an
// entry's content.
func estimateTokens(e types.Entry) int {
	chars := 0
	for _, b := range e.Content {
		chars += len(b.Text)
		if b.ToolUse != nil {
			chars += len(b.ToolUse.Name) + len(b.ToolUse.Input)
		}
		if b.ToolResult != nil {
			chars += len(b.ToolResult.Content)
		}
	}
	return chars / bytesPerToken
}

func estimateTotalTokens(entries []types.Entry) int {
	total := 0
	for _, e := range entries {
		total += estimateTokens(e)
	}
	return total
}
