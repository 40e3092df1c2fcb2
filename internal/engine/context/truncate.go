package context

import (
	"fmt"
	"strconv"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// TruncationSettings bounds how aggressively Prepare shrinks a
// transcript to fit a token budget. Two profiles are registered:
// Default (first pass) and Aggressive (retried after the model itself
// reports the prepared transcript was still too large).
type TruncationSettings struct {
	// KeepLastAssistants preserves this many of the most recent
	// assistant entries (and their paired tool_results) untouched.
	KeepLastAssistants int

	// SummaryFacts caps how many discovered-fact lines the synthetic
	// summary entry lists.
	SummaryFacts int

	// MaxBlockChars truncates any single text or tool_result block
	// beyond this length.
	MaxBlockChars int

	// MaxBlockHeadChars/MaxBlockTailChars split a truncated block into
	// a kept head and tail, matching the teacher's soft-trim shape.
	MaxBlockHeadChars int
	MaxBlockTailChars int

	// FixedTailWindow, when set, always cuts the prunable prefix down to
	// KeepLastAssistants instead of removing only the smallest prefix
	// that fits the budget.
	FixedTailWindow bool
}

// DefaultTruncationSettings is the first-pass profile.
func DefaultTruncationSettings() TruncationSettings {
	return TruncationSettings{
		KeepLastAssistants: 3,
		SummaryFacts:       8,
		MaxBlockChars:      4000,
		MaxBlockHeadChars:  1500,
		MaxBlockTailChars:  1500,
	}
}

// AggressiveTruncationSettings is the retried profile applied after an
// out-of-budget error from the model: a shorter tail window and
// tighter per-block caps.
func AggressiveTruncationSettings() TruncationSettings {
	return TruncationSettings{
		KeepLastAssistants: 1,
		SummaryFacts:       4,
		MaxBlockChars:      1200,
		MaxBlockHeadChars:  500,
		MaxBlockTailChars:  500,
		FixedTailWindow:    true,
	}
}

// Prepare returns a transcript whose estimated token cost is at or
// below budget, applying the default truncation profile.
func (t *Transcript) Prepare(budget int) ([]types.Entry, error) {
	return t.prepareWithSettings(budget, DefaultTruncationSettings())
}

// PrepareAggressive re-runs preparation with the tighter profile, for
// use after the model itself rejects the default-prepared transcript
// as over budget.
func (t *Transcript) PrepareAggressive(budget int) ([]types.Entry, error) {
	return t.prepareWithSettings(budget, AggressiveTruncationSettings())
}

func (t *Transcript) prepareWithSettings(budget int, settings TruncationSettings) ([]types.Entry, error) {
	entries := t.Entries()
	if budget <= 0 || len(entries) == 0 {
		return entries, nil
	}
	if estimateTotalTokens(entries) <= budget {
		return entries, nil
	}

	framingCount := 0
	if t.framing != nil {
		framingCount = 1
	}

	// Cap oversized blocks everywhere, not only in the prunable prefix:
	// a single huge tool_result in the kept tail would otherwise still
	// blow the budget on its own.
	prepared := capBlocks(entries, len(entries), settings)

	if estimateTotalTokens(prepared) <= budget {
		return prepared, nil
	}

	cutoffs := assistantCutoffCandidates(prepared, framingCount, settings.KeepLastAssistants)
	if len(cutoffs) == 0 {
		// Too few assistant entries to safely cut anywhere without
		// orphaning a tool_use; only the block-capping above applies.
		return prepared, nil
	}
	if settings.FixedTailWindow {
		cutoffs = cutoffs[len(cutoffs)-1:]
	}

	// Candidates are ordered from smallest removal (most assistants kept
	// untouched) to largest (down to KeepLastAssistants); stop at the
	// first that clears budget so a transcript one token over budget
	// only ever loses the single oldest prunable turn, not a fixed
	// window. With FixedTailWindow only the largest candidate is tried.
	var out []types.Entry
	for _, cutoff := range cutoffs {
		out = spliceSummary(prepared, framingCount, cutoff, settings)
		if estimateTotalTokens(out) <= budget {
			return out, nil
		}
	}

	return out, fmt.Errorf("prepare: transcript still exceeds budget of %d tokens after truncation", budget)
}

// assistantCutoffCandidates returns cutoff indices for successively
// larger prunable prefixes, starting from removing just the single
// oldest assistant turn (and everything with it up to the next kept
// entry) and growing one assistant turn at a time down to
// KeepLastAssistants. The caller tries them in order and stops at the
// first that fits the budget, so the minimal safe prefix is removed
// rather than jumping straight to the floor.
func assistantCutoffCandidates(entries []types.Entry, start, floor int) []int {
	total := 0
	for i := start; i < len(entries); i++ {
		if entries[i].Role == types.RoleAssistant {
			total++
		}
	}
	if total <= floor {
		cutoff, ok := findAssistantCutoffIndex(entries, start, floor)
		if !ok {
			return nil
		}
		return []int{cutoff}
	}

	cutoffs := make([]int, 0, total-floor)
	for n := total - 1; n >= floor; n-- {
		cutoff, ok := findAssistantCutoffIndex(entries, start, n)
		if !ok {
			break
		}
		cutoffs = append(cutoffs, cutoff)
	}
	return cutoffs
}

// spliceSummary replaces entries[framingCount:cutoff] with a synthetic
// summary pair, leaving the framing prefix and the kept tail untouched.
func spliceSummary(prepared []types.Entry, framingCount, cutoff int, settings TruncationSettings) []types.Entry {
	summary := buildSummaryPair(discoverFacts(prepared[framingCount:cutoff], settings.SummaryFacts), keptStartsWithAssistant(prepared, cutoff))
	out := make([]types.Entry, 0, framingCount+len(summary)+(len(prepared)-cutoff))
	out = append(out, prepared[:framingCount]...)
	out = append(out, summary...)
	out = append(out, prepared[cutoff:]...)
	return out
}

// keptStartsWithAssistant reports whether the first untouched entry
// after cutoff is an assistant entry, which determines whether the
// synthetic summary pair needs its trailing acknowledgment to keep
// roles alternating.
func keptStartsWithAssistant(entries []types.Entry, cutoff int) bool {
	return cutoff < len(entries) && entries[cutoff].Role == types.RoleAssistant
}

// findAssistantCutoffIndex walks backward from the end, keeping the
// last keepLastAssistants assistant entries (and everything after the
// oldest of them) untouched by pruning. It never returns an index that
// would split an assistant entry from its tool_result pair, mirroring
// the teacher's findAssistantCutoffIndex/findFirstUserIndex pairing.
func findAssistantCutoffIndex(entries []types.Entry, start, keepLastAssistants int) (int, bool) {
	if keepLastAssistants <= 0 {
		return len(entries), true
	}
	remaining := keepLastAssistants
	for i := len(entries) - 1; i >= start; i-- {
		if entries[i].Role == types.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i, true
			}
		}
	}
	return start, false
}

// capBlocks truncates oversized text/tool_result blocks in entries
// before the cutoff index, leaving entries at or after it untouched.
func capBlocks(entries []types.Entry, cutoff int, settings TruncationSettings) []types.Entry {
	out := make([]types.Entry, len(entries))
	copy(out, entries)
	for i := 0; i < cutoff && i < len(out); i++ {
		out[i] = capEntryBlocks(out[i], settings)
	}
	return out
}

func capEntryBlocks(entry types.Entry, settings TruncationSettings) types.Entry {
	blocks := make([]types.ContentBlock, len(entry.Content))
	copy(blocks, entry.Content)
	for i, b := range blocks {
		switch {
		case b.Text != "":
			blocks[i].Text = softTrim(b.Text, settings)
		case b.ToolResult != nil:
			clone := *b.ToolResult
			clone.Content = softTrim(clone.Content, settings)
			if clone.Content != b.ToolResult.Content {
				clone.Truncated = true
			}
			blocks[i].ToolResult = &clone
		}
	}
	entry.Content = blocks
	return entry
}

func softTrim(content string, settings TruncationSettings) string {
	if len(content) <= settings.MaxBlockChars {
		return content
	}
	head, tail := settings.MaxBlockHeadChars, settings.MaxBlockTailChars
	if head < 0 {
		head = 0
	}
	if tail < 0 {
		tail = 0
	}
	if head+tail >= len(content) {
		return content
	}
	note := "\n\n[truncated: kept first " + strconv.Itoa(head) + " and last " + strconv.Itoa(tail) +
		" of " + strconv.Itoa(len(content)) + " chars]"
	return content[:head] + "\n...\n" + content[len(content)-tail:] + note
}

// discoverFacts pulls short fact-like lines out of the entries being
// removed, most-recent-first, capped at limit. Plain text blocks
// contribute their text and tool_use blocks are summarized by tool
// name; tool_result blocks contribute nothing.
func discoverFacts(removed []types.Entry, limit int) []string {
	var facts []string
	for i := len(removed) - 1; i >= 0 && len(facts) < limit; i-- {
		e := removed[i]
		for _, b := range e.Content {
			if len(facts) >= limit {
				break
			}
			switch {
			case b.Text != "":
				facts = append(facts, truncateFact(b.Text))
			case b.ToolUse != nil:
				facts = append(facts, fmt.Sprintf("called tool %s", b.ToolUse.Name))
			}
		}
	}
	return facts
}

func truncateFact(text string) string {
	const maxFactChars = 160
	if len(text) <= maxFactChars {
		return text
	}
	return text[:maxFactChars] + "…"
}

// buildSummaryPair synthesizes the replacement for a pruned prefix: a
// user "context summary" entry, plus an assistant acknowledgment only
// when the next untouched entry is itself a user entry — appending
// one unconditionally would put two assistant entries back to back
// whenever the kept range resumes mid-turn on an assistant entry.
func buildSummaryPair(facts []string, keptStartsWithAssistant bool) []types.Entry {
	summary := "Context summary of earlier work:\n"
	if len(facts) == 0 {
		summary += "(no notable facts recorded)"
	}
	for _, f := range facts {
		summary += "- " + f + "\n"
	}
	entries := []types.Entry{
		{Role: types.RoleUser, Content: []types.ContentBlock{{Text: summary}}},
	}
	if !keptStartsWithAssistant {
		entries = append(entries, types.Entry{
			Role:    types.RoleAssistant,
			Content: []types.ContentBlock{{Text: "Acknowledged. Continuing from this summary."}},
		})
	}
	return entries
}
