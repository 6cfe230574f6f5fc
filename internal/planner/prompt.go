// Package planner assembles the structured prompts sent to the LLM and
// parses its strict-JSON command batches back out. The builder never
// contacts the LLM: it is a pure function of its inputs, so identical
// inputs always produce the identical prompt.
package planner

import (
	"fmt"
	"regexp"
	"strings"

	"webnerd/internal/webtypes"
)

// Prompt assembly limits.
const (
	maxRecentEvents    = 5
	maxBreadcrumbs     = 5
	maxSkeletonChars   = 20_000
	maxCandidatesShown = 40
	topPreferred       = 10
	topNoOverride      = 5
)

var (
	locationSearchRe = regexp.MustCompile(`(?i)\b(location|store|zip|postal|address|near)\b`)
	genericSearchRe  = regexp.MustCompile(`(?i)\b(search|find|look up|lookup)\b`)
	navigationRe     = regexp.MustCompile(`(?i)\b(navigate|go to|open|visit)\b`)
)

// SystemPrompt is the fixed system message for action planning.
const SystemPrompt = `You are a web-navigation planner. You observe one page snapshot and reply with a strict JSON command batch. You may only reference page elements by their numeric candidate_id from the CANDIDATES list. Never invent selectors, ids, or URLs that are not shown to you.`

// BuildReasoningPrompt assembles the action-planning prompt in a fixed
// section order. Identical inputs yield the identical string.
func BuildReasoningPrompt(goal string, ctx *webtypes.PageContext, recentActions []webtypes.RecentEvent, breadcrumbs []string) string {
	var b strings.Builder

	b.WriteString("# GOAL\n")
	fmt.Fprintf(&b, "Overall goal: %s\n", ctx.OverallGoal)
	fmt.Fprintf(&b, "Current step (%d/%d): %s\n\n", ctx.StepNumber, ctx.TotalSteps, goal)

	writeAffordanceHints(&b, goal)
	writeRecentState(&b, recentActions)
	writeLatticeGuidance(&b, ctx)
	writeDeltaGuidance(&b, ctx)

	b.WriteString("# CURRENT PAGE\n")
	fmt.Fprintf(&b, "URL: %s\n", ctx.URL)
	fmt.Fprintf(&b, "Title: %s\n", ctx.Title)
	fmt.Fprintf(&b, "DOM signature: %s\n\n", ctx.Signature)

	b.WriteString("# PAGE SKELETON\n")
	skeleton := ctx.Skeleton
	if len(skeleton) > maxSkeletonChars {
		skeleton = skeleton[:maxSkeletonChars] + "\n[skeleton truncated]"
	}
	b.WriteString(skeleton)
	b.WriteString("\n\n")

	writeCandidates(&b, ctx)
	writeBreadcrumbs(&b, breadcrumbs)
	writeConstraints(&b)
	writeResponseSchema(&b)

	return b.String()
}

func writeAffordanceHints(b *strings.Builder, goal string) {
	var hints []string
	if locationSearchRe.MatchString(goal) {
		hints = append(hints, "Location goals: prefer a ZIP/address input field, type the value, and submit. Store cards usually carry data-store-id or data-restaurant-id attributes.")
	}
	if genericSearchRe.MatchString(goal) {
		hints = append(hints, "Search goals: prefer input fields whose placeholder or name mentions search; submit with Enter.")
	}
	if navigationRe.MatchString(goal) {
		hints = append(hints, "Navigation goals: prefer links and nav items whose text matches the target.")
	}
	if len(hints) == 0 {
		return
	}
	b.WriteString("# HINTS\n")
	for _, h := range hints {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

// writeRecentState summarizes the last few lattice events, with cycle
// detection: anything clicked more than once is explicitly warned
// against.
func writeRecentState(b *strings.Builder, events []webtypes.RecentEvent) {
	if len(events) == 0 {
		return
	}
	if len(events) > maxRecentEvents {
		events = events[len(events)-maxRecentEvents:]
	}

	b.WriteString("# RECENT STATE\n")
	for _, ev := range events {
		status := "ok"
		if !ev.Success {
			status = "failed"
		}
		delta := "no DOM change"
		if ev.Changed {
			delta = "DOM changed"
		}
		fmt.Fprintf(b, "- [%s] %s (%s, %s)\n", ev.Type, ev.Summary, status, delta)
	}

	for _, warning := range CycleWarnings(events) {
		b.WriteString(warning)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

// CycleWarnings returns one warning line per candidate/selector that was
// clicked more than once in the recent window.
func CycleWarnings(events []webtypes.RecentEvent) []string {
	clicks := make(map[string]int)
	order := make([]string, 0)
	for _, ev := range events {
		key := ev.Selector
		if key == "" && ev.CandidateID > 0 {
			key = fmt.Sprintf("candidate %d", ev.CandidateID)
		}
		if key == "" {
			continue
		}
		if clicks[key] == 0 {
			order = append(order, key)
		}
		clicks[key]++
	}

	var warnings []string
	for _, key := range order {
		if clicks[key] > 1 {
			warnings = append(warnings, fmt.Sprintf("WARNING: %s was already clicked %d times without achieving the goal. Do NOT click it again.", key, clicks[key]))
		}
	}
	return warnings
}

func writeLatticeGuidance(b *strings.Builder, ctx *webtypes.PageContext) {
	state := ctx.LatticeState
	if state == nil || len(state.PlannedSteps) == 0 {
		return
	}
	b.WriteString("# PLAN CONTEXT\n")
	b.WriteString("Your previously generated plan:\n")
	for i, step := range state.PlannedSteps {
		marker := " "
		if i == state.CurrentIndex {
			marker = ">"
		}
		fmt.Fprintf(b, "%s %d. %s\n", marker, i+1, step)
	}
	for _, pattern := range state.SuccessfulPatterns {
		fmt.Fprintf(b, "Known-good pattern: %s\n", pattern)
	}
	b.WriteByte('\n')
}

func writeDeltaGuidance(b *strings.Builder, ctx *webtypes.PageContext) {
	if ctx.PreviousSignature == "" {
		return
	}
	b.WriteString("# DELTA VERIFICATION\n")
	if ctx.PreviousSignature == ctx.Signature {
		fmt.Fprintf(b, "The DOM signature is UNCHANGED since the last step (%s). The previous action likely had no effect; choose a different approach.\n\n", ctx.Signature)
		return
	}
	fmt.Fprintf(b, "The DOM signature changed (%s -> %s), so the previous action altered the page. Verify the change matches the goal before proceeding.\n\n", ctx.PreviousSignature, ctx.Signature)
}

func writeCandidates(b *strings.Builder, ctx *webtypes.PageContext) {
	b.WriteString("# CANDIDATES (ranked by goal relevance)\n")
	if len(ctx.Interactive) == 0 {
		b.WriteString("(no interactive elements found on this page)\n\n")
		return
	}
	shown := ctx.Interactive
	if len(shown) > maxCandidatesShown {
		shown = shown[:maxCandidatesShown]
	}
	for _, el := range shown {
		fmt.Fprintf(b, "%d <%s> text=%q selectors=[%s]\n", el.CandidateID, el.Tag, el.Text, strings.Join(el.Selectors, ", "))
	}
	b.WriteByte('\n')
}

func writeBreadcrumbs(b *strings.Builder, breadcrumbs []string) {
	if len(breadcrumbs) == 0 {
		return
	}
	if len(breadcrumbs) > maxBreadcrumbs {
		breadcrumbs = breadcrumbs[len(breadcrumbs)-maxBreadcrumbs:]
	}
	b.WriteString("# PROGRESS SO FAR\n")
	for _, crumb := range breadcrumbs {
		b.WriteString("- ")
		b.WriteString(crumb)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

func writeConstraints(b *strings.Builder) {
	b.WriteString(`# CONSTRAINTS
- Choose candidate_id values from the CANDIDATES list only.
- Prefer candidates from the top 10 by rank. Choosing outside the top 5 requires a non-empty override_reason citing at least two signals (text match, data attribute, affordance class, role).
- Do not repeat a candidate that failed in the last 3 events unless override_reason explains the retry.
- Avoid login, signup, and marketing links unless the goal requires them.
- If the goal is already achieved or impossible on this page, reply with a single noop and explain in rationale.

`)
}

func writeResponseSchema(b *strings.Builder) {
	b.WriteString(`# RESPONSE FORMAT
Reply with ONLY a JSON object, no prose:
{
  "commands": [
    {"type": "click", "candidate_id": 3}
  ],
  "confidence": 0.85,
  "rationale": "why these commands advance the step goal",
  "breadcrumb": "one plain-English sentence recording what this step accomplished",
  "override_reason": "required only when choosing outside the top 5"
}
Command types: navigate{url}, click{candidate_id}, type{candidate_id, text, press_enter?}, press{key, candidate_id?}, wait_for{signature_change | timeout_ms}, noop.
1 to 3 commands per reply. confidence is a real number in [0,1].
`)
}
