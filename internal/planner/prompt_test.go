package planner

import (
	"strings"
	"testing"

	"webnerd/internal/webtypes"
)

func samplePageContext() *webtypes.PageContext {
	return &webtypes.PageContext{
		URL:         "https://example.com/locations",
		Title:       "Find a Store",
		Signature:   "abc123def4567890",
		Skeleton:    `<main><input name="zip" placeholder="ZIP code"></main>`,
		OverallGoal: "find the nearest store to 10001",
		StepNumber:  1,
		TotalSteps:  3,
		Interactive: []webtypes.Element{
			{CandidateID: 1, Tag: "input", Text: "ZIP code", Selectors: []string{"input.zip"}},
			{CandidateID: 2, Tag: "button", Text: "Search", Selectors: []string{"button.search"}},
		},
	}
}

func TestBuildReasoningPromptDeterministic(t *testing.T) {
	ctx := samplePageContext()
	goal := "enter the zip code"
	a := BuildReasoningPrompt(goal, ctx, nil, nil)
	b := BuildReasoningPrompt(goal, ctx, nil, nil)
	if a != b {
		t.Fatal("identical inputs produced different prompts")
	}
}

func TestBuildReasoningPromptSectionOrder(t *testing.T) {
	ctx := samplePageContext()
	prompt := BuildReasoningPrompt("enter the zip code", ctx, []webtypes.RecentEvent{
		{Type: "step_executed", Summary: "Opened locations page", Success: true, Changed: true},
	}, []string{"Navigated to the locations page."})

	sections := []string{
		"# GOAL",
		"# RECENT STATE",
		"# CURRENT PAGE",
		"# PAGE SKELETON",
		"# CANDIDATES",
		"# PROGRESS SO FAR",
		"# CONSTRAINTS",
		"# RESPONSE FORMAT",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(prompt, section)
		if idx < 0 {
			t.Fatalf("section %q missing from prompt", section)
		}
		if idx < last {
			t.Errorf("section %q out of order", section)
		}
		last = idx
	}
}

func TestBuildReasoningPromptListsCandidatesByID(t *testing.T) {
	ctx := samplePageContext()
	prompt := BuildReasoningPrompt("enter the zip code", ctx, nil, nil)

	if !strings.Contains(prompt, `1 <input> text="ZIP code"`) {
		t.Error("candidate 1 not rendered with its id")
	}
	if !strings.Contains(prompt, `2 <button> text="Search"`) {
		t.Error("candidate 2 not rendered with its id")
	}
}

func TestBuildReasoningPromptDeltaGuidance(t *testing.T) {
	ctx := samplePageContext()
	ctx.PreviousSignature = ctx.Signature
	prompt := BuildReasoningPrompt("enter the zip code", ctx, nil, nil)
	if !strings.Contains(prompt, "UNCHANGED") {
		t.Error("unchanged-signature warning missing")
	}

	ctx.PreviousSignature = "ffff000011112222"
	prompt = BuildReasoningPrompt("enter the zip code", ctx, nil, nil)
	if !strings.Contains(prompt, "signature changed") {
		t.Error("changed-signature note missing")
	}
}

func TestCycleWarnings(t *testing.T) {
	events := []webtypes.RecentEvent{
		{Selector: "button.search", Success: true},
		{Selector: "button.search", Success: false},
		{Selector: "a.other", Success: true},
	}
	warnings := CycleWarnings(events)
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "button.search") || !strings.Contains(warnings[0], "2 times") {
		t.Errorf("warning content wrong: %s", warnings[0])
	}
}

func TestCycleWarningsByCandidateID(t *testing.T) {
	events := []webtypes.RecentEvent{
		{CandidateID: 7},
		{CandidateID: 7},
	}
	warnings := CycleWarnings(events)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "candidate 7") {
		t.Fatalf("candidate-id cycle not detected: %v", warnings)
	}
}

func TestSkeletonTruncationInPrompt(t *testing.T) {
	ctx := samplePageContext()
	ctx.Skeleton = strings.Repeat("x", maxSkeletonChars+500)
	prompt := BuildReasoningPrompt("goal", ctx, nil, nil)
	if !strings.Contains(prompt, "[skeleton truncated]") {
		t.Error("oversized skeleton not truncated")
	}
}
