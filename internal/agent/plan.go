package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"webnerd/internal/llm"
	"webnerd/internal/logging"
	"webnerd/internal/planner"
	"webnerd/internal/webtypes"
)

const planSystemPrompt = `You are a web-automation planner. Given a user goal, produce a short ordered plan of browser sub-goals. Reply with ONLY a JSON object:
{
  "steps": [
    {"description": "Navigate to example.com and open the store locator", "kind": "action"},
    {"description": "Read the listed store hours and report them", "kind": "observation",
     "verification": {"url_contains": ["locations"]}}
  ]
}
Rules:
- 2 to 8 steps. Each step is one page-level sub-goal, not one click.
- "kind" is "action" (changes the page) or "observation" (only reads it).
- The final step is usually an observation that confirms the goal.
- Optional "verification" gives machine-checkable success hints: "url_contains" (substrings expected in the URL after the step), "finding_key" (a findings key an observation must produce), "require_dom_delta" (true if the page must change).`

var observationVerbRe = regexp.MustCompile(`(?i)^\s*(read|report|verify|confirm|check|extract|observe|list|summarize|note)\b`)

// CreateWebAutomationPlan asks the LLM for a step plan. A transport or
// parse failure degrades to a generic two-step plan so the episode can
// still start.
func CreateWebAutomationPlan(ctx context.Context, client llm.Client, goal string) []webtypes.PlanStep {
	reply, err := client.CompleteWithSystem(ctx, planSystemPrompt, "Goal: "+goal)
	if err != nil {
		logging.AgentWarn("plan generation failed, using fallback plan: %v", err)
		return fallbackPlan(goal)
	}

	steps, err := parsePlan(reply)
	if err != nil {
		logging.AgentWarn("plan reply unparseable, using fallback plan: %v", err)
		return fallbackPlan(goal)
	}
	logging.Agent("plan generated with %d steps", len(steps))
	return steps
}

func parsePlan(reply string) ([]webtypes.PlanStep, error) {
	var raw struct {
		Steps []struct {
			Description  string                     `json:"description"`
			Kind         string                     `json:"kind"`
			Verification *webtypes.VerificationRule `json:"verification"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		extracted := planner.ExtractJSON(reply)
		if err2 := json.Unmarshal([]byte(extracted), &raw); err2 != nil {
			return nil, err2
		}
	}
	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("plan contains no steps")
	}

	steps := make([]webtypes.PlanStep, 0, len(raw.Steps))
	for _, rs := range raw.Steps {
		desc := strings.TrimSpace(rs.Description)
		if desc == "" {
			continue
		}
		steps = append(steps, webtypes.PlanStep{
			Description:  desc,
			Kind:         classifyStep(desc, rs.Kind),
			Verification: rs.Verification,
		})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("plan steps were all empty")
	}
	return steps, nil
}

// classifyStep trusts an explicit kind and otherwise falls back to the
// leading verb of the description.
func classifyStep(description, kind string) webtypes.StepKind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "action":
		return webtypes.StepAction
	case "observation":
		return webtypes.StepObservation
	}
	if observationVerbRe.MatchString(description) {
		return webtypes.StepObservation
	}
	return webtypes.StepAction
}

// fallbackPlan is the degenerate two-step plan used when plan
// generation fails: act toward the goal, then verify it.
func fallbackPlan(goal string) []webtypes.PlanStep {
	return []webtypes.PlanStep{
		{Description: "Work toward the goal: " + goal, Kind: webtypes.StepAction},
		{Description: "Verify the goal was achieved and report the outcome: " + goal, Kind: webtypes.StepObservation},
	}
}
