package agent

import (
	"context"
	"errors"
	"testing"

	"webnerd/internal/webtypes"
)

type cannedClient struct {
	reply string
	err   error
}

func (c *cannedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.reply, c.err
}

func (c *cannedClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return c.reply, c.err
}

func TestCreateWebAutomationPlanParsesSteps(t *testing.T) {
	client := &cannedClient{reply: `{"steps":[
		{"description":"Open the store locator","kind":"action"},
		{"description":"Report the store hours","kind":"observation","verification":{"finding_key":"hours"}}
	]}`}

	steps := CreateWebAutomationPlan(context.Background(), client, "find store hours")
	if len(steps) != 2 {
		t.Fatalf("steps = %d", len(steps))
	}
	if steps[0].Kind != webtypes.StepAction || steps[1].Kind != webtypes.StepObservation {
		t.Fatalf("kinds wrong: %v %v", steps[0].Kind, steps[1].Kind)
	}
	if steps[1].Verification == nil || steps[1].Verification.FindingKey != "hours" {
		t.Fatalf("verification lost: %+v", steps[1].Verification)
	}
}

func TestCreateWebAutomationPlanFallsBackOnError(t *testing.T) {
	client := &cannedClient{err: errors.New("transport down")}
	steps := CreateWebAutomationPlan(context.Background(), client, "do the thing")
	if len(steps) != 2 {
		t.Fatalf("fallback plan = %d steps", len(steps))
	}
	if steps[0].Kind != webtypes.StepAction || steps[1].Kind != webtypes.StepObservation {
		t.Fatalf("fallback kinds wrong: %+v", steps)
	}
}

func TestCreateWebAutomationPlanFallsBackOnGarbage(t *testing.T) {
	client := &cannedClient{reply: "here are some thoughts with no JSON"}
	steps := CreateWebAutomationPlan(context.Background(), client, "do the thing")
	if len(steps) != 2 {
		t.Fatalf("fallback plan = %d steps", len(steps))
	}
}

func TestClassifyStepByLeadingVerb(t *testing.T) {
	cases := []struct {
		desc, kind string
		want       webtypes.StepKind
	}{
		{"Report the listed hours", "", webtypes.StepObservation},
		{"Verify the cart total", "", webtypes.StepObservation},
		{"Click the search button", "", webtypes.StepAction},
		{"Read the page", "action", webtypes.StepAction}, // explicit kind wins
		{"Click around", "observation", webtypes.StepObservation},
	}
	for _, tc := range cases {
		if got := classifyStep(tc.desc, tc.kind); got != tc.want {
			t.Errorf("classifyStep(%q, %q) = %v, want %v", tc.desc, tc.kind, got, tc.want)
		}
	}
}
