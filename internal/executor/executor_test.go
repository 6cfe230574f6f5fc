package executor

import (
	"context"
	"errors"
	"testing"

	"webnerd/internal/config"
	"webnerd/internal/webtypes"
)

// scriptedClient replays canned replies, failing first when told to.
type scriptedClient struct {
	replies  []string
	failures int
	calls    int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return "", errors.New("transient transport error")
	}
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply, nil
}

// fakeBrowser records the batch it was asked to run.
type fakeBrowser struct {
	executed *webtypes.CommandBatch
	evidence webtypes.Evidence
}

func (f *fakeBrowser) ExecuteBatch(ctx context.Context, batch webtypes.CommandBatch, pageCtx *webtypes.PageContext) webtypes.Evidence {
	f.executed = &batch
	return f.evidence
}

func testContext() *webtypes.PageContext {
	return &webtypes.PageContext{
		URL:       "https://example.com",
		Signature: "sig0",
		Interactive: []webtypes.Element{
			{CandidateID: 1, Tag: "input", Text: "ZIP code", Attrs: map[string]string{"type": "text", "name": "zip"}, Selectors: []string{"input.zip"}},
			{CandidateID: 2, Tag: "button", Text: "Search", Attrs: map[string]string{}, Selectors: []string{"button.search"}},
			{CandidateID: 3, Tag: "a", Text: "Menu", Attrs: map[string]string{}, Selectors: []string{"a.menu"}},
			{CandidateID: 4, Tag: "a", Text: "Catering", Attrs: map[string]string{}, Selectors: []string{"a.catering"}},
			{CandidateID: 5, Tag: "a", Text: "Rewards", Attrs: map[string]string{}, Selectors: []string{"a.rewards"}},
			{CandidateID: 6, Tag: "a", Text: "Careers", Attrs: map[string]string{}, Selectors: []string{"a.careers"}},
		},
	}
}

func newTestExecutor(client *scriptedClient, fb *fakeBrowser) *Executor {
	cfg := config.SafetyConfig{}
	cfg.Normalize()
	return New(client, fb, cfg, nil)
}

func TestReasonAndActExecutesValidBatch(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":2}],"confidence":0.9,"rationale":"search","breadcrumb":"Clicked Search."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true, Changed: true, DOMBeforeSig: "sig0", DOMAfterSig: "sig1"}}
	exec := newTestExecutor(client, fb)

	outcome, err := exec.ReasonAndAct(context.Background(), "search for the store", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if fb.executed == nil || fb.executed.Commands[0].CandidateID != 2 {
		t.Fatalf("batch not executed: %+v", fb.executed)
	}
	if outcome.Breadcrumb != "Clicked Search." {
		t.Errorf("breadcrumb = %q", outcome.Breadcrumb)
	}
	if outcome.LogicalSuccess == webtypes.TriFalse {
		t.Error("successful execution should not be TriFalse")
	}
}

func TestReasonAndActRetriesTransportOnce(t *testing.T) {
	client := &scriptedClient{
		failures: 1,
		replies:  []string{`{"commands":[{"type":"noop"}],"confidence":0.5,"breadcrumb":"Waited."}`},
	}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	if _, err := exec.ReasonAndAct(context.Background(), "goal", testContext()); err != nil {
		t.Fatalf("single transport failure should be retried: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestReasonAndActDegradesToNoopWhenTransportDies(t *testing.T) {
	client := &scriptedClient{failures: 10}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	outcome, err := exec.ReasonAndAct(context.Background(), "goal", testContext())
	if err != nil {
		t.Fatalf("dead transport should degrade, not abort the step: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want exactly one retry", client.calls)
	}
	if fb.executed == nil || fb.executed.Commands[0].Type != webtypes.CommandNoop {
		t.Fatalf("expected a noop batch, got %+v", fb.executed)
	}
	issues, _ := outcome.Evidence.Findings["planner_issues"].([]string)
	if len(issues) == 0 {
		t.Fatalf("transport failure not recorded in evidence: %+v", outcome.Evidence.Findings)
	}
}

func TestReasonAndActDropsInvalidCandidate(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":99}],"confidence":0.9,"breadcrumb":"Clicked."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	_, err := exec.ReasonAndAct(context.Background(), "goal", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if fb.executed == nil || fb.executed.Commands[0].Type != webtypes.CommandNoop {
		t.Fatalf("hallucinated candidate should degrade to noop, got %+v", fb.executed)
	}
}

func TestReasonAndActEnforcesOverrideForLowRank(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":6}],"confidence":0.9,"breadcrumb":"Clicked Careers."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	_, err := exec.ReasonAndAct(context.Background(), "goal", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if fb.executed.Commands[0].Type != webtypes.CommandNoop {
		t.Fatalf("rank-6 pick without override_reason should be dropped, executed %+v", fb.executed.Commands)
	}
}

func TestReasonAndActHonorsOverrideReason(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":6}],"confidence":0.9,"breadcrumb":"Clicked Careers.","override_reason":"text match and role both point here"}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	if _, err := exec.ReasonAndAct(context.Background(), "goal", testContext()); err != nil {
		t.Fatal(err)
	}
	if fb.executed.Commands[0].CandidateID != 6 {
		t.Fatalf("override_reason should permit the pick, got %+v", fb.executed.Commands)
	}
}

func TestReasonAndActRejectsRecentFailureRetry(t *testing.T) {
	ctx := testContext()
	ctx.RecentEvents = []webtypes.RecentEvent{
		{Type: "step_executed", CandidateID: 2, Selector: "button.search", Success: false},
	}
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":2}],"confidence":0.9,"breadcrumb":"Clicked Search again."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	if _, err := exec.ReasonAndAct(context.Background(), "goal", ctx); err != nil {
		t.Fatal(err)
	}
	if fb.executed.Commands[0].Type != webtypes.CommandNoop {
		t.Fatalf("silent retry of failed candidate should be dropped, got %+v", fb.executed.Commands)
	}
}

func TestReasonAndActRejectsNoChangeCycleRetry(t *testing.T) {
	ctx := testContext()
	ctx.RecentEvents = []webtypes.RecentEvent{
		{Type: "step_executed", CandidateID: 2, Selector: "button.search", Success: true, Changed: false},
		{Type: "step_executed", CandidateID: 2, Selector: "button.search", Success: true, Changed: false},
	}
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":2}],"confidence":0.9,"breadcrumb":"Clicked Search again."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	if _, err := exec.ReasonAndAct(context.Background(), "goal", ctx); err != nil {
		t.Fatal(err)
	}
	if fb.executed.Commands[0].Type != webtypes.CommandNoop {
		t.Fatalf("repeat of a click that changed nothing should need an override_reason, got %+v", fb.executed.Commands)
	}
}

func TestReasonAndActAutoAppendsEnterForSearchFields(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"type","candidate_id":1,"text":"10001"}],"confidence":0.9,"breadcrumb":"Typed the ZIP."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true, Changed: true}}
	exec := newTestExecutor(client, fb)

	if _, err := exec.ReasonAndAct(context.Background(), "enter the zip", testContext()); err != nil {
		t.Fatal(err)
	}
	if !fb.executed.Commands[0].PressEnter {
		t.Fatal("type into zip field should auto-submit with Enter")
	}
}

func TestReasonAndActPausesWithoutConfirmCallback(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"type","candidate_id":1,"text":"4111 1111 1111 1111"}],"confidence":0.9,"breadcrumb":"Typed."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}

	cfg := config.SafetyConfig{ConfirmThreshold: 1, Mode: "interactive"}
	cfg.Normalize()
	exec := New(client, fb, cfg, nil)

	outcome, err := exec.ReasonAndAct(context.Background(), "goal", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if fb.executed != nil {
		t.Fatal("flagged batch must not execute without confirmation")
	}
	if _, ok := outcome.Evidence.Findings["pause_reasons"]; !ok {
		t.Fatalf("pause_reasons missing from evidence: %+v", outcome.Evidence)
	}
	if outcome.LogicalSuccess != webtypes.TriUnknown {
		t.Errorf("paused outcome should be unknown, got %s", outcome.LogicalSuccess)
	}
}

func TestReasonAndActAutonomousDefaultAllowsLowRisk(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"type","candidate_id":1,"text":"4111 1111 1111 1111"}],"confidence":0.9,"breadcrumb":"Typed."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true, Changed: true}}

	// One risk reason at threshold 1: Confirm, resolved to Auto in
	// autonomous mode because it stays below threshold+1.
	cfg := config.SafetyConfig{ConfirmThreshold: 1, Mode: "autonomous"}
	cfg.Normalize()
	exec := New(client, fb, cfg, nil)

	if _, err := exec.ReasonAndAct(context.Background(), "goal", testContext()); err != nil {
		t.Fatal(err)
	}
	if fb.executed == nil {
		t.Fatal("autonomous low-risk confirm should execute")
	}
}

func TestReasonAndActAutonomousDefaultDeniesHighRisk(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"type","candidate_id":1,"text":"card 4111 1111 1111 1111 cvv 123"}],"confidence":0.9,"breadcrumb":"Typed."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}

	cfg := config.SafetyConfig{ConfirmThreshold: 1, Mode: "autonomous"}
	cfg.Normalize()
	exec := New(client, fb, cfg, nil)

	outcome, err := exec.ReasonAndAct(context.Background(), "goal", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if fb.executed != nil {
		t.Fatal("autonomous high-risk confirm should be denied, not executed")
	}
	if _, ok := outcome.Evidence.Findings["deny_reasons"]; !ok {
		t.Fatalf("deny_reasons missing: %+v", outcome.Evidence.Findings)
	}
	if outcome.LogicalSuccess != webtypes.TriFalse {
		t.Errorf("denied outcome = %s, want false", outcome.LogicalSuccess)
	}
}

func TestReasonAndActRecordsAllPlannerIssues(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"click","candidate_id":98},{"type":"click","candidate_id":99},{"type":"noop"}],"confidence":0.9,"breadcrumb":"Clicked."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}
	exec := newTestExecutor(client, fb)

	outcome, err := exec.ReasonAndAct(context.Background(), "goal", testContext())
	if err != nil {
		t.Fatal(err)
	}
	issues, _ := outcome.Evidence.Findings["planner_issues"].([]string)
	if len(issues) < 2 {
		t.Fatalf("expected both dropped candidates recorded, got %v", issues)
	}
}

func TestReasonAndActConfirmCallbackApproves(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"commands":[{"type":"type","candidate_id":1,"text":"4111 1111 1111 1111"}],"confidence":0.9,"breadcrumb":"Typed."}`,
	}}
	fb := &fakeBrowser{evidence: webtypes.Evidence{Success: true}}

	cfg := config.SafetyConfig{ConfirmThreshold: 1}
	cfg.Normalize()
	asked := false
	exec := New(client, fb, cfg, func(batch webtypes.CommandBatch, reasons []string) bool {
		asked = true
		return true
	})

	if _, err := exec.ReasonAndAct(context.Background(), "goal", testContext()); err != nil {
		t.Fatal(err)
	}
	if !asked {
		t.Fatal("confirmation callback never invoked")
	}
	if fb.executed == nil {
		t.Fatal("approved batch did not execute")
	}
}

func TestObserve(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"findings":{"hours":"10-10"},"report":"Open 10 to 10.","complete":true,"confidence":0.9}`,
	}}
	exec := newTestExecutor(client, &fakeBrowser{})

	report, err := exec.Observe(context.Background(), "report the hours", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Complete || report.Findings["hours"] != "10-10" {
		t.Fatalf("bad report: %+v", report)
	}
}
