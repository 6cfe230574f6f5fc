// Package executor runs one reason-and-act cycle: assemble the prompt,
// query the planner LLM, validate the returned batch against the page
// context, clear the safety policy, and execute in the browser.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"webnerd/internal/config"
	"webnerd/internal/llm"
	"webnerd/internal/logging"
	"webnerd/internal/planner"
	"webnerd/internal/safety"
	"webnerd/internal/webtypes"
)

// ConfirmFunc asks the operator whether a risky batch may run. A nil
// callback means no operator is present.
type ConfirmFunc func(batch webtypes.CommandBatch, reasons []string) bool

// BatchRunner executes a validated batch against the live page.
// *browser.Controller is the production implementation.
type BatchRunner interface {
	ExecuteBatch(ctx context.Context, batch webtypes.CommandBatch, pageCtx *webtypes.PageContext) webtypes.Evidence
}

// Executor owns the per-step pipeline.
type Executor struct {
	client  llm.Client
	ctrl    BatchRunner
	policy  *safety.Policy
	mode    safety.Mode
	confirm ConfirmFunc
}

// New builds an Executor from the shared components.
func New(client llm.Client, ctrl BatchRunner, safetyCfg config.SafetyConfig, confirm ConfirmFunc) *Executor {
	return &Executor{
		client:  client,
		ctrl:    ctrl,
		policy:  safety.NewPolicy(safetyCfg),
		mode:    safety.Mode(safetyCfg.Mode),
		confirm: confirm,
	}
}

// ReasonAndAct performs one full planning/execution cycle for the given
// step goal. It never returns an error for planner misbehavior: parse
// failures, invalid candidates, denied batches, and even a dead LLM
// transport all degrade into a StepOutcome whose evidence explains what
// happened. Only cancellation propagates as an error.
func (e *Executor) ReasonAndAct(ctx context.Context, stepGoal string, pageCtx *webtypes.PageContext) (webtypes.StepOutcome, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, "reason_and_act")
	defer timer.Stop()

	prompt := planner.BuildReasoningPrompt(stepGoal, pageCtx, pageCtx.RecentEvents, pageCtx.Breadcrumbs)

	var (
		batch  webtypes.CommandBatch
		issues []string
	)
	reply, err := e.complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return webtypes.StepOutcome{}, fmt.Errorf("planner LLM: %w", err)
		}
		batch = webtypes.NoopBatch("planner unavailable: " + err.Error())
		issues = append(issues, fmt.Sprintf("llm transport failure after retry: %v", err))
	} else {
		var parseIssues, validationIssues []string
		batch, parseIssues = planner.ParseCommandBatch(reply)
		batch, validationIssues = e.validateBatch(batch, pageCtx)
		issues = append(parseIssues, validationIssues...)
	}

	outcome := webtypes.StepOutcome{
		Batch:      batch,
		Confidence: batch.Confidence,
		Rationale:  batch.Rationale,
		Breadcrumb: batch.Breadcrumb,
	}

	decision := e.policy.Classify(batch, pageCtx, e.mode, batch.Confidence)
	switch decision.Action {
	case safety.Deny:
		outcome.Evidence = deniedEvidence(pageCtx, decision.Reasons, issues)
		outcome.LogicalSuccess = webtypes.TriFalse
		return outcome, nil
	case safety.Confirm:
		if e.confirm == nil {
			// No operator available: the mode default decides. Interactive
			// runs pause; autonomous runs deny high-risk and allow the rest.
			switch e.policy.DefaultForMode(decision, e.mode) {
			case safety.Deny:
				outcome.Evidence = deniedEvidence(pageCtx, decision.Reasons, issues)
				outcome.LogicalSuccess = webtypes.TriFalse
				return outcome, nil
			case safety.Confirm:
				outcome.Evidence = pausedEvidence(pageCtx, decision.Reasons, issues)
				outcome.LogicalSuccess = webtypes.TriUnknown
				return outcome, nil
			}
		} else if !e.confirm(batch, decision.Reasons) {
			outcome.Evidence = deniedEvidence(pageCtx, append(decision.Reasons, "operator declined"), issues)
			outcome.LogicalSuccess = webtypes.TriFalse
			return outcome, nil
		}
	}

	evidence := e.ctrl.ExecuteBatch(ctx, batch, pageCtx)
	if len(issues) > 0 {
		evidence.SetFinding("planner_issues", issues)
	}
	outcome.Evidence = evidence
	outcome.LogicalSuccess = physicalVerdict(evidence)

	logging.Executor("step %d/%d: %d commands, confidence=%.2f success=%v changed=%v",
		pageCtx.StepNumber, pageCtx.TotalSteps, len(batch.Commands), batch.Confidence, evidence.Success, evidence.Changed)
	return outcome, nil
}

// Observe performs one observation cycle: no commands, just a report.
func (e *Executor) Observe(ctx context.Context, stepGoal string, pageCtx *webtypes.PageContext) (webtypes.ObservationReport, error) {
	prompt := planner.BuildObservationPrompt(stepGoal, pageCtx, pageCtx.Breadcrumbs)

	reply, err := e.completeWithSystem(ctx, planner.ObservationSystemPrompt, prompt)
	if err != nil {
		return webtypes.ObservationReport{}, fmt.Errorf("observer LLM: %w", err)
	}
	report, issues := planner.ParseObservationReport(reply)
	for _, issue := range issues {
		logging.ExecutorDebug("observation issue: %s", issue)
	}
	return report, nil
}

// complete queries the LLM with one transport-level retry.
func (e *Executor) complete(ctx context.Context, prompt string) (string, error) {
	return e.completeWithSystem(ctx, planner.SystemPrompt, prompt)
}

func (e *Executor) completeWithSystem(ctx context.Context, system, prompt string) (string, error) {
	reply, err := e.client.CompleteWithSystem(ctx, system, prompt)
	if err == nil {
		return reply, nil
	}
	logging.APIError("LLM call failed, retrying once: %v", err)
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return e.client.CompleteWithSystem(ctx, system, prompt)
}

// validateBatch enforces the candidate-reference rules the prompt
// promised: ids must resolve, off-ranking picks need an override
// reason, recently ineffective candidates are not retried silently,
// and a type into a search-like field always submits.
func (e *Executor) validateBatch(batch webtypes.CommandBatch, pageCtx *webtypes.PageContext) (webtypes.CommandBatch, []string) {
	var issues []string
	kept := batch.Commands[:0]

	for _, cmd := range batch.Commands {
		if cmd.NeedsCandidate() {
			el, ok := pageCtx.ResolveCandidate(cmd.CandidateID)
			if !ok {
				issues = append(issues, fmt.Sprintf("dropped %s: candidate %d not in page context", cmd.Type, cmd.CandidateID))
				continue
			}
			if rank := pageCtx.CandidateRank(cmd.CandidateID); rank > 5 && strings.TrimSpace(batch.OverrideReason) == "" {
				issues = append(issues, fmt.Sprintf("dropped %s: candidate %d is rank %d with no override_reason", cmd.Type, cmd.CandidateID, rank))
				continue
			}
			if recentlyIneffective(pageCtx.RecentEvents, cmd.CandidateID, el.BestSelector()) && strings.TrimSpace(batch.OverrideReason) == "" {
				issues = append(issues, fmt.Sprintf("dropped %s: candidate %d was recently ineffective and no override_reason given", cmd.Type, cmd.CandidateID))
				continue
			}
			if cmd.Type == webtypes.CommandTypeText && !cmd.PressEnter && isSearchLike(el) {
				cmd.PressEnter = true
				issues = append(issues, fmt.Sprintf("auto-submit: appended Enter to type into search field (candidate %d)", cmd.CandidateID))
			}
		}
		kept = append(kept, cmd)
	}

	batch.Commands = kept
	if len(batch.Commands) > webtypes.MaxCommandsPerBatch {
		batch.Commands = batch.Commands[:webtypes.MaxCommandsPerBatch]
	}
	if len(batch.Commands) == 0 {
		issues = append(issues, "all commands dropped by validation, substituting noop")
		noop := webtypes.NoopBatch("every planned command failed validation against the current page")
		noop.Rationale = batch.Rationale
		noop.Breadcrumb = batch.Breadcrumb
		noop.Confidence = batch.Confidence
		return noop, issues
	}
	return batch, issues
}

// recentlyIneffective reports whether this candidate or selector, in
// the last three recorded events, either failed outright or succeeded
// at the driver level without changing the page. A click that worked
// but moved nothing is the hallmark of a useless loop and needs the
// same override to retry.
func recentlyIneffective(events []webtypes.RecentEvent, candidateID int, selector string) bool {
	start := len(events) - 3
	if start < 0 {
		start = 0
	}
	for _, ev := range events[start:] {
		if ev.Success && ev.Changed {
			continue
		}
		if candidateID > 0 && ev.CandidateID == candidateID {
			return true
		}
		if selector != "" && ev.Selector == selector {
			return true
		}
	}
	return false
}

// isSearchLike recognizes inputs that expect Enter to submit.
func isSearchLike(el webtypes.Element) bool {
	if el.Tag != "input" && el.Tag != "textarea" {
		return false
	}
	hints := strings.ToLower(el.Attrs["type"] + " " + el.Attrs["name"] + " " + el.Attrs["placeholder"] + " " + el.Attrs["aria-label"])
	for _, needle := range []string{"search", "zip", "postal", "address", "location", "query"} {
		if strings.Contains(hints, needle) {
			return true
		}
	}
	return false
}

// physicalVerdict derives the three-valued success from raw evidence.
// Logical success against the step goal is arbitrated one level up,
// where verification rules live; here we only know physics.
func physicalVerdict(ev webtypes.Evidence) webtypes.TriState {
	if !ev.Success {
		return webtypes.TriFalse
	}
	return webtypes.TriUnknown
}

func deniedEvidence(pageCtx *webtypes.PageContext, reasons, issues []string) webtypes.Evidence {
	ev := webtypes.Evidence{
		Success:      false,
		DOMBeforeSig: pageCtx.Signature,
		DOMAfterSig:  pageCtx.Signature,
		Errors:       []string{"batch denied by safety policy"},
	}
	ev.SetFinding("deny_reasons", reasons)
	if len(issues) > 0 {
		ev.SetFinding("planner_issues", issues)
	}
	logging.Safety("batch denied: %s", strings.Join(reasons, "; "))
	return ev
}

func pausedEvidence(pageCtx *webtypes.PageContext, reasons, issues []string) webtypes.Evidence {
	ev := webtypes.Evidence{
		Success:      false,
		DOMBeforeSig: pageCtx.Signature,
		DOMAfterSig:  pageCtx.Signature,
	}
	ev.SetFinding("pause_reasons", reasons)
	if len(issues) > 0 {
		ev.SetFinding("planner_issues", issues)
	}
	logging.Safety("batch paused for confirmation, no callback available: %s", strings.Join(reasons, "; "))
	return ev
}
