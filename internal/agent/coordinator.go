// Package agent is the coordinator: it turns a natural-language goal
// into a plan, drives the per-step reason-and-act loop, arbitrates
// logical success, and records everything in the cognitive lattice.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"webnerd/internal/browser"
	"webnerd/internal/config"
	"webnerd/internal/dom"
	"webnerd/internal/executor"
	"webnerd/internal/lattice"
	"webnerd/internal/llm"
	"webnerd/internal/logging"
	"webnerd/internal/planner"
	"webnerd/internal/store"
	"webnerd/internal/webtypes"
)

// EpisodeResult is what a finished (or paused) episode reports back.
type EpisodeResult struct {
	Success     bool     `json:"success"`
	Paused      bool     `json:"paused"`
	Report      string   `json:"report"`
	Breadcrumbs []string `json:"breadcrumbs"`
	SessionPath string   `json:"session_path"`
	Iterations  int      `json:"iterations"`
}

// Coordinator owns one episode's components.
type Coordinator struct {
	cfg       *config.Config
	client    llm.Client
	ctrl      *browser.Controller
	exec      *executor.Executor
	proc      *dom.Processor
	lat       *lattice.Lattice
	archive   *store.Archive
	artifacts *ArtifactWriter
}

// NewCoordinator wires a coordinator from shared components. The
// archive is optional; pass nil to skip episode archival.
func NewCoordinator(cfg *config.Config, client llm.Client, ctrl *browser.Controller, archive *store.Archive, confirm executor.ConfirmFunc) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		client:    client,
		ctrl:      ctrl,
		exec:      executor.New(client, ctrl, cfg.Safety, confirm),
		proc:      dom.NewProcessor(cfg.DOM),
		archive:   archive,
		artifacts: NewArtifactWriter(cfg.Agent.DebugDir, cfg.Logging.DebugMode || logging.IsDebugMode()),
	}
}

// Resume loads a persisted lattice so the episode continues where the
// previous process stopped.
func (c *Coordinator) Resume(path string) error {
	l, err := lattice.Load(path)
	if err != nil {
		return err
	}
	c.lat = l
	return nil
}

// ExecuteWebTask runs a full episode: plan, step loop, verdict. The
// returned error covers infrastructure failures only; a goal the agent
// could not reach comes back as Success=false with an explanation.
func (c *Coordinator) ExecuteWebTask(ctx context.Context, goal, startURL string) (EpisodeResult, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "ExecuteWebTask")
	defer timer.Stop()

	if c.lat == nil {
		c.lat = lattice.New(c.cfg.Agent.SessionDir, goal)
	}
	if goal == "" {
		goal = c.lat.Goal
	}
	result := EpisodeResult{SessionPath: c.lat.Path()}

	task, ok := c.lat.GetActiveTask()
	if !ok {
		steps := CreateWebAutomationPlan(ctx, c.client, goal)
		var err error
		task, err = c.lat.CreateNewTask(goal, steps)
		if err != nil {
			return result, fmt.Errorf("create task: %w", err)
		}
	} else {
		logging.Agent("resuming task %s at %s", task.ID, c.lat.GetTaskProgress())
	}

	if startURL != "" {
		if err := c.ctrl.Navigate(ctx, startURL); err != nil {
			return result, fmt.Errorf("initial navigation: %w", err)
		}
		_ = c.lat.AddEvent("navigation", "Opened "+startURL, true, nil)
	}

	var (
		breadcrumbs []string
		prevSig     string
		finalReport string
		paused      bool
	)
	breadcrumbs = append(breadcrumbs, c.seedBreadcrumbs()...)

	totalSteps := len(task.Steps)
	for iter := 0; iter < c.cfg.Agent.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			paused = true
			break
		}
		result.Iterations = iter + 1

		step, idx, err := c.lat.CurrentStep()
		if err != nil {
			break // plan exhausted
		}

		pageCtx, err := c.observePage(ctx, step.Description, goal, idx, totalSteps, prevSig, breadcrumbs)
		if err != nil {
			logging.AgentWarn("page observation failed: %v", err)
			_ = c.lat.AddEvent("observation_error", err.Error(), false, nil)
			continue
		}
		c.artifacts.Skeleton(idx+1, pageCtx.Skeleton)

		if step.Kind == webtypes.StepObservation {
			report, done := c.runObservation(ctx, step, pageCtx)
			c.artifacts.Observation(idx+1, report.Report)
			if report.Report != "" {
				finalReport = report.Report
			}
			if done {
				breadcrumbs = appendBreadcrumb(breadcrumbs, "Observed: "+firstSentence(report.Report), c.cfg.Agent.MaxBreadcrumbs)
			}
			prevSig = pageCtx.Signature
		} else {
			// BuildReasoningPrompt is deterministic, so this artifact is
			// exactly what the executor sends.
			c.artifacts.Prompt(idx+1, planner.BuildReasoningPrompt(step.Description, pageCtx, pageCtx.RecentEvents, pageCtx.Breadcrumbs))
			outcome, err := c.exec.ReasonAndAct(ctx, step.Description, pageCtx)
			if err != nil {
				// Only cancellation surfaces as an error; break so the tail
				// still persists the lattice and writes the summary.
				logging.AgentWarn("step %d aborted: %v", idx+1, err)
				_ = c.lat.AddEvent("error", err.Error(), false, nil)
				paused = true
				finalReport = "Aborted: " + err.Error()
				break
			}
			c.artifacts.Outcome(idx+1, outcome)
			if err := c.lat.RecordStep(outcome); err != nil {
				logging.LatticeError("record step: %v", err)
			}

			if _, isPaused := outcome.Evidence.Findings["pause_reasons"]; isPaused {
				paused = true
				finalReport = "Paused: the next action needs operator confirmation. Resume with --session " + c.lat.Path()
				break
			}

			verdict := arbitrate(outcome, step.Verification)
			if verdict == webtypes.TriTrue {
				_ = c.lat.MarkStepCompleted(outcome.Breadcrumb)
				breadcrumbs = appendBreadcrumb(breadcrumbs, outcome.Breadcrumb, c.cfg.Agent.MaxBreadcrumbs)
			} else {
				logging.Agent("step %d not yet complete (verdict=%s), retrying", idx+1, verdict)
			}
			prevSig = outcome.Evidence.DOMAfterSig
		}
		c.artifacts.LatticeState(idx+1, c.lat)

		select {
		case <-time.After(c.cfg.Agent.InterStepSleep()):
		case <-ctx.Done():
		}
	}

	completed := c.lat.CompletedStepCount()
	result.Success = !paused && totalSteps > 0 && completed*2 >= totalSteps
	result.Paused = paused
	result.Breadcrumbs = breadcrumbs
	result.Report = finalReport
	if result.Report == "" {
		result.Report = fmt.Sprintf("Completed %d of %d planned steps.", completed, totalSteps)
	}

	if !paused {
		_ = c.lat.CompleteCurrentTask(result.Success, result.Report)
	} else {
		_ = c.lat.Save()
	}
	c.artifacts.FinalLattice(c.lat)
	c.artifacts.RunSummary(goal, result.Success, breadcrumbs, result.Report)
	c.archiveEpisode(ctx, result)

	logging.Agent("episode finished: success=%v paused=%v steps=%d/%d iterations=%d",
		result.Success, paused, completed, totalSteps, result.Iterations)
	return result, nil
}

// observePage captures the live DOM and builds the planner context.
func (c *Coordinator) observePage(ctx context.Context, stepGoal, goal string, stepIdx, totalSteps int, prevSig string, breadcrumbs []string) (*webtypes.PageContext, error) {
	state, err := c.ctrl.CurrentDOM(ctx)
	if err != nil {
		return nil, err
	}
	return c.proc.ContextFromPage(
		dom.PageInput{RawHTML: state.HTML, Title: state.Title, URL: state.URL},
		stepGoal,
		dom.ContextOptions{
			StepNumber:        stepIdx + 1,
			TotalSteps:        totalSteps,
			OverallGoal:       goal,
			CurrentStepGoal:   stepGoal,
			RecentEvents:      c.lat.GetRecentEvents(c.cfg.Agent.RecentEventLimit),
			PreviousSignature: prevSig,
			LatticeState:      c.lat.PlannerState(),
			Breadcrumbs:       breadcrumbs,
		},
	), nil
}

// runObservation executes an observation step, files its findings into
// lattice memory, and advances the plan when the report is complete.
func (c *Coordinator) runObservation(ctx context.Context, step webtypes.PlanStep, pageCtx *webtypes.PageContext) (webtypes.ObservationReport, bool) {
	report, err := c.exec.Observe(ctx, step.Description, pageCtx)
	if err != nil {
		logging.AgentWarn("observation failed: %v", err)
		_ = c.lat.AddEvent("observation_error", err.Error(), false, nil)
		return webtypes.ObservationReport{}, false
	}

	_ = c.lat.AddEvent("observation", report.Report, report.Complete, map[string]any{
		"confidence": report.Confidence,
		"findings":   report.Findings,
	})
	for key, value := range report.Findings {
		_ = c.lat.AddMemory(key, fmt.Sprintf("%v", value), "")
	}

	complete := report.Complete
	if step.Verification != nil && step.Verification.FindingKey != "" {
		_, hasKey := report.Findings[step.Verification.FindingKey]
		complete = complete && hasKey
	}
	if complete {
		_ = c.lat.MarkStepCompleted("Observed: " + firstSentence(report.Report))
	}
	return report, complete
}

// arbitrate turns raw evidence plus the step's verification rule into
// the logical-success verdict that decides whether the plan advances.
func arbitrate(outcome webtypes.StepOutcome, rule *webtypes.VerificationRule) webtypes.TriState {
	if !outcome.Evidence.Success {
		return webtypes.TriFalse
	}
	if rule == nil {
		// Without a rule, a physical change is the best signal we have.
		if outcome.Evidence.Changed {
			return webtypes.TriTrue
		}
		return webtypes.TriUnknown
	}

	if rule.RequireDOMDelta && !outcome.Evidence.Changed {
		return webtypes.TriFalse
	}
	if len(rule.URLContains) > 0 {
		url, _ := outcome.Evidence.Findings["final_url"].(string)
		for _, needle := range rule.URLContains {
			if needle != "" && strings.Contains(strings.ToLower(url), strings.ToLower(needle)) {
				return webtypes.TriTrue
			}
		}
		return webtypes.TriUnknown
	}
	if outcome.Evidence.Changed {
		return webtypes.TriTrue
	}
	return webtypes.TriUnknown
}

func (c *Coordinator) archiveEpisode(ctx context.Context, result EpisodeResult) {
	if c.archive == nil {
		return
	}
	status := "failed"
	switch {
	case result.Paused:
		status = "paused"
	case result.Success:
		status = "completed"
	}
	if err := c.archive.SaveEpisode(ctx, c.lat, status); err != nil {
		logging.AgentWarn("episode archive failed: %v", err)
	}
}

// seedBreadcrumbs rebuilds the breadcrumb chain from the lattice when
// resuming a session.
func (c *Coordinator) seedBreadcrumbs() []string {
	var crumbs []string
	for _, ev := range c.lat.GetRecentEvents(c.cfg.Agent.MaxBreadcrumbs) {
		if ev.Summary != "" {
			crumbs = append(crumbs, ev.Summary)
		}
	}
	return crumbs
}

func appendBreadcrumb(crumbs []string, crumb string, max int) []string {
	if strings.TrimSpace(crumb) == "" {
		return crumbs
	}
	crumbs = append(crumbs, crumb)
	if len(crumbs) > max {
		crumbs = crumbs[len(crumbs)-max:]
	}
	return crumbs
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".!?\n"); idx > 0 && idx < 160 {
		return s[:idx+1]
	}
	if len(s) > 160 {
		return s[:160]
	}
	return s
}
