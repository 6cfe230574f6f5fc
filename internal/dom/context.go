package dom

import (
	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// PageInput is the raw observation handed to the processor by the
// browser controller.
type PageInput struct {
	RawHTML string
	Title   string
	URL     string
}

// ContextOptions carries the memory bridge the coordinator threads into
// each observation.
type ContextOptions struct {
	StepNumber        int
	TotalSteps        int
	OverallGoal       string
	CurrentStepGoal   string
	RecentEvents      []webtypes.RecentEvent
	PreviousSignature string
	LatticeState      *webtypes.LatticeState
	Breadcrumbs       []string
}

// ContextFromPage composes the full pipeline: compress, sign, skeleton,
// extract, score, and candidate-id assignment. Candidate ids are
// sequential 1..N over the top scored elements; the id table is the
// only element reference the planner may use.
func (p *Processor) ContextFromPage(page PageInput, goal string, opts ContextOptions) *webtypes.PageContext {
	timer := logging.StartTimer(logging.CategoryDOM, "ContextFromPage")
	defer timer.Stop()

	compressed := p.Compress(page.RawHTML, goal)
	sig := Signature(compressed)

	elements := p.Extract(page.RawHTML)
	scored := p.Score(elements, goal)

	max := p.cfg.InteractiveMaxItems
	if max > webtypes.MaxCandidates {
		max = webtypes.MaxCandidates
	}
	if len(scored) > max {
		scored = scored[:max]
	}
	for i := range scored {
		scored[i].CandidateID = i + 1
	}

	logging.DOMDebug("page %s: %d candidates, signature %s", page.URL, len(scored), sig)

	return &webtypes.PageContext{
		URL:               page.URL,
		Title:             page.Title,
		Signature:         sig,
		Skeleton:          p.Skeleton(compressed),
		RawDOM:            compressed,
		Interactive:       scored,
		StepNumber:        opts.StepNumber,
		TotalSteps:        opts.TotalSteps,
		OverallGoal:       opts.OverallGoal,
		CurrentStepGoal:   opts.CurrentStepGoal,
		RecentEvents:      opts.RecentEvents,
		PreviousSignature: opts.PreviousSignature,
		LatticeState:      opts.LatticeState,
		Breadcrumbs:       opts.Breadcrumbs,
	}
}
