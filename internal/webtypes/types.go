// Package webtypes defines the shared data model for the web-navigation
// agent: page observations, planner commands, and execution evidence.
// These types flow between the DOM processor, planner, executor, browser
// controller, and coordinator; keeping them in one leaf package avoids
// import cycles between those layers.
package webtypes

import (
	"time"
)

// MaxCommandsPerBatch caps how many commands a planner reply may carry.
const MaxCommandsPerBatch = 3

// MaxCandidates bounds the interactive element list sent to the planner.
const MaxCandidates = 200

// Element is one interactive candidate extracted from a page.
type Element struct {
	Tag         string            `json:"tag"`
	Text        string            `json:"text"`
	Attrs       map[string]string `json:"attrs,omitempty"`
	Selectors   []string          `json:"selectors"`
	Score       float64           `json:"score"`
	CandidateID int               `json:"candidate_id"`
}

// BestSelector returns the most-unique selector for the element.
func (e Element) BestSelector() string {
	if len(e.Selectors) == 0 {
		return ""
	}
	return e.Selectors[0]
}

// RecentEvent is a distilled view of a lattice event carried into
// prompts and cycle detection. The coordinator builds these from the
// full event log so the planner layer never imports the lattice.
type RecentEvent struct {
	Type        string    `json:"type"`
	Summary     string    `json:"summary"`
	CandidateID int       `json:"candidate_id,omitempty"`
	Selector    string    `json:"selector,omitempty"`
	Changed     bool      `json:"changed"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

// LatticeState is the planner-visible slice of the cognitive lattice:
// the plan it previously generated and how far the episode has advanced.
type LatticeState struct {
	PlannedSteps       []string `json:"planned_steps"`
	CurrentIndex       int      `json:"current_index"`
	SuccessfulPatterns []string `json:"successful_patterns,omitempty"`
}

// PageContext is one observation of the browser state plus the memory
// bridge the planner reasons over. It is single-producer (DOM
// processor), single-consumer (step executor) within a step.
type PageContext struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Signature string `json:"signature"`
	Skeleton  string `json:"skeleton"`
	RawDOM    string `json:"-"`

	// Interactive is sorted by Score descending; CandidateIDs are
	// sequential 1..N and unique within this context.
	Interactive []Element `json:"interactive"`

	StepNumber      int    `json:"step_number"`
	TotalSteps      int    `json:"total_steps"`
	OverallGoal     string `json:"overall_goal"`
	CurrentStepGoal string `json:"current_step_goal"`

	RecentEvents      []RecentEvent `json:"recent_events,omitempty"`
	PreviousSignature string        `json:"previous_signature,omitempty"`
	LatticeState      *LatticeState `json:"lattice_state,omitempty"`
	Breadcrumbs       []string      `json:"breadcrumbs,omitempty"`
}

// ResolveCandidate maps a planner-chosen candidate id back to the
// Element that produced it. This indirection is what keeps fabricated
// selectors out of the executor: the planner never hands us a selector
// string, only an index into this table.
func (ctx *PageContext) ResolveCandidate(id int) (Element, bool) {
	if ctx == nil || id <= 0 {
		return Element{}, false
	}
	for _, el := range ctx.Interactive {
		if el.CandidateID == id {
			return el, true
		}
	}
	return Element{}, false
}

// TopCandidates returns the first n elements by score order.
func (ctx *PageContext) TopCandidates(n int) []Element {
	if ctx == nil || n <= 0 {
		return nil
	}
	if n > len(ctx.Interactive) {
		n = len(ctx.Interactive)
	}
	return ctx.Interactive[:n]
}

// CandidateRank returns the 1-based rank of a candidate id in the
// scored ordering, or 0 if the id does not resolve.
func (ctx *PageContext) CandidateRank(id int) int {
	if ctx == nil {
		return 0
	}
	for i, el := range ctx.Interactive {
		if el.CandidateID == id {
			return i + 1
		}
	}
	return 0
}

// CommandType enumerates the atomic browser verbs.
type CommandType string

const (
	CommandNavigate CommandType = "navigate"
	CommandClick    CommandType = "click"
	CommandTypeText CommandType = "type"
	CommandPress    CommandType = "press"
	CommandWaitFor  CommandType = "wait_for"
	CommandNoop     CommandType = "noop"
)

// KnownCommandType reports whether t is one of the recognized verbs.
func KnownCommandType(t CommandType) bool {
	switch t {
	case CommandNavigate, CommandClick, CommandTypeText, CommandPress, CommandWaitFor, CommandNoop:
		return true
	}
	return false
}

// Command is one atomic browser verb. Elements are referenced only by
// CandidateID, never by raw selector.
type Command struct {
	Type        CommandType `json:"type"`
	CandidateID int         `json:"candidate_id,omitempty"`
	Text        string      `json:"text,omitempty"`
	URL         string      `json:"url,omitempty"`
	Key         string      `json:"key,omitempty"`
	PressEnter  bool        `json:"press_enter,omitempty"`

	// WaitFor parameters.
	SignatureChange bool `json:"signature_change,omitempty"`
	TimeoutMs       int  `json:"timeout_ms,omitempty"`
}

// NeedsCandidate reports whether the command must resolve a candidate
// id against the governing PageContext before execution.
func (c Command) NeedsCandidate() bool {
	switch c.Type {
	case CommandClick, CommandTypeText:
		return true
	case CommandPress:
		return c.CandidateID > 0
	}
	return false
}

// CommandBatch is 1-3 commands plus planner metadata.
type CommandBatch struct {
	Commands       []Command `json:"commands"`
	Confidence     float64   `json:"confidence"`
	Rationale      string    `json:"rationale"`
	Breadcrumb     string    `json:"breadcrumb"`
	OverrideReason string    `json:"override_reason,omitempty"`
}

// NoopBatch builds the degenerate batch used when planning fails. Every
// parse or transport failure degrades to this instead of raising.
func NoopBatch(rationale string) CommandBatch {
	return CommandBatch{
		Commands:   []Command{{Type: CommandNoop}},
		Confidence: 0.1,
		Rationale:  rationale,
		Breadcrumb: "No action taken.",
	}
}

// Evidence is the structured outcome of executing a batch.
type Evidence struct {
	Success         bool           `json:"success"`
	DOMBeforeSig    string         `json:"dom_before_sig"`
	DOMAfterSig     string         `json:"dom_after_sig"`
	Changed         bool           `json:"changed"`
	UsedCandidateID int            `json:"used_candidate_id,omitempty"`
	Errors          []string       `json:"errors,omitempty"`
	TimingMs        int64          `json:"timing_ms"`
	Findings        map[string]any `json:"findings,omitempty"`
}

// SetFinding records a free-form key/value observation on the evidence.
func (e *Evidence) SetFinding(key string, value any) {
	if e.Findings == nil {
		e.Findings = make(map[string]any)
	}
	e.Findings[key] = value
}

// TriState is a three-valued verdict used for logical success.
type TriState string

const (
	TriTrue    TriState = "true"
	TriFalse   TriState = "false"
	TriUnknown TriState = "unknown"
)

// StepOutcome packages one planning/execution cycle.
type StepOutcome struct {
	Batch          CommandBatch `json:"batch"`
	Evidence       Evidence     `json:"evidence"`
	Confidence     float64      `json:"confidence"`
	Rationale      string       `json:"rationale"`
	Breadcrumb     string       `json:"breadcrumb"`
	LogicalSuccess TriState     `json:"logical_success"`
}

// ObservationReport is the structured reply schema for observation
// steps: the planner reads the page and reports findings without
// issuing any browser commands.
type ObservationReport struct {
	Findings   map[string]any `json:"findings"`
	Report     string         `json:"report"`
	Complete   bool           `json:"complete"`
	Confidence float64        `json:"confidence"`
}

// VerificationRule is threaded through a plan step so logical-success
// arbitration stays domain-agnostic: the coordinator checks these
// instead of hard-coding URL substrings.
type VerificationRule struct {
	URLContains     []string `json:"url_contains,omitempty"`
	FindingKey      string   `json:"finding_key,omitempty"`
	RequireDOMDelta bool     `json:"require_dom_delta,omitempty"`
}

// PlanStep is one natural-language sub-goal plus its kind, decided at
// plan-parse time rather than at dispatch time.
type PlanStep struct {
	Description  string            `json:"description"`
	Kind         StepKind          `json:"kind"`
	Verification *VerificationRule `json:"verification,omitempty"`
}

// StepKind distinguishes steps that act on the page from steps that
// only read it.
type StepKind string

const (
	StepAction      StepKind = "action"
	StepObservation StepKind = "observation"
)
