package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// ArtifactWriter dumps per-step debug artifacts when debug mode is on.
// Artifacts are best-effort: a write failure is logged, never fatal.
type ArtifactWriter struct {
	dir     string
	enabled bool
}

// NewArtifactWriter creates a writer rooted at dir.
func NewArtifactWriter(dir string, enabled bool) *ArtifactWriter {
	return &ArtifactWriter{dir: dir, enabled: enabled}
}

func (w *ArtifactWriter) write(name, content string) {
	if !w.enabled {
		return
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		logging.AgentWarn("artifact dir: %v", err)
		return
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		logging.AgentWarn("artifact write %s: %v", name, err)
	}
}

func (w *ArtifactWriter) stamp() string {
	return time.Now().Format("20060102_150405")
}

// Prompt records the full prompt sent for a step.
func (w *ArtifactWriter) Prompt(step int, prompt string) {
	w.write(fmt.Sprintf("web_prompt_step%d_%s.txt", step, w.stamp()), prompt)
}

// Skeleton records the page skeleton the planner saw.
func (w *ArtifactWriter) Skeleton(step int, skeleton string) {
	w.write(fmt.Sprintf("web_skeleton_step%d_%s.txt", step, w.stamp()), skeleton)
}

// Outcome records the executed batch and its evidence.
func (w *ArtifactWriter) Outcome(step int, outcome webtypes.StepOutcome) {
	var b strings.Builder
	fmt.Fprintf(&b, "confidence: %.2f\n", outcome.Confidence)
	fmt.Fprintf(&b, "logical_success: %s\n", outcome.LogicalSuccess)
	fmt.Fprintf(&b, "rationale: %s\n", outcome.Rationale)
	fmt.Fprintf(&b, "breadcrumb: %s\n\n", outcome.Breadcrumb)
	for i, cmd := range outcome.Batch.Commands {
		fmt.Fprintf(&b, "command %d: %s candidate=%d url=%q text=%q\n", i+1, cmd.Type, cmd.CandidateID, cmd.URL, cmd.Text)
	}
	fmt.Fprintf(&b, "\nevidence: success=%v changed=%v %s -> %s (%dms)\n",
		outcome.Evidence.Success, outcome.Evidence.Changed,
		outcome.Evidence.DOMBeforeSig, outcome.Evidence.DOMAfterSig, outcome.Evidence.TimingMs)
	for _, e := range outcome.Evidence.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	w.write(fmt.Sprintf("web_outcome_step%d_%s.txt", step, w.stamp()), b.String())
}

// Observation records the structured report returned for an observation step.
func (w *ArtifactWriter) Observation(step int, report string) {
	w.write(fmt.Sprintf("observation_response_step%d_%s.txt", step, w.stamp()), report)
}

func (w *ArtifactWriter) writeJSON(name string, v any) {
	if !w.enabled {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.AgentWarn("artifact marshal %s: %v", name, err)
		return
	}
	w.write(name, string(data))
}

// LatticeState snapshots episodic memory after a step completes.
func (w *ArtifactWriter) LatticeState(step int, v any) {
	w.writeJSON(fmt.Sprintf("lattice_state_after_step%d.json", step), v)
}

// FinalLattice records the closing state of the episode.
func (w *ArtifactWriter) FinalLattice(v any) {
	w.writeJSON("final_lattice_state.json", v)
}

// RunSummary writes the episode audit trail after the loop finishes.
func (w *ArtifactWriter) RunSummary(goal string, success bool, breadcrumbs []string, report string) {
	var b strings.Builder
	b.WriteString("# Run Summary\n\n")
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Result: %s\n\n", map[bool]string{true: "SUCCESS", false: "INCOMPLETE"}[success])
	b.WriteString("## Audit Trail\n\n")
	for i, crumb := range breadcrumbs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, crumb)
	}
	if report != "" {
		b.WriteString("\n## Final Report\n\n")
		b.WriteString(report)
		b.WriteByte('\n')
	}
	w.write("RUN_SUMMARY_AUDIT_TRAIL.md", b.String())
}
