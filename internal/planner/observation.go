package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"webnerd/internal/webtypes"
)

// ObservationSystemPrompt is the fixed system message for observation
// steps: the planner reads the page and reports, issuing no commands.
const ObservationSystemPrompt = `You are a web-page observer. You read one page snapshot and report structured findings. You never propose browser actions.`

// BuildObservationPrompt assembles the observation-step prompt. Like
// the reasoning prompt it is a pure function of its inputs.
func BuildObservationPrompt(stepGoal string, ctx *webtypes.PageContext, breadcrumbs []string) string {
	var b strings.Builder

	b.WriteString("# OBSERVATION TASK\n")
	fmt.Fprintf(&b, "Overall goal: %s\n", ctx.OverallGoal)
	fmt.Fprintf(&b, "Observe and report (step %d/%d): %s\n\n", ctx.StepNumber, ctx.TotalSteps, stepGoal)

	b.WriteString("# CURRENT PAGE\n")
	fmt.Fprintf(&b, "URL: %s\n", ctx.URL)
	fmt.Fprintf(&b, "Title: %s\n\n", ctx.Title)

	b.WriteString("# PAGE SKELETON\n")
	skeleton := ctx.Skeleton
	if len(skeleton) > maxSkeletonChars {
		skeleton = skeleton[:maxSkeletonChars] + "\n[skeleton truncated]"
	}
	b.WriteString(skeleton)
	b.WriteString("\n\n")

	b.WriteString("# VISIBLE INTERACTIVE ELEMENTS\n")
	shown := ctx.Interactive
	if len(shown) > maxCandidatesShown {
		shown = shown[:maxCandidatesShown]
	}
	for _, el := range shown {
		fmt.Fprintf(&b, "- <%s> %q\n", el.Tag, el.Text)
	}
	b.WriteByte('\n')

	writeBreadcrumbs(&b, breadcrumbs)

	b.WriteString(`# RESPONSE FORMAT
Reply with ONLY a JSON object, no prose:
{
  "findings": {"key": "value"},
  "report": "what you observed, answering the observation task",
  "complete": true,
  "confidence": 0.9
}
Set "complete" to true only when the requested information is actually present on the page.
`)
	return b.String()
}

// ParseObservationReport parses an observation reply with the same
// tolerance as command batches. On failure it returns an incomplete
// report rather than an error.
func ParseObservationReport(reply string) (webtypes.ObservationReport, []string) {
	var report webtypes.ObservationReport
	if err := json.Unmarshal([]byte(reply), &report); err != nil {
		extracted := ExtractJSON(reply)
		if err2 := json.Unmarshal([]byte(extracted), &report); err2 != nil {
			return webtypes.ObservationReport{
				Report:     strings.TrimSpace(reply),
				Complete:   false,
				Confidence: 0.1,
			}, []string{fmt.Sprintf("observation-parse-error: %v", err2)}
		}
	}
	report.Confidence = clamp01(report.Confidence)
	return report, nil
}
