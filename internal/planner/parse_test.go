package planner

import (
	"testing"

	"webnerd/internal/webtypes"
)

func TestParseCommandBatchStrictJSON(t *testing.T) {
	reply := `{"commands":[{"type":"click","candidate_id":3}],"confidence":0.9,"rationale":"r","breadcrumb":"Clicked the search button."}`
	batch, issues := ParseCommandBatch(reply)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(batch.Commands) != 1 || batch.Commands[0].Type != webtypes.CommandClick || batch.Commands[0].CandidateID != 3 {
		t.Fatalf("bad batch: %+v", batch)
	}
	if batch.Confidence != 0.9 {
		t.Errorf("confidence = %v", batch.Confidence)
	}
}

func TestParseCommandBatchFromFencedProse(t *testing.T) {
	reply := "Sure! Here's the plan:\n```json\n" +
		`{"commands":[{"type":"type","candidate_id":1,"text":"10001","press_enter":true}],"confidence":0.8,"breadcrumb":"Typed the ZIP."}` +
		"\n```\nLet me know if that works."
	batch, _ := ParseCommandBatch(reply)
	if len(batch.Commands) != 1 {
		t.Fatalf("commands = %+v", batch.Commands)
	}
	cmd := batch.Commands[0]
	if cmd.Type != webtypes.CommandTypeText || cmd.Text != "10001" || !cmd.PressEnter {
		t.Fatalf("bad command: %+v", cmd)
	}
}

func TestParseCommandBatchGarbageDegradesToNoop(t *testing.T) {
	batch, issues := ParseCommandBatch("I'm not sure what to do here.")
	if len(batch.Commands) != 1 || batch.Commands[0].Type != webtypes.CommandNoop {
		t.Fatalf("expected noop batch, got %+v", batch)
	}
	if len(issues) == 0 {
		t.Error("parse failure should be reported as an issue")
	}
}

func TestParseCommandBatchDropsUnknownTypes(t *testing.T) {
	reply := `{"commands":[{"type":"hover","candidate_id":1},{"type":"click","candidate_id":2}],"confidence":0.5}`
	batch, issues := ParseCommandBatch(reply)
	if len(batch.Commands) != 1 || batch.Commands[0].Type != webtypes.CommandClick {
		t.Fatalf("unknown type not dropped: %+v", batch.Commands)
	}
	if len(issues) == 0 {
		t.Error("dropped command should be reported")
	}
}

func TestParseCommandBatchCapsAtThree(t *testing.T) {
	reply := `{"commands":[{"type":"click","candidate_id":1},{"type":"click","candidate_id":2},{"type":"click","candidate_id":3},{"type":"click","candidate_id":4}],"confidence":0.5}`
	batch, _ := ParseCommandBatch(reply)
	if len(batch.Commands) != webtypes.MaxCommandsPerBatch {
		t.Fatalf("batch size = %d, want %d", len(batch.Commands), webtypes.MaxCommandsPerBatch)
	}
}

func TestParseCommandBatchClampsConfidence(t *testing.T) {
	reply := `{"commands":[{"type":"noop"}],"confidence":3.5}`
	batch, _ := ParseCommandBatch(reply)
	if batch.Confidence != 1.0 {
		t.Errorf("confidence not clamped: %v", batch.Confidence)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"leading prose", `the answer is {"a":1} hope that helps`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"braces in strings", `{"a":"}{"}`, `{"a":"}{"}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"no json", "nothing here", "{}"},
		{"unbalanced", `{"a":1`, "{}"},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("%s: ExtractJSON(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestParseObservationReport(t *testing.T) {
	reply := `{"findings":{"hours":"10am-10pm"},"report":"The store is open 10am to 10pm.","complete":true,"confidence":0.95}`
	report, issues := ParseObservationReport(reply)
	if len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}
	if !report.Complete || report.Findings["hours"] != "10am-10pm" {
		t.Fatalf("bad report: %+v", report)
	}
}

func TestParseObservationReportDegrades(t *testing.T) {
	report, issues := ParseObservationReport("The page shows store hours of 10-10.")
	if report.Complete {
		t.Error("unparseable reply must not be complete")
	}
	if report.Report == "" {
		t.Error("raw reply text should be preserved as the report")
	}
	if len(issues) == 0 {
		t.Error("parse failure should surface as an issue")
	}
}
