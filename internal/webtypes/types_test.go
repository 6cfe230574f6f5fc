package webtypes

import "testing"

func pageCtx() *PageContext {
	return &PageContext{
		Interactive: []Element{
			{CandidateID: 1, Tag: "input", Text: "ZIP"},
			{CandidateID: 2, Tag: "button", Text: "Search"},
			{CandidateID: 3, Tag: "a", Text: "Menu"},
		},
	}
}

func TestResolveCandidate(t *testing.T) {
	ctx := pageCtx()
	el, ok := ctx.ResolveCandidate(2)
	if !ok || el.Text != "Search" {
		t.Fatalf("resolve 2 = %v %v", el, ok)
	}
	if _, ok := ctx.ResolveCandidate(99); ok {
		t.Error("unknown id resolved")
	}
	if _, ok := ctx.ResolveCandidate(0); ok {
		t.Error("zero id resolved")
	}
	var nilCtx *PageContext
	if _, ok := nilCtx.ResolveCandidate(1); ok {
		t.Error("nil context resolved")
	}
}

func TestCandidateRank(t *testing.T) {
	ctx := pageCtx()
	if got := ctx.CandidateRank(1); got != 1 {
		t.Errorf("rank(1) = %d", got)
	}
	if got := ctx.CandidateRank(3); got != 3 {
		t.Errorf("rank(3) = %d", got)
	}
	if got := ctx.CandidateRank(42); got != 0 {
		t.Errorf("rank(42) = %d", got)
	}
}

func TestTopCandidates(t *testing.T) {
	ctx := pageCtx()
	if got := len(ctx.TopCandidates(2)); got != 2 {
		t.Errorf("top(2) = %d", got)
	}
	if got := len(ctx.TopCandidates(10)); got != 3 {
		t.Errorf("top(10) = %d", got)
	}
}

func TestNoopBatch(t *testing.T) {
	b := NoopBatch("nothing to do")
	if len(b.Commands) != 1 || b.Commands[0].Type != CommandNoop {
		t.Fatalf("noop batch = %+v", b)
	}
	if b.Rationale != "nothing to do" {
		t.Errorf("rationale = %q", b.Rationale)
	}
}

func TestNeedsCandidate(t *testing.T) {
	cases := []struct {
		cmd  Command
		want bool
	}{
		{Command{Type: CommandClick, CandidateID: 1}, true},
		{Command{Type: CommandTypeText, CandidateID: 1}, true},
		{Command{Type: CommandPress, Key: "Enter"}, false},
		{Command{Type: CommandPress, Key: "Enter", CandidateID: 2}, true},
		{Command{Type: CommandNavigate, URL: "https://x"}, false},
		{Command{Type: CommandNoop}, false},
	}
	for _, tc := range cases {
		if got := tc.cmd.NeedsCandidate(); got != tc.want {
			t.Errorf("NeedsCandidate(%s) = %v, want %v", tc.cmd.Type, got, tc.want)
		}
	}
}

func TestEvidenceSetFinding(t *testing.T) {
	var ev Evidence
	ev.SetFinding("k", "v")
	if ev.Findings["k"] != "v" {
		t.Fatalf("finding not set: %+v", ev.Findings)
	}
}
