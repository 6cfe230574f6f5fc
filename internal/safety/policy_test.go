package safety

import (
	"testing"

	"webnerd/internal/config"
	"webnerd/internal/webtypes"
)

func testPolicy(mutate func(*config.SafetyConfig)) *Policy {
	cfg := config.SafetyConfig{}
	cfg.Normalize()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPolicy(cfg)
}

func clickBatch(id int, confidence float64) webtypes.CommandBatch {
	return webtypes.CommandBatch{
		Commands:   []webtypes.Command{{Type: webtypes.CommandClick, CandidateID: id}},
		Confidence: confidence,
	}
}

func pageWith(elements ...webtypes.Element) *webtypes.PageContext {
	return &webtypes.PageContext{Interactive: elements}
}

func TestClassifyAutoForOrdinaryClick(t *testing.T) {
	p := testPolicy(nil)
	ctx := pageWith(webtypes.Element{CandidateID: 1, Tag: "a", Text: "Menu", Selectors: []string{"a.menu"}})

	d := p.Classify(clickBatch(1, 0.9), ctx, ModeAutonomous, 0.9)
	if d.Action != Auto {
		t.Fatalf("ordinary click classified %s: %v", d.Action, d.Reasons)
	}
}

func TestClassifyDeniesDeniedHost(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.DeniedHostPatterns = []string{"evil.example"}
	})
	batch := webtypes.CommandBatch{Commands: []webtypes.Command{
		{Type: webtypes.CommandNavigate, URL: "https://shop.evil.example/checkout"},
	}}

	d := p.Classify(batch, pageWith(), ModeAutonomous, 0.9)
	if d.Action != Deny {
		t.Fatalf("denied host not denied: %s %v", d.Action, d.Reasons)
	}
}

func TestClassifyDeniesInvalidNavigationURL(t *testing.T) {
	p := testPolicy(nil)
	batch := webtypes.CommandBatch{Commands: []webtypes.Command{
		{Type: webtypes.CommandNavigate, URL: "not a url"},
	}}
	if d := p.Classify(batch, pageWith(), ModeAutonomous, 0.9); d.Action != Deny {
		t.Fatalf("invalid URL not denied: %s", d.Action)
	}
}

func TestClassifyApprovedHostsAllowSubdomains(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.ApprovedHosts = []string{"chipotle.com"}
	})
	batch := webtypes.CommandBatch{Commands: []webtypes.Command{
		{Type: webtypes.CommandNavigate, URL: "https://order.chipotle.com/menu"},
	}}
	d := p.Classify(batch, pageWith(), ModeAutonomous, 0.9)
	if d.Action != Auto || len(d.Reasons) != 0 {
		t.Fatalf("approved subdomain flagged: %s %v", d.Action, d.Reasons)
	}
}

func TestClassifyOffScopeHostIsARiskReason(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.ApprovedHosts = []string{"chipotle.com"}
	})
	batch := webtypes.CommandBatch{Commands: []webtypes.Command{
		{Type: webtypes.CommandNavigate, URL: "https://other.example/page"},
	}}
	d := p.Classify(batch, pageWith(), ModeAutonomous, 0.9)
	if len(d.Reasons) == 0 {
		t.Fatal("off-scope navigation produced no risk reason")
	}
	if d.Action == Deny {
		t.Fatal("off-scope host alone should not hard-deny")
	}
}

func TestClassifyConfirmAccumulatesReasons(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.ConfirmThreshold = 2
	})
	ctx := pageWith(webtypes.Element{
		CandidateID: 1, Tag: "input",
		Attrs:     map[string]string{"name": "card-number"},
		Selectors: []string{"input.card"},
	})
	batch := webtypes.CommandBatch{Commands: []webtypes.Command{
		{Type: webtypes.CommandTypeText, CandidateID: 1, Text: "4111 1111 1111 1111"},
	}}

	d := p.Classify(batch, ctx, ModeAutonomous, 0.9)
	if d.Action != Confirm {
		t.Fatalf("card entry not flagged for confirmation: %s %v", d.Action, d.Reasons)
	}
	if len(d.Reasons) < 2 {
		t.Errorf("expected card-number and sensitive-field reasons, got %v", d.Reasons)
	}
}

func TestClassifyPurchaseClickFlagged(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.ConfirmThreshold = 1
	})
	ctx := pageWith(webtypes.Element{CandidateID: 2, Tag: "button", Text: "Place Order", Selectors: []string{"button.order"}})

	d := p.Classify(clickBatch(2, 0.9), ctx, ModeAutonomous, 0.9)
	if d.Action != Confirm {
		t.Fatalf("purchase click not flagged: %s %v", d.Action, d.Reasons)
	}
}

func TestClassifyPurchaseClickAllowedWhenConfigured(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.ConfirmThreshold = 1
		c.AllowFormSubmission = true
	})
	ctx := pageWith(webtypes.Element{CandidateID: 2, Tag: "button", Text: "Place Order", Selectors: []string{"button.order"}})

	if d := p.Classify(clickBatch(2, 0.9), ctx, ModeAutonomous, 0.9); d.Action != Auto {
		t.Fatalf("allow_form_submission not honored: %s %v", d.Action, d.Reasons)
	}
}

func TestClassifyLowConfidenceAddsReason(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) {
		c.ConfirmThreshold = 1
	})
	ctx := pageWith(webtypes.Element{CandidateID: 1, Tag: "a", Text: "Menu", Selectors: []string{"a.menu"}})

	d := p.Classify(clickBatch(1, 0.1), ctx, ModeAutonomous, 0.1)
	if d.Action != Confirm {
		t.Fatalf("low confidence not flagged: %s %v", d.Action, d.Reasons)
	}
}

func TestDefaultForMode(t *testing.T) {
	p := testPolicy(func(c *config.SafetyConfig) { c.ConfirmThreshold = 2 })

	confirm := Decision{Action: Confirm, Reasons: []string{"a", "b"}}
	if got := p.DefaultForMode(confirm, ModeInteractive); got != Confirm {
		t.Errorf("interactive mode should keep confirm, got %s", got)
	}
	if got := p.DefaultForMode(confirm, ModeAutonomous); got != Auto {
		t.Errorf("autonomous low-risk confirm should relax to auto, got %s", got)
	}

	highRisk := Decision{Action: Confirm, Reasons: []string{"a", "b", "c"}}
	if got := p.DefaultForMode(highRisk, ModeAutonomous); got != Deny {
		t.Errorf("autonomous high-risk confirm should deny, got %s", got)
	}
}
