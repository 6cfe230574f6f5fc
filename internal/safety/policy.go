// Package safety classifies planner command batches before execution:
// auto-approve, require confirmation, or deny. Thresholds and host sets
// are configuration, not code.
package safety

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"webnerd/internal/config"
	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// Action is the policy verdict for a batch.
type Action string

const (
	Auto    Action = "auto"
	Confirm Action = "confirm"
	Deny    Action = "deny"
)

// Decision carries the verdict plus every risk reason that contributed.
type Decision struct {
	Action  Action   `json:"action"`
	Reasons []string `json:"reasons,omitempty"`
}

// Mode is the run mode the policy adapts to.
type Mode string

const (
	ModeAutonomous  Mode = "autonomous"
	ModeInteractive Mode = "interactive"
)

var (
	cardNumberRe = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	cvvRe        = regexp.MustCompile(`(?i)\bcvv|cvc|security code\b`)
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	paymentTextRe = regexp.MustCompile(`(?i)\b(place order|pay now|confirm purchase|complete purchase|submit payment|buy now)\b`)
	sensitiveFieldRe = regexp.MustCompile(`(?i)password|card|cvv|cvc|ssn|social.?security`)
)

// Policy classifies command batches against configured thresholds.
type Policy struct {
	cfg config.SafetyConfig
}

// NewPolicy builds a Policy; zero-valued config fields get defaults.
func NewPolicy(cfg config.SafetyConfig) *Policy {
	cfg.Normalize()
	return &Policy{cfg: cfg}
}

// Classify inspects a batch against the governing PageContext and run
// mode. Default policy: deny obviously destructive or out-of-scope
// actions; confirm when enough risk reasons accumulate; auto otherwise.
func (p *Policy) Classify(batch webtypes.CommandBatch, ctx *webtypes.PageContext, mode Mode, confidence float64) Decision {
	var reasons []string
	deny := false

	for _, cmd := range batch.Commands {
		switch cmd.Type {
		case webtypes.CommandNavigate:
			hostReasons, hardDeny := p.checkNavigation(cmd.URL)
			reasons = append(reasons, hostReasons...)
			deny = deny || hardDeny
		case webtypes.CommandTypeText:
			reasons = append(reasons, p.checkTypedText(cmd, ctx)...)
		case webtypes.CommandClick:
			reasons = append(reasons, p.checkClickTarget(cmd, ctx)...)
		}
	}

	if confidence < p.cfg.ConfidenceFloor {
		reasons = append(reasons, fmt.Sprintf("planner confidence %.2f below floor %.2f", confidence, p.cfg.ConfidenceFloor))
	}

	decision := Decision{Action: Auto, Reasons: reasons}
	switch {
	case deny:
		decision.Action = Deny
	case len(reasons) >= p.cfg.ConfirmThreshold:
		decision.Action = Confirm
	}

	if decision.Action != Auto {
		logging.Safety("batch classified %s: %s", decision.Action, strings.Join(reasons, "; "))
	}
	return decision
}

// checkNavigation validates a navigation target against the approved
// host set and denied patterns. Unparseable URLs are a hard deny.
func (p *Policy) checkNavigation(rawURL string) ([]string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return []string{fmt.Sprintf("navigation target %q is not a valid absolute URL", rawURL)}, true
	}

	host := strings.ToLower(u.Hostname())
	for _, pattern := range p.cfg.DeniedHostPatterns {
		if pattern != "" && strings.Contains(host, strings.ToLower(pattern)) {
			return []string{fmt.Sprintf("navigation to denied host %q", host)}, true
		}
	}

	if len(p.cfg.ApprovedHosts) > 0 && !hostApproved(host, p.cfg.ApprovedHosts) {
		return []string{fmt.Sprintf("navigation to %q leaves the approved host set", host)}, false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return []string{fmt.Sprintf("navigation uses scheme %q", u.Scheme)}, true
	}
	return nil, false
}

func hostApproved(host string, approved []string) bool {
	for _, a := range approved {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// checkTypedText flags payment or PII-looking text being typed.
func (p *Policy) checkTypedText(cmd webtypes.Command, ctx *webtypes.PageContext) []string {
	var reasons []string

	if cardNumberRe.MatchString(cmd.Text) {
		reasons = append(reasons, "typed text looks like a payment card number")
	}
	if ssnRe.MatchString(cmd.Text) {
		reasons = append(reasons, "typed text looks like a social security number")
	}
	if cvvRe.MatchString(cmd.Text) {
		reasons = append(reasons, "typed text mentions a card security code")
	}

	if el, ok := ctx.ResolveCandidate(cmd.CandidateID); ok {
		fieldID := el.BestSelector() + " " + el.Attrs["name"] + " " + el.Attrs["placeholder"] + " " + el.Attrs["type"]
		if sensitiveFieldRe.MatchString(fieldID) {
			reasons = append(reasons, fmt.Sprintf("typing into sensitive field %q", el.BestSelector()))
		}
	}
	return reasons
}

// checkClickTarget flags purchase-commit affordances when form
// submission is not allowed.
func (p *Policy) checkClickTarget(cmd webtypes.Command, ctx *webtypes.PageContext) []string {
	if p.cfg.AllowFormSubmission {
		return nil
	}
	el, ok := ctx.ResolveCandidate(cmd.CandidateID)
	if !ok {
		return nil
	}
	if paymentTextRe.MatchString(el.Text) || paymentTextRe.MatchString(el.Attrs["class"]) {
		return []string{fmt.Sprintf("click target %q commits a purchase", el.Text)}
	}
	return nil
}

// DefaultForMode resolves a Confirm verdict when no confirmation
// callback is available: interactive runs keep the confirm, autonomous
// runs fall back to deny-high-risk / allow-low-risk.
func (p *Policy) DefaultForMode(decision Decision, mode Mode) Action {
	if decision.Action != Confirm {
		return decision.Action
	}
	if mode == ModeInteractive {
		return Confirm
	}
	if len(decision.Reasons) >= p.cfg.ConfirmThreshold+1 {
		return Deny
	}
	return Auto
}
