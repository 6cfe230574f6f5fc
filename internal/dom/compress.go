// Package dom turns a raw multi-hundred-kilobyte HTML document into the
// bounded artifacts the planner reasons over: a compressed DOM, a change
// signature, a pruned skeleton, and a ranked interactive candidate list.
package dom

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"webnerd/internal/config"
	"webnerd/internal/logging"
)

// GoalClass selects the DOM size budget for a goal.
type GoalClass int

const (
	GoalDefault GoalClass = iota
	GoalLocation
	GoalAction
)

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	noscriptRe = regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	spaceRe   = regexp.MustCompile(`\s+`)

	locationGoalRe = regexp.MustCompile(`(?i)\b(location|store|stores|restaurant|zip|zipcode|postal|address|near|nearby)\b`)
	actionGoalRe   = regexp.MustCompile(`(?i)\b(cart|checkout|check out|add to bag|add to cart|order|purchase|buy)\b`)

	footerRe = regexp.MustCompile(`(?is)<(footer|div)\b[^>]*(?:class|id)\s*=\s*"[^"]*(footer|sticky-actions|action-bar|cart-footer|checkout-bar)[^"]*"[^>]*>`)
)

// ClassifyGoal maps a natural-language goal onto a budget class.
func ClassifyGoal(goal string) GoalClass {
	switch {
	case actionGoalRe.MatchString(goal):
		return GoalAction
	case locationGoalRe.MatchString(goal):
		return GoalLocation
	default:
		return GoalDefault
	}
}

// Processor owns the DOM pipeline and its size budgets.
type Processor struct {
	cfg config.DOMConfig
}

// NewProcessor builds a Processor. Zero-valued config fields are filled
// with defaults.
func NewProcessor(cfg config.DOMConfig) *Processor {
	cfg.Normalize()
	return &Processor{cfg: cfg}
}

// Budget returns the compression budget for a goal.
func (p *Processor) Budget(goal string) int {
	switch ClassifyGoal(goal) {
	case GoalAction:
		return p.cfg.TruncateCharsAction
	case GoalLocation:
		return p.cfg.TruncateCharsLocation
	default:
		return p.cfg.TruncateChars
	}
}

// Compress removes script/style content, collapses whitespace, strips
// comment artifacts, and truncates to the goal-dependent budget. When
// the goal implies a cart/checkout action and a footer/action region
// would be cut off, that region is spliced onto the retained head so
// the critical affordance survives the size cap.
func (p *Processor) Compress(rawHTML, goal string) string {
	s := scriptRe.ReplaceAllString(rawHTML, "")
	s = styleRe.ReplaceAllString(s, "")
	s = noscriptRe.ReplaceAllString(s, "")
	s = commentRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	budget := p.Budget(goal)
	if len(s) <= budget {
		return s
	}

	if ClassifyGoal(goal) == GoalAction {
		if spliced, ok := spliceFooter(s, budget); ok {
			logging.DOMDebug("footer-preserving truncation applied: %d -> %d chars", len(s), len(spliced))
			return spliced
		}
	}

	logging.DOMDebug("truncating DOM: %d -> %d chars", len(s), budget)
	return s[:budget]
}

// spliceFooter looks for a footer/action region past the cut point and
// appends it to the truncated head. Returns false when no such region
// exists or it already fits.
func spliceFooter(s string, budget int) (string, bool) {
	loc := footerRe.FindStringIndex(s)
	if loc == nil || loc[0] < budget {
		return "", false
	}

	footer := s[loc[0]:]
	// Keep the footer region bounded so the splice cannot blow the cap
	// past double the budget.
	if len(footer) > budget/4 {
		footer = footer[:budget/4]
	}
	head := s[:budget-len(footer)]
	return head + footer, true
}

// Signature returns the first 16 hex digits of SHA-256 over the
// compressed DOM. Used solely for change detection and audit.
func Signature(compressedHTML string) string {
	sum := sha256.Sum256([]byte(compressedHTML))
	return hex.EncodeToString(sum[:])[:16]
}
