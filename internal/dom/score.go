package dom

import (
	"regexp"
	"sort"
	"strings"

	"webnerd/internal/webtypes"
)

// Scoring weights. The score is a compositional sum: each signal adds
// (or subtracts) independently so adding a matching target noun can
// never decrease an element's rank.
const (
	weightInteractiveTag  = 1.0
	weightInteractiveRole = 0.5
	weightTargetNoun      = 3.0
	weightImperative      = 0.5
	weightExactPhrase     = 5.0
	weightMenuExact       = 6.0
	weightStoreContainer  = 8.0
	weightAddressHint     = 4.0
	weightZipInput        = 2.0
	weightTextInput       = 0.8
	penaltyAllLocations   = -1.0
	penaltyViewAll        = -0.8

	// When a target noun appears in both text and a high-value data
	// attribute, its boost is tripled.
	dataAttrNounMultiplier = 3.0
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "to": true,
	"of": true, "in": true, "on": true, "for": true, "with": true,
	"my": true, "me": true, "i": true, "at": true, "from": true,
	"near": true, "it": true, "this": true, "that": true, "is": true,
	"be": true, "then": true, "into": true,
}

var imperativeVerbs = map[string]bool{
	"select": true, "choose": true, "click": true, "tap": true,
	"find": true, "go": true, "open": true, "add": true, "search": true,
	"enter": true, "type": true, "navigate": true, "pick": true,
	"set": true, "view": true, "get": true, "press": true,
}

// Affordance classes worth an unconditional boost.
var affordanceBoosts = map[string]float64{
	"add-to-bag":  3.0,
	"add-to-cart": 3.0,
	"checkout":    3.0,
	"button":      2.0,
	"btn":         2.0,
	"submit":      2.0,
	"cta":         2.0,
}

// High-value data attributes for the noun multiplier rule.
var highValueDataAttrPrefixes = []string{"data-qa-", "data-menu-", "data-testid"}

// Store/restaurant container attributes for location goals.
var storeDataAttrs = []string{
	"data-store-id", "data-restaurant-id", "data-location-id",
	"data-qa-restaurant-id", "data-store",
}

var (
	menuGoalRe    = regexp.MustCompile(`(?i)^\s*(select|choose|pick|add|order)\b`)
	addressHintRe = regexp.MustCompile(`(?i)\b\d+\s+\w+\s+(st|street|ave|avenue|rd|road|blvd|dr|drive|ln|lane|way)\b|\b[A-Z]{2}\s+\d{5}\b`)
	zipAffordRe   = regexp.MustCompile(`(?i)zip|postal|address|location|city|state`)
	viewAllRe     = regexp.MustCompile(`(?i)\b(view all|all locations|see all|show all)\b`)
)

// GoalLexicon is the tokenized form of a goal used by the scorer.
type GoalLexicon struct {
	Phrase      string   // stripped multi-word goal phrase
	TargetNouns []string // content words
	Imperatives []string // recognized command verbs
	Location    bool     // goal implies location selection
	Menu        bool     // goal is a "select X" menu choice
}

// LexiconFromGoal tokenizes the goal, separating stop-words and
// imperative verbs from target nouns.
func LexiconFromGoal(goal string) GoalLexicon {
	lower := strings.ToLower(goal)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r == '-' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9'))
	})

	lex := GoalLexicon{
		Location: ClassifyGoal(goal) == GoalLocation,
		Menu:     menuGoalRe.MatchString(goal),
	}

	var content []string
	for _, tok := range tokens {
		switch {
		case stopWords[tok]:
		case imperativeVerbs[tok]:
			lex.Imperatives = append(lex.Imperatives, tok)
		default:
			lex.TargetNouns = append(lex.TargetNouns, tok)
			content = append(content, tok)
		}
	}
	lex.Phrase = strings.Join(content, " ")
	return lex
}

// Score ranks elements against the goal and returns them sorted by
// score descending. The sort is stable: ties keep original extraction
// order. Scoring is deterministic given (elements, goal).
func (p *Processor) Score(elements []webtypes.Element, goal string) []webtypes.Element {
	lex := LexiconFromGoal(goal)

	scored := make([]webtypes.Element, len(elements))
	copy(scored, elements)
	for i := range scored {
		scored[i].Score = scoreElement(scored[i], lex)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func scoreElement(el webtypes.Element, lex GoalLexicon) float64 {
	var score float64
	textLower := strings.ToLower(el.Text)
	classLower := strings.ToLower(el.Attrs["class"])

	// 1. Tag/role base weight.
	if interactiveTags[el.Tag] {
		score += weightInteractiveTag
	}
	if interactiveRoles[strings.ToLower(el.Attrs["role"])] {
		score += weightInteractiveRole
	}

	// 2. Goal-lexicon match.
	for _, noun := range lex.TargetNouns {
		if !strings.Contains(textLower, noun) {
			continue
		}
		boost := weightTargetNoun
		if nounInHighValueAttr(el, noun) {
			boost *= dataAttrNounMultiplier
		}
		score += boost
	}
	for _, verb := range lex.Imperatives {
		if strings.Contains(textLower, verb) {
			score += weightImperative
		}
	}

	// 3. Exact multi-word phrase match.
	if lex.Phrase != "" && strings.Contains(lex.Phrase, " ") && strings.Contains(textLower, lex.Phrase) {
		score += weightExactPhrase
	}

	// 4. Affordance-class boosts.
	for frag, boost := range affordanceBoosts {
		if strings.Contains(classLower, frag) {
			score += boost
			break
		}
	}

	// 5. Location-goal specialization.
	if lex.Location {
		if hasStoreDataAttr(el) {
			score += weightStoreContainer
		} else if addressHintRe.MatchString(el.Text) {
			score += weightAddressHint
		}
		if viewAllRe.MatchString(el.Text) {
			if el.Tag == "a" {
				score += penaltyViewAll
			} else {
				score += penaltyAllLocations
			}
		}
	}

	// 6. Menu-selection specialization.
	if lex.Menu && lex.Phrase != "" && textLower == lex.Phrase {
		score += weightMenuExact
	}

	// 7. Input-field specialization for location/ZIP goals.
	if lex.Location && el.Tag == "input" {
		if zipAffordRe.MatchString(el.BestSelector()) || zipAffordRe.MatchString(el.Attrs["placeholder"]) || zipAffordRe.MatchString(el.Attrs["name"]) || zipAffordRe.MatchString(el.Attrs["id"]) {
			score += weightZipInput
		}
		switch strings.ToLower(el.Attrs["type"]) {
		case "text", "search", "":
			score += weightTextInput
		}
	}

	return score
}

func nounInHighValueAttr(el webtypes.Element, noun string) bool {
	for name, val := range el.Attrs {
		for _, prefix := range highValueDataAttrPrefixes {
			if strings.HasPrefix(name, prefix) && strings.Contains(strings.ToLower(val), noun) {
				return true
			}
		}
	}
	return false
}

func hasStoreDataAttr(el webtypes.Element) bool {
	for _, name := range storeDataAttrs {
		if el.Attrs[name] != "" {
			return true
		}
	}
	return false
}
