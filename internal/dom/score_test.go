package dom

import (
	"testing"

	"webnerd/internal/webtypes"
)

func TestLexiconFromGoal(t *testing.T) {
	lex := LexiconFromGoal("Select a Burrito Bowl from the menu")
	if !lex.Menu {
		t.Error("select-goal should be a menu goal")
	}
	if lex.Phrase != "burrito bowl menu" {
		t.Errorf("phrase = %q", lex.Phrase)
	}
	found := map[string]bool{}
	for _, n := range lex.TargetNouns {
		found[n] = true
	}
	if !found["burrito"] || !found["bowl"] {
		t.Errorf("target nouns missing: %v", lex.TargetNouns)
	}
	for _, n := range lex.TargetNouns {
		if n == "a" || n == "the" || n == "from" || n == "select" {
			t.Errorf("stop word or verb leaked into nouns: %q", n)
		}
	}
}

func TestScoreMenuItemWithDataAttrBeatsLookalike(t *testing.T) {
	p := newTestProcessor()
	target := webtypes.Element{
		Tag:  "div",
		Text: "Burrito Bowl",
		Attrs: map[string]string{
			"class":              "item-card",
			"data-qa-group-name": "Burrito Bowl",
		},
	}
	lookalike := webtypes.Element{
		Tag:   "div",
		Text:  "Lifestyle Bowl",
		Attrs: map[string]string{"class": "item-card"},
	}

	ranked := p.Score([]webtypes.Element{lookalike, target}, "Select a Burrito Bowl")
	if ranked[0].Text != "Burrito Bowl" {
		t.Fatalf("data-attr-confirmed item should outrank lookalike, got %q (%.1f) over %q (%.1f)",
			ranked[0].Text, ranked[0].Score, ranked[1].Text, ranked[1].Score)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Fatalf("scores not separated: %.1f vs %.1f", ranked[0].Score, ranked[1].Score)
	}
}

func TestScoreLocationGoal(t *testing.T) {
	p := newTestProcessor()
	elements := []webtypes.Element{
		{Tag: "a", Text: "View All Locations", Attrs: map[string]string{}},
		{Tag: "div", Text: "123 Broadway St", Attrs: map[string]string{"data-store-id": "42", "class": "store-card"}},
		{Tag: "input", Text: "ZIP code", Attrs: map[string]string{"type": "text", "name": "zip", "placeholder": "ZIP code"}, Selectors: []string{`input.zip-input`}},
		{Tag: "a", Text: "Careers", Attrs: map[string]string{}},
	}

	ranked := p.Score(elements, "find the store nearest to 10001")
	if ranked[0].Attrs["data-store-id"] != "42" {
		t.Fatalf("store container should rank first, got %q", ranked[0].Text)
	}

	var viewAll, careers float64
	for _, el := range ranked {
		switch el.Text {
		case "View All Locations":
			viewAll = el.Score
		case "Careers":
			careers = el.Score
		}
	}
	// The view-all link is penalized relative to its base link weight.
	if viewAll >= careers+weightTargetNoun {
		t.Errorf("view-all penalty missing: viewAll=%.1f careers=%.1f", viewAll, careers)
	}
}

func TestScoreZipInputBoost(t *testing.T) {
	p := newTestProcessor()
	zipInput := webtypes.Element{
		Tag:       "input",
		Text:      "ZIP code",
		Attrs:     map[string]string{"type": "text", "name": "zip"},
		Selectors: []string{"input.search"},
	}
	otherInput := webtypes.Element{
		Tag:       "input",
		Text:      "Promo code",
		Attrs:     map[string]string{"type": "text", "name": "promo"},
		Selectors: []string{"input.promo"},
	}

	ranked := p.Score([]webtypes.Element{otherInput, zipInput}, "enter the zip code near me")
	if ranked[0].Attrs["name"] != "zip" {
		t.Fatalf("zip input should outrank promo input, got %q", ranked[0].Attrs["name"])
	}
}

func TestScoreStableTieOrder(t *testing.T) {
	p := newTestProcessor()
	a := webtypes.Element{Tag: "a", Text: "First"}
	b := webtypes.Element{Tag: "a", Text: "Second"}

	ranked := p.Score([]webtypes.Element{a, b}, "unrelated goal phrase")
	if ranked[0].Text != "First" || ranked[1].Text != "Second" {
		t.Errorf("tie did not preserve extraction order: %q, %q", ranked[0].Text, ranked[1].Text)
	}
}

func TestScoreDeterministic(t *testing.T) {
	p := newTestProcessor()
	elements := []webtypes.Element{
		{Tag: "button", Text: "Add to Cart", Attrs: map[string]string{"class": "add-to-cart"}},
		{Tag: "a", Text: "Cart", Attrs: map[string]string{}},
		{Tag: "div", Text: "Checkout", Attrs: map[string]string{"class": "checkout-btn"}},
	}
	first := p.Score(elements, "add the bowl to cart")
	second := p.Score(elements, "add the bowl to cart")
	for i := range first {
		if first[i].Text != second[i].Text || first[i].Score != second[i].Score {
			t.Fatalf("ranking not deterministic at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
