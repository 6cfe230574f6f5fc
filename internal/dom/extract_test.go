package dom

import (
	"strings"
	"testing"

	"webnerd/internal/webtypes"
)

func findByText(t *testing.T, elements []webtypes.Element, text string) webtypes.Element {
	t.Helper()
	for _, el := range elements {
		if el.Text == text {
			return el
		}
	}
	t.Fatalf("no element with text %q in %d elements", text, len(elements))
	return webtypes.Element{}
}

func TestExtractTraditionalElements(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body>
		<a href="/menu">Menu</a>
		<button class="btn-primary">Order Now</button>
		<input type="text" name="zip" placeholder="ZIP code">
		<select name="state"><option>NY</option></select>
		<p>Just a paragraph</p>
	</body></html>`

	elements := p.Extract(html)

	tags := make(map[string]int)
	for _, el := range elements {
		tags[el.Tag]++
	}
	for _, want := range []string{"a", "button", "input", "select"} {
		if tags[want] == 0 {
			t.Errorf("tag %s not extracted", want)
		}
	}
	if tags["p"] != 0 {
		t.Error("non-interactive <p> was extracted")
	}

	link := findByText(t, elements, "Menu")
	if link.Attrs["href"] != "/menu" {
		t.Errorf("href not retained: %v", link.Attrs)
	}

	zip := findByText(t, elements, "ZIP code")
	if zip.Tag != "input" {
		t.Errorf("placeholder text should label the input, got tag %s", zip.Tag)
	}
}

func TestExtractSkipsHiddenTraps(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body>
		<a href="/menu">Menu</a>
		<a href="/trap" style="display:none">Free gift</a>
		<a href="/trap2" class="honeypot-field">Click here</a>
		<input type="hidden" name="csrf" value="tok">
		<button aria-hidden="true">Ghost</button>
		<span class="sr-only" role="button">Skip to content</span>
	</body></html>`

	elements := p.Extract(html)
	if len(elements) != 1 {
		t.Fatalf("elements = %d, want only the visible link: %+v", len(elements), elements)
	}
	if elements[0].Text != "Menu" {
		t.Errorf("wrong survivor: %+v", elements[0])
	}
}

func TestExtractRegexSkipsHiddenTraps(t *testing.T) {
	p := newTestProcessor()
	// The fallback scanner must reject the same traps as the tree path.
	html := `<body>
		<a href="/menu">Menu</a>
		<a href="/trap" style="display:none">Free gift</a>
		<a href="/trap2" class="honeypot-field">Click here</a>
		<input type="hidden" name="csrf" value="tok">
		<button hidden>Ghost</button>
		<button aria-hidden="true">Phantom</button>
		<span class="sr-only" role="button">Skip to content</span>
	</body>`

	elements := p.extractRegex(html)
	if len(elements) != 1 {
		t.Fatalf("elements = %d, want only the visible link: %+v", len(elements), elements)
	}
	if elements[0].Text != "Menu" {
		t.Errorf("wrong survivor: %+v", elements[0])
	}
}

func TestExtractClickableContainers(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body>
		<div class="store-card" data-qa-restaurant-id="123">Broadway &amp; 4th</div>
		<div role="button">Apply Filter</div>
		<div tabindex="0">Focusable Tile</div>
		<div onclick="go()">Inline Handler</div>
		<div>Plain text container</div>
	</body></html>`

	elements := p.Extract(html)
	if len(elements) != 4 {
		t.Fatalf("extracted %d containers, want 4: %+v", len(elements), elements)
	}
	for _, el := range elements {
		if el.Text == "Plain text container" {
			t.Error("non-affordance div was extracted")
		}
	}
}

func TestExtractDataAttrLabelWins(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body>
		<div class="item-card" data-qa-item-name="Burrito Bowl">
			Burrito Bowl $9.25 1,120 cal New seasonal options available today only
		</div>
	</body></html>`

	elements := p.Extract(html)
	el := findByText(t, elements, "Burrito Bowl")
	if got := el.Selectors[0]; got != `div[data-qa-item-name="Burrito Bowl"]` {
		t.Errorf("data-attr selector should rank first, got %q", got)
	}
}

func TestExtractNoisyTextReduced(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body>
		<a href="/x" class="promo-link">Chicken Al Pastor $11.80 limited time offer while supplies last and more</a>
	</body></html>`

	elements := p.Extract(html)
	if len(elements) != 1 {
		t.Fatalf("extracted %d, want 1", len(elements))
	}
	el := elements[0]
	if strings.Contains(el.Text, "$") {
		t.Errorf("price marker survived in label %q", el.Text)
	}
	if len(strings.Fields(el.Text)) > 3 {
		t.Errorf("long noisy text should reduce to leading words, got %q", el.Text)
	}
}

func TestExtractDedupe(t *testing.T) {
	p := newTestProcessor()
	row := `<li class="menu-item" role="menuitem">Tacos</li>`
	html := "<html><body><ul>" + strings.Repeat(row, 5) + "</ul></body></html>"

	elements := p.Extract(html)
	count := 0
	for _, el := range elements {
		if el.Text == "Tacos" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("duplicate rows not collapsed: %d copies", count)
	}
}

func TestExtractMalformedFragment(t *testing.T) {
	p := newTestProcessor()
	// Unbalanced markup as served by partially rendered SPAs.
	broken := `<div><a href="/locations" class="nav-link">Find A Location</a>
		<button class="btn" data-testid="order-btn">Order</button><div><div>`

	elements := p.Extract(broken)
	if len(elements) == 0 {
		t.Fatal("no elements extracted from malformed fragment")
	}
	foundLink := false
	for _, el := range elements {
		if el.Tag == "a" && strings.Contains(el.Text, "Location") {
			foundLink = true
		}
	}
	if !foundLink {
		t.Errorf("link not recovered: %+v", elements)
	}
}

func TestBuildSelectorsOrder(t *testing.T) {
	sels := buildSelectors("button", map[string]string{
		"data-testid": "go",
		"id":          "submit-btn",
		"class":       "btn primary",
		"role":        "button",
	}, "Go")

	want := []string{
		`button[data-testid="go"]`,
		"#submit-btn",
		"button.btn",
		`button[role="button"]`,
		`button:contains("Go")`,
	}
	if len(sels) != len(want) {
		t.Fatalf("got %d selectors %v, want %d", len(sels), sels, len(want))
	}
	for i := range want {
		if sels[i] != want[i] {
			t.Errorf("selector[%d] = %q, want %q", i, sels[i], want[i])
		}
	}
}
