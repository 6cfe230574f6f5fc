package dom

import (
	"strings"
	"testing"
)

func TestSkeletonKeepsInteractiveAndAncestors(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body>
		<main>
			<section class="locator">
				<form id="store-search">
					<input type="text" name="zip" placeholder="ZIP code">
				</form>
			</section>
		</main>
	</body></html>`

	out := p.Skeleton(html)
	if !strings.Contains(out, `<input`) {
		t.Fatal("interactive input missing from skeleton")
	}
	// Three ancestor generations above the input survive as tags.
	for _, tag := range []string{"<form", "<section", "<main"} {
		if !strings.Contains(out, tag) {
			t.Errorf("ancestor %s not retained", tag)
		}
	}
	if !strings.Contains(out, `id="store-search"`) {
		t.Error("whitelisted id attribute dropped")
	}
}

func TestSkeletonUnwrapsNonInteractive(t *testing.T) {
	p := newTestProcessor()
	html := `<html><body><article><p><em>Seasonal</em> menu update</p></article>
		<a href="/menu">See Menu</a></body></html>`

	out := p.Skeleton(html)
	if strings.Contains(out, "<article") || strings.Contains(out, "<em") {
		t.Errorf("non-interactive structure not unwrapped: %s", out)
	}
	if !strings.Contains(out, "Seasonal") || !strings.Contains(out, "menu update") {
		t.Error("unwrapped text content lost")
	}
	if !strings.Contains(out, "<a") {
		t.Error("link missing from skeleton")
	}
}

func TestSkeletonDropsScriptsAndMeta(t *testing.T) {
	p := newTestProcessor()
	html := `<html><head><meta charset="utf-8"><link rel="x" href="y"></head>
		<body><svg><path d="M0 0"></path></svg>
		<button class="btn">Go</button></body></html>`

	out := p.Skeleton(html)
	for _, banned := range []string{"<meta", "<link", "<svg", "<path"} {
		if strings.Contains(out, banned) {
			t.Errorf("skeleton contains %s", banned)
		}
	}
	if !strings.Contains(out, "<button") {
		t.Error("button missing")
	}
}

func TestSkeletonAttrWhitelist(t *testing.T) {
	p := newTestProcessor()
	html := `<body><button class="btn" style="color:red" onmouseover="x()" data-qa-item-name="Bowl">Bowl</button></body>`

	out := p.Skeleton(html)
	if strings.Contains(out, "style=") || strings.Contains(out, "onmouseover") {
		t.Errorf("non-whitelisted attrs retained: %s", out)
	}
	if !strings.Contains(out, `data-qa-item-name="Bowl"`) {
		t.Error("data attribute dropped")
	}
}

func TestSkeletonBudget(t *testing.T) {
	p := newTestProcessor()
	html := "<body>" + strings.Repeat(`<button class="btn">Click target with a reasonably long label</button>`, 2000) + "</body>"

	out := p.Skeleton(html)
	if len(out) > p.cfg.SkeletonBudget {
		t.Fatalf("skeleton %d chars exceeds budget %d", len(out), p.cfg.SkeletonBudget)
	}
}
