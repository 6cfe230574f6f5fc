// Package browser owns the rod-driven Chrome instance and executes
// planner command batches against the live page, producing structured
// evidence of what happened.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"webnerd/internal/config"
	"webnerd/internal/dom"
	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// ErrNotInitialized is returned when a verb runs before Initialize.
var ErrNotInitialized = errors.New("browser controller not initialized")

// containsRe matches the tag:contains("text") pseudo-selector that the
// DOM processor emits for elements with no stable attribute hook.
var containsRe = regexp.MustCompile(`^([a-zA-Z0-9]*):contains\("(.*)"\)$`)

// Controller drives one Chrome page for the agent's episode.
type Controller struct {
	cfg  config.BrowserConfig
	proc *dom.Processor

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	closed  bool
}

// NewController builds a Controller; the browser launches on Initialize.
// The processor must be configured like the one that builds PageContexts
// so before/after signatures compare like with like.
func NewController(cfg config.BrowserConfig, proc *dom.Processor) *Controller {
	return &Controller{cfg: cfg, proc: proc}
}

// pageSignature signs a raw DOM through the same compression pipeline
// ContextFromPage uses. Signing the raw serialization instead would make
// every page look changed, since the stored before-signature is taken
// over the compressed form.
func (c *Controller) pageSignature(html, goal string) string {
	if c.proc == nil {
		return dom.Signature(html)
	}
	return dom.Signature(c.proc.Compress(html, goal))
}

// Initialize connects to an existing Chrome (debugger_url) or launches a
// new one, optionally with a persistent user profile, and opens the
// single page the episode runs in.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection, reconnecting")
		_ = c.browser.Close()
		c.browser = nil
		c.page = nil
	}

	controlURL := c.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(c.cfg.Headless)
		if c.cfg.Profile != "" {
			l = l.UserDataDir(c.cfg.Profile)
		}
		for _, rawFlag := range c.cfg.Launch {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.GetViewportWidth(),
		Height:            c.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	c.browser = browser
	c.page = page
	c.closed = false
	logging.Browser("browser initialized (headless=%v profile=%q)", c.cfg.Headless, c.cfg.Profile)
	return nil
}

// Navigate loads a URL and waits for the load event.
func (c *Controller) Navigate(ctx context.Context, url string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	timer := logging.StartTimer(logging.CategoryBrowser, "navigate")
	defer timer.Stop()

	p := page.Context(ctx).Timeout(c.cfg.NavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		logging.BrowserWarn("load event not observed for %s: %v", url, err)
	}
	return nil
}

// PageState is one raw snapshot of the live page.
type PageState struct {
	HTML  string
	Title string
	URL   string
}

// CurrentDOM captures the full serialized DOM plus title and URL.
func (c *Controller) CurrentDOM(ctx context.Context) (PageState, error) {
	page, err := c.currentPage()
	if err != nil {
		return PageState{}, err
	}
	p := page.Context(ctx)

	html, err := p.HTML()
	if err != nil {
		return PageState{}, fmt.Errorf("serialize DOM: %w", err)
	}
	info, err := p.Info()
	if err != nil {
		return PageState{HTML: html}, fmt.Errorf("page info: %w", err)
	}
	return PageState{HTML: html, Title: info.Title, URL: info.URL}, nil
}

// ExecuteBatch runs the batch's commands in order against the page and
// returns evidence with before/after DOM signatures. A failed navigate
// is terminal for the batch; failures of other commands are recorded
// and execution continues.
func (c *Controller) ExecuteBatch(ctx context.Context, batch webtypes.CommandBatch, pageCtx *webtypes.PageContext) webtypes.Evidence {
	start := time.Now()
	goal := pageCtx.CurrentStepGoal
	ev := webtypes.Evidence{DOMBeforeSig: pageCtx.Signature}

	if ev.DOMBeforeSig == "" {
		if state, err := c.CurrentDOM(ctx); err == nil {
			ev.DOMBeforeSig = c.pageSignature(state.HTML, goal)
		}
	}

	for i, cmd := range batch.Commands {
		if err := ctx.Err(); err != nil {
			ev.Errors = append(ev.Errors, fmt.Sprintf("batch cancelled before command %d: %v", i+1, err))
			break
		}

		err := c.executeCommand(ctx, cmd, pageCtx, &ev)
		if err == nil {
			continue
		}
		ev.Errors = append(ev.Errors, fmt.Sprintf("command %d (%s): %v", i+1, cmd.Type, err))
		logging.BrowserError("command %d (%s) failed: %v", i+1, cmd.Type, err)
		if cmd.Type == webtypes.CommandNavigate {
			ev.SetFinding("aborted_after_command", i+1)
			break
		}
	}

	// Let the page settle before capturing the after-signature so that
	// scripted re-renders triggered by the last command are included.
	select {
	case <-time.After(c.cfg.SettleDebounce()):
	case <-ctx.Done():
	}

	if state, err := c.CurrentDOM(ctx); err == nil {
		ev.DOMAfterSig = c.pageSignature(state.HTML, goal)
		ev.SetFinding("final_url", state.URL)
		ev.SetFinding("final_title", state.Title)
	} else {
		ev.Errors = append(ev.Errors, fmt.Sprintf("after-signature capture: %v", err))
	}

	ev.Changed = ev.DOMAfterSig != "" && ev.DOMAfterSig != ev.DOMBeforeSig
	ev.Success = len(ev.Errors) == 0
	ev.TimingMs = time.Since(start).Milliseconds()
	logging.Browser("batch executed: %d commands, success=%v changed=%v in %dms",
		len(batch.Commands), ev.Success, ev.Changed, ev.TimingMs)
	return ev
}

func (c *Controller) executeCommand(ctx context.Context, cmd webtypes.Command, pageCtx *webtypes.PageContext, ev *webtypes.Evidence) error {
	switch cmd.Type {
	case webtypes.CommandNoop:
		return nil

	case webtypes.CommandNavigate:
		return c.Navigate(ctx, cmd.URL)

	case webtypes.CommandClick:
		el, selector, err := c.resolveCommandTarget(ctx, cmd, pageCtx)
		if err != nil {
			return err
		}
		ev.UsedCandidateID = cmd.CandidateID
		ev.SetFinding("clicked_selector", selector)
		return el.Timeout(c.cfg.ActionTimeout()).Click(proto.InputMouseButtonLeft, 1)

	case webtypes.CommandTypeText:
		el, selector, err := c.resolveCommandTarget(ctx, cmd, pageCtx)
		if err != nil {
			return err
		}
		ev.UsedCandidateID = cmd.CandidateID
		ev.SetFinding("typed_selector", selector)
		if err := el.Timeout(c.cfg.ActionTimeout()).Input(cmd.Text); err != nil {
			return fmt.Errorf("input text: %w", err)
		}
		if cmd.PressEnter {
			return el.Type(stringToKey("Enter"))
		}
		return nil

	case webtypes.CommandPress:
		page, err := c.currentPage()
		if err != nil {
			return err
		}
		if cmd.CandidateID > 0 {
			el, _, err := c.resolveCommandTarget(ctx, cmd, pageCtx)
			if err != nil {
				return err
			}
			return el.Type(stringToKey(cmd.Key))
		}
		return page.Context(ctx).Keyboard.Type(stringToKey(cmd.Key))

	case webtypes.CommandWaitFor:
		return c.waitFor(ctx, cmd, pageCtx)
	}
	return fmt.Errorf("unknown command type %q", cmd.Type)
}

// resolveCommandTarget maps a candidate id to a live element, walking
// the element's selector fallback chain in order.
func (c *Controller) resolveCommandTarget(ctx context.Context, cmd webtypes.Command, pageCtx *webtypes.PageContext) (*rod.Element, string, error) {
	target, ok := pageCtx.ResolveCandidate(cmd.CandidateID)
	if !ok {
		return nil, "", fmt.Errorf("candidate %d does not resolve in the current page context", cmd.CandidateID)
	}

	page, err := c.currentPage()
	if err != nil {
		return nil, "", err
	}
	p := page.Context(ctx)

	var lastErr error
	for _, selector := range target.Selectors {
		el, err := c.findBySelector(p, selector)
		if err == nil && el != nil {
			return el, selector, nil
		}
		lastErr = err
		logging.BrowserDebug("selector %q did not resolve: %v", selector, err)
	}
	if lastErr == nil {
		lastErr = errors.New("no selectors on candidate")
	}
	return nil, "", fmt.Errorf("candidate %d: all %d selectors failed: %w", cmd.CandidateID, len(target.Selectors), lastErr)
}

// findBySelector resolves one selector. The tag:contains("text") pseudo
// is not valid CSS, so it is translated to rod's text-regex lookup.
func (c *Controller) findBySelector(p *rod.Page, selector string) (*rod.Element, error) {
	if m := containsRe.FindStringSubmatch(selector); m != nil {
		tag := m[1]
		if tag == "" {
			tag = "*"
		}
		return p.Timeout(c.cfg.ActionTimeout()).ElementR(tag, "/"+regexp.QuoteMeta(m[2])+"/i")
	}
	return p.Timeout(c.cfg.ActionTimeout()).Element(selector)
}

// waitFor blocks until the DOM signature changes or the timeout lapses.
func (c *Controller) waitFor(ctx context.Context, cmd webtypes.Command, pageCtx *webtypes.PageContext) error {
	timeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !cmd.SignatureChange {
		select {
		case <-time.After(timeout):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	baseline := pageCtx.Signature
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		state, err := c.CurrentDOM(ctx)
		if err == nil && c.pageSignature(state.HTML, pageCtx.CurrentStepGoal) != baseline {
			return nil
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("DOM signature unchanged after %s", timeout)
}

// Screenshot captures the viewport to path.
func (c *Controller) Screenshot(ctx context.Context, path string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	data, err := page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Close shuts the browser down. With a persistent profile configured,
// cookies and local storage survive in the profile directory.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.browser == nil {
		return nil
	}
	c.closed = true
	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}
	err := c.browser.Close()
	c.browser = nil
	logging.Browser("browser closed")
	return err
}

func (c *Controller) currentPage() (*rod.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return nil, ErrNotInitialized
	}
	return c.page, nil
}
