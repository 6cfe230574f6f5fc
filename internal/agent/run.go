package agent

import (
	"context"
	"fmt"

	"webnerd/internal/browser"
	"webnerd/internal/config"
	"webnerd/internal/dom"
	"webnerd/internal/executor"
	"webnerd/internal/llm"
	"webnerd/internal/logging"
	"webnerd/internal/store"
)

// RunOptions configures one episode launched through Run.
type RunOptions struct {
	Goal        string
	StartURL    string
	SessionPath string // resume an existing lattice when non-empty
	Confirm     executor.ConfirmFunc
}

// Run is the user-visible entry point: it assembles every component
// from configuration, executes the episode, and tears everything down.
func Run(ctx context.Context, cfg *config.Config, opts RunOptions) (EpisodeResult, error) {
	if opts.Goal == "" && opts.SessionPath == "" {
		return EpisodeResult{}, fmt.Errorf("a goal or a session to resume is required")
	}

	client, err := llm.NewClientFromConfig(ctx, cfg.LLM)
	if err != nil {
		logging.AgentWarn("config LLM unavailable (%v), trying environment", err)
		client, err = llm.NewClientFromEnv(ctx)
		if err != nil {
			return EpisodeResult{}, fmt.Errorf("no usable LLM client: %w", err)
		}
	}

	ctrl := browser.NewController(cfg.Browser, dom.NewProcessor(cfg.DOM))
	if err := ctrl.Initialize(ctx); err != nil {
		return EpisodeResult{}, fmt.Errorf("browser init: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logging.BrowserWarn("browser close: %v", err)
		}
	}()

	var archive *store.Archive
	if cfg.Agent.ArchivePath != "" {
		archive, err = store.Open(cfg.Agent.ArchivePath)
		if err != nil {
			logging.AgentWarn("episode archive unavailable: %v", err)
		} else {
			defer archive.Close()
		}
	}

	coord := NewCoordinator(cfg, client, ctrl, archive, opts.Confirm)
	if opts.SessionPath != "" {
		if err := coord.Resume(opts.SessionPath); err != nil {
			return EpisodeResult{}, fmt.Errorf("resume session: %w", err)
		}
	}
	return coord.ExecuteWebTask(ctx, opts.Goal, opts.StartURL)
}
