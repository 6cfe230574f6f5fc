package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"webnerd/internal/browser"
	"webnerd/internal/dom"
)

var (
	snapshotOut   string
	screenshotOut string
)

// browserCmd groups the low-level browser utilities used for debugging
// the DOM pipeline without an LLM in the loop.
var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Browser utilities (page snapshots, candidate inspection)",
}

var browserSnapshotCmd = &cobra.Command{
	Use:   "snapshot [url]",
	Short: "Open a URL and print its compressed snapshot and ranked candidates",
	Args:  cobra.ExactArgs(1),
	RunE:  browserSnapshot,
}

var browserScreenshotCmd = &cobra.Command{
	Use:   "screenshot [url]",
	Short: "Open a URL and capture a screenshot",
	Args:  cobra.ExactArgs(1),
	RunE:  browserScreenshot,
}

func init() {
	browserSnapshotCmd.Flags().StringVar(&snapshotOut, "out", "", "write the skeleton to a file instead of stdout")
	browserScreenshotCmd.Flags().StringVar(&screenshotOut, "out", "screenshot.png", "output image path")
	browserCmd.AddCommand(browserSnapshotCmd)
	browserCmd.AddCommand(browserScreenshotCmd)
}

func withPage(url string, fn func(ctx context.Context, ctrl *browser.Controller) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctrl := browser.NewController(cfg.Browser, dom.NewProcessor(cfg.DOM))
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Navigate(ctx, url); err != nil {
		return err
	}
	return fn(ctx, ctrl)
}

func browserSnapshot(cmd *cobra.Command, args []string) error {
	return withPage(args[0], func(ctx context.Context, ctrl *browser.Controller) error {
		state, err := ctrl.CurrentDOM(ctx)
		if err != nil {
			return err
		}

		proc := dom.NewProcessor(cfg.DOM)
		pageCtx := proc.ContextFromPage(
			dom.PageInput{RawHTML: state.HTML, Title: state.Title, URL: state.URL},
			"", dom.ContextOptions{})

		fmt.Printf("URL:       %s\n", pageCtx.URL)
		fmt.Printf("Title:     %s\n", pageCtx.Title)
		fmt.Printf("Signature: %s\n", pageCtx.Signature)
		fmt.Printf("Candidates (%d):\n", len(pageCtx.Interactive))
		for _, el := range pageCtx.Interactive {
			fmt.Printf("  %3d  %5.1f  <%s> %q\n", el.CandidateID, el.Score, el.Tag, el.Text)
		}

		if snapshotOut != "" {
			if err := os.WriteFile(snapshotOut, []byte(pageCtx.Skeleton), 0o644); err != nil {
				return err
			}
			fmt.Printf("Skeleton written to %s\n", snapshotOut)
			return nil
		}
		fmt.Println("\nSkeleton:")
		fmt.Println(pageCtx.Skeleton)
		return nil
	})
}

func browserScreenshot(cmd *cobra.Command, args []string) error {
	return withPage(args[0], func(ctx context.Context, ctrl *browser.Controller) error {
		if err := ctrl.Screenshot(ctx, screenshotOut); err != nil {
			return err
		}
		fmt.Printf("Screenshot written to %s\n", screenshotOut)
		return nil
	})
}
