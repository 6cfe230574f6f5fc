package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webnerd/internal/agent"
	"webnerd/internal/webtypes"
)

var (
	runStartURL    string
	runSessionPath string
	runYes         bool
)

// runCmd executes one web-automation episode
var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a web-automation goal end to end",
	Long: `Plans the goal into sub-goals, drives the browser step by step, and
prints the final report and audit trail.

Examples:
  webnerd run "find the nearest Chipotle to 10001 and report its hours" --url https://chipotle.com
  webnerd run --session .webnerd/sessions/session_abc.json   # resume a paused episode`,
	RunE: runEpisode,
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "url", "", "starting URL for the episode")
	runCmd.Flags().StringVar(&runSessionPath, "session", "", "resume a persisted session file")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "auto-approve actions the safety policy flags for confirmation")
}

func runEpisode(cmd *cobra.Command, args []string) error {
	goal := strings.TrimSpace(strings.Join(args, " "))
	if goal == "" && runSessionPath == "" {
		return fmt.Errorf("provide a goal or --session to resume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	confirm := terminalConfirm
	if runYes {
		confirm = func(webtypes.CommandBatch, []string) bool { return true }
	}

	logger.Info("starting episode", zap.String("goal", goal), zap.String("url", runStartURL))
	result, err := agent.Run(ctx, cfg, agent.RunOptions{
		Goal:        goal,
		StartURL:    runStartURL,
		SessionPath: runSessionPath,
		Confirm:     confirm,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	switch {
	case result.Paused:
		fmt.Println("⏸  Episode paused.")
	case result.Success:
		fmt.Println("✓ Episode succeeded.")
	default:
		fmt.Println("✗ Episode finished without reaching the goal.")
	}
	fmt.Println()
	fmt.Println(result.Report)
	if len(result.Breadcrumbs) > 0 {
		fmt.Println("\nAudit trail:")
		for i, crumb := range result.Breadcrumbs {
			fmt.Printf("  %d. %s\n", i+1, crumb)
		}
	}
	fmt.Printf("\nSession: %s\n", result.SessionPath)
	return nil
}

// terminalConfirm asks the operator on stdin before a flagged batch runs.
func terminalConfirm(batch webtypes.CommandBatch, reasons []string) bool {
	fmt.Println("\nThe next action was flagged by the safety policy:")
	for _, r := range reasons {
		fmt.Println("  -", r)
	}
	for _, c := range batch.Commands {
		fmt.Printf("  command: %s candidate=%d url=%q text=%q\n", c.Type, c.CandidateID, c.URL, c.Text)
	}
	fmt.Print("Proceed? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
