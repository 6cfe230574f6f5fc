package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"webnerd/internal/lattice"
	"webnerd/internal/store"
)

// sessionsCmd inspects persisted sessions and the episode archive.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and inspect persisted sessions and archived episodes",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session files on disk",
	RunE:  listSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-file]",
	Short: "Show a session's task progress and recent events",
	Args:  cobra.ExactArgs(1),
	RunE:  showSession,
}

var sessionsArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List archived episodes from the SQLite archive",
	RunE:  listArchive,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsArchiveCmd)
}

func listSessions(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(cfg.Agent.SessionDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No sessions yet.")
			return nil
		}
		return err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(cfg.Agent.SessionDir, entry.Name()))
	}
	if len(paths) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	type row struct {
		updated  time.Time
		progress string
		goal     string
		path     string
	}
	rows := make([]row, len(paths))

	// Session files are small but a long-running install accumulates
	// many; load them concurrently and print in directory order.
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			l, err := lattice.Load(path)
			if err != nil {
				rows[i] = row{goal: fmt.Sprintf("(unreadable: %v)", err), path: path}
				return nil
			}
			rows[i] = row{
				updated:  l.UpdatedAt,
				progress: l.GetTaskProgress(),
				goal:     l.Goal,
				path:     path,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range rows {
		stamp := "                   "
		if !r.updated.IsZero() {
			stamp = r.updated.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %-12s  %s\n      %s\n", stamp, r.progress, r.goal, r.path)
	}
	return nil
}

func showSession(cmd *cobra.Command, args []string) error {
	l, err := lattice.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Session:  %s\n", l.SessionID)
	fmt.Printf("Goal:     %s\n", l.Goal)
	fmt.Printf("Progress: %s\n", l.GetTaskProgress())
	fmt.Printf("Updated:  %s\n\n", l.UpdatedAt.Format(time.RFC3339))

	events := l.GetRecentEvents(10)
	if len(events) == 0 {
		fmt.Println("No step events recorded.")
		return nil
	}
	fmt.Println("Recent events:")
	for _, ev := range events {
		status := "ok"
		if !ev.Success {
			status = "FAILED"
		}
		fmt.Printf("  [%s] %s (%s)\n", ev.Type, ev.Summary, status)
	}
	return nil
}

func listArchive(cmd *cobra.Command, args []string) error {
	if cfg.Agent.ArchivePath == "" {
		return fmt.Errorf("no archive_path configured")
	}
	archive, err := store.Open(cfg.Agent.ArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	episodes, err := archive.ListEpisodes(context.Background(), 20)
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		fmt.Println("No archived episodes.")
		return nil
	}
	for _, ep := range episodes {
		fmt.Printf("%s  %-9s  %2d steps  %3d events  %s\n",
			ep.FinishedAt.Format("2006-01-02 15:04"), ep.Status, ep.Steps, ep.Events, ep.Goal)
	}
	return nil
}
