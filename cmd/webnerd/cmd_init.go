package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"webnerd/internal/config"
)

// initCmd sets up the .webnerd workspace directory
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize webNERD in the current directory",
	Long: `Creates the .webnerd/ directory with a default config.yaml plus the
sessions, debug, and logs subdirectories. Run once per workspace, then
edit .webnerd/config.yaml to set your LLM provider and safety policy.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Already initialized: %s\n", path)
		return nil
	}

	fresh := config.Default()
	if err := fresh.Save(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	for _, dir := range []string{fresh.Agent.SessionDir, fresh.Agent.DebugDir, filepath.Join(".webnerd", "logs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	fmt.Printf("Initialized webNERD workspace.\n")
	fmt.Printf("  config:   %s\n", path)
	fmt.Printf("  sessions: %s\n", fresh.Agent.SessionDir)
	fmt.Printf("  debug:    %s\n", fresh.Agent.DebugDir)
	fmt.Println("\nSet OPENAI_API_KEY or GEMINI_API_KEY (or edit llm.api_key) before running.")
	return nil
}
