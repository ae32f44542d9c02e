package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config.yaml and create the state directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			dir = filepath.Clean(dir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfgPath := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			stateDir := filepath.Join(dir, "state")
			if err := os.MkdirAll(stateDir, 0o700); err != nil {
				return err
			}

			body, err := yaml.Marshal(starterConfig(stateDir))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, body, 0o644); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfgPath)
			return nil
		},
	}
}

func starterConfig(stateDir string) map[string]any {
	return map[string]any{
		"state_dir": stateDir,
		"bridge": map[string]any{
			"url":            "ws://127.0.0.1:8799/socket",
			"token":          "",
			"roster_timeout": (10 * time.Second).String(),
		},
		"command": map[string]any{
			"prefix": ".",
		},
		"serve": map[string]any{
			"max_concurrency": 3,
			"handle_timeout":  (30 * time.Second).String(),
			"health_listen":   "127.0.0.1:8798",
		},
		"audit": map[string]any{
			"enabled":    true,
			"jsonl_path": "",
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}
