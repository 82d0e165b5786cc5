package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"astrodriz/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Verify directories, external tools, and notification reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			checks := preflight.RunAll(cmd.Context(), cfg)
			tools := preflight.CheckSystemDeps(cfg)

			failures := 0
			for _, check := range checks {
				if !check.Passed {
					failures++
				}
			}
			for _, tool := range tools {
				if !tool.Available && !tool.Optional {
					failures++
				}
			}

			if ctx.JSONMode() {
				type checkJSON struct {
					Name   string `json:"name"`
					Passed bool   `json:"passed"`
					Detail string `json:"detail,omitempty"`
				}
				type toolJSON struct {
					Name      string `json:"name"`
					Command   string `json:"command"`
					Available bool   `json:"available"`
					Optional  bool   `json:"optional"`
					Detail    string `json:"detail,omitempty"`
				}
				checkList := make([]checkJSON, 0, len(checks))
				for _, check := range checks {
					checkList = append(checkList, checkJSON{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
				}
				toolList := make([]toolJSON, 0, len(tools))
				for _, tool := range tools {
					toolList = append(toolList, toolJSON{
						Name:      tool.Name,
						Command:   tool.Command,
						Available: tool.Available,
						Optional:  tool.Optional,
						Detail:    tool.Detail,
					})
				}
				if err := writeJSON(cmd, map[string]any{
					"checks":   checkList,
					"tools":    toolList,
					"failures": failures,
				}); err != nil {
					return err
				}
				if failures > 0 {
					return fmt.Errorf("%d preflight checks failed", failures)
				}
				return nil
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, check := range checks {
				fmt.Fprintln(stdout, resultStatusLine(check, colorize))
			}
			for _, line := range dependencyLines(tools, colorize) {
				fmt.Fprintln(stdout, line)
			}

			if failures > 0 {
				return fmt.Errorf("%d preflight checks failed", failures)
			}
			fmt.Fprintln(stdout, "All preflight checks passed")
			return nil
		},
	}
}
