package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"astrodriz/internal/deps"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/preflight"
	"astrodriz/internal/stage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system, stage, and run-ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *ledger.Store) error {
				cmdCtx := cmd.Context()

				checks := preflight.RunAll(cmdCtx, cfg)
				tools := preflight.CheckSystemDeps(cfg)

				p, err := pipeline.New(cfg, store, logging.NewNop(), nil, pipeline.OptionsFromConfig(cfg))
				if err != nil {
					return err
				}
				stages := p.Health(cmdCtx)

				stats, err := store.Stats(cmdCtx)
				if err != nil {
					return err
				}

				if ctx.JSONMode() {
					return writeStatusJSON(cmd, checks, tools, stages, stats)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("System Status", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, result := range checks {
					fmt.Fprintln(stdout, resultStatusLine(result, colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("External Tools", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range dependencyLines(tools, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Pipeline Stages", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, health := range stages {
					if health.Ready {
						fmt.Fprintln(stdout, renderStatusLine(health.Name, statusOK, "Ready", colorize))
						continue
					}
					fmt.Fprintln(stdout, renderStatusLine(health.Name, statusError, health.Detail, colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Run Ledger", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := buildLedgerStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "Ledger is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprint(stdout, table)
				return nil
			})
		},
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		if !dep.Optional {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing tools", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func writeStatusJSON(cmd *cobra.Command, checks []preflight.Result, tools []deps.Status, stages []stage.Health, stats map[ledger.Status]int) error {
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
	type stageJSON struct {
		Name   string `json:"name"`
		Ready  bool   `json:"ready"`
		Detail string `json:"detail,omitempty"`
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
	stageList := make([]stageJSON, 0, len(stages))
	for _, health := range stages {
		stageList = append(stageList, stageJSON{Name: health.Name, Ready: health.Ready, Detail: health.Detail})
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	return writeJSON(cmd, map[string]any{
		"checks": checkList,
		"tools":  toolList,
		"stages": stageList,
		"runs":   counts,
	})
}
