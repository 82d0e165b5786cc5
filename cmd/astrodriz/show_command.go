package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"astrodriz/internal/ledger"
	"astrodriz/internal/stage"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <runID>",
		Short: "Show one run and its alignment attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseRunIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]

			return ctx.withStore(func(store *ledger.Store) error {
				run, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %d not found", id)
				}
				attempts, err := store.AttemptsForRun(cmd.Context(), id)
				if err != nil {
					return err
				}

				if ctx.JSONMode() {
					return writeRunDetailJSON(cmd, run, attempts)
				}
				printRunDetail(cmd, run, attempts)
				return nil
			})
		},
	}
}

func printRunDetail(cmd *cobra.Command, run *ledger.Run, attempts []*ledger.Attempt) {
	out := cmd.OutOrStdout()
	products, _ := stage.ParseProducts(run.ProductsJSON)

	fmt.Fprintf(out, "Run #%d (%s)\n", run.ID, run.UUID)
	fmt.Fprintf(out, "  Dataset:       %s\n", run.Dataset)
	fmt.Fprintf(out, "  Kind:          %s\n", valueOrDash(run.InputKind))
	fmt.Fprintf(out, "  Instrument:    %s\n", valueOrDash(run.Instrument))
	fmt.Fprintf(out, "  Source:        %s\n", run.SourcePath)
	fmt.Fprintf(out, "  Status:        %s\n", formatStatusLabel(string(run.Status)))
	fmt.Fprintf(out, "  DRIZCORR:      %s\n", valueOrDash(run.DrizSwitch))
	fmt.Fprintf(out, "  Accepted mode: %s\n", valueOrDash(run.AcceptedMode))
	if len(products) > 0 {
		fmt.Fprintf(out, "  Products:      %s\n", strings.Join(products, ", "))
	}
	if strings.TrimSpace(run.TrailerPath) != "" {
		fmt.Fprintf(out, "  Trailer:       %s\n", run.TrailerPath)
	}
	if run.NeedsReview {
		fmt.Fprintf(out, "  Needs review:  %s\n", valueOrDash(run.ReviewReason))
	}
	if strings.TrimSpace(run.ErrorMessage) != "" {
		fmt.Fprintf(out, "  Error:         %s\n", run.ErrorMessage)
	}
	if strings.TrimSpace(run.ProgressMessage) != "" {
		fmt.Fprintf(out, "  Progress:      %s (%s, %.0f%%)\n",
			run.ProgressMessage, valueOrDash(run.ProgressStage), run.ProgressPercent)
	}
	fmt.Fprintf(out, "  Created:       %s\n", formatDisplayTime(run.CreatedAt))
	fmt.Fprintf(out, "  Updated:       %s\n", formatDisplayTime(run.UpdatedAt))

	if len(attempts) == 0 {
		fmt.Fprintln(out, "\nNo alignment attempts recorded")
		return
	}

	rows := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		rows = append(rows, []string{
			attempt.Mode,
			yesNo(attempt.Accepted),
			yesNo(attempt.FocusOK),
			formatSimilarity(attempt.Similarity),
			valueOrDash(attempt.Reason),
			formatOptionalTime(attempt.FinishedAt),
		})
	}
	fmt.Fprintln(out)
	table := renderTable(
		[]string{"Mode", "Accepted", "Focus", "Similarity", "Reason", "Finished"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
	fmt.Fprintln(out, table)
}

func writeRunDetailJSON(cmd *cobra.Command, run *ledger.Run, attempts []*ledger.Attempt) error {
	products, _ := stage.ParseProducts(run.ProductsJSON)

	type attemptJSON struct {
		Mode        string   `json:"mode"`
		Accepted    bool     `json:"accepted"`
		FocusOK     bool     `json:"focus_ok"`
		Similarity  *float64 `json:"similarity,omitempty"`
		Compromised bool     `json:"compromised"`
		Reason      string   `json:"reason,omitempty"`
		StagingDir  string   `json:"staging_dir,omitempty"`
		StartedAt   string   `json:"started_at"`
		FinishedAt  string   `json:"finished_at,omitempty"`
	}
	list := make([]attemptJSON, 0, len(attempts))
	for _, attempt := range attempts {
		entry := attemptJSON{
			Mode:        attempt.Mode,
			Accepted:    attempt.Accepted,
			FocusOK:     attempt.FocusOK,
			Similarity:  attempt.Similarity,
			Compromised: attempt.Compromised,
			Reason:      attempt.Reason,
			StagingDir:  attempt.StagingDir,
			StartedAt:   attempt.StartedAt.UTC().Format(time.RFC3339),
		}
		if attempt.FinishedAt != nil {
			entry.FinishedAt = attempt.FinishedAt.UTC().Format(time.RFC3339)
		}
		list = append(list, entry)
	}

	return writeJSON(cmd, map[string]any{
		"id":           run.ID,
		"uuid":         run.UUID,
		"dataset":      run.Dataset,
		"kind":         run.InputKind,
		"instrument":   run.Instrument,
		"source":       run.SourcePath,
		"status":       string(run.Status),
		"driz_switch":  run.DrizSwitch,
		"mode":         run.AcceptedMode,
		"products":     products,
		"trailer":      run.TrailerPath,
		"needs_review": run.NeedsReview,
		"error":        run.ErrorMessage,
		"created_at":   run.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   run.UpdatedAt.UTC().Format(time.RFC3339),
		"attempts":     list,
	})
}

func valueOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return formatDisplayTime(*value)
}
