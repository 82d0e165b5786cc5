package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const attemptColumns = "id, run_id, mode, accepted, focus_ok, similarity, compromised, reason, staging_dir, products_json, started_at, finished_at"

// RecordAttempt inserts one finished alignment attempt for a run.
func (s *Store) RecordAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return fmt.Errorf("attempt is nil")
	}
	if attempt.RunID == 0 {
		return fmt.Errorf("attempt has no run id")
	}
	started := attempt.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO run_attempts (
            run_id, mode, accepted, focus_ok, similarity, compromised,
            reason, staging_dir, products_json, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID,
		attempt.Mode,
		boolToInt(attempt.Accepted),
		boolToInt(attempt.FocusOK),
		nullableFloat(attempt.Similarity),
		boolToInt(attempt.Compromised),
		nullableString(attempt.Reason),
		nullableString(attempt.StagingDir),
		nullableString(attempt.ProductsJSON),
		started.UTC().Format(time.RFC3339Nano),
		nullableTime(attempt.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	attempt.ID = id
	return nil
}

// AttemptsForRun returns the attempts recorded for a run in the order they
// were tried.
func (s *Store) AttemptsForRun(ctx context.Context, runID int64) ([]*Attempt, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+attemptColumns+` FROM run_attempts WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*Attempt, error) {
	var (
		id           int64
		runID        int64
		mode         string
		accepted     sql.NullInt64
		focusOK      sql.NullInt64
		similarity   sql.NullFloat64
		compromised  sql.NullInt64
		reason       sql.NullString
		stagingDir   sql.NullString
		productsJSON sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&mode,
		&accepted,
		&focusOK,
		&similarity,
		&compromised,
		&reason,
		&stagingDir,
		&productsJSON,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:           id,
		RunID:        runID,
		Mode:         mode,
		Accepted:     accepted.Valid && accepted.Int64 != 0,
		FocusOK:      focusOK.Valid && focusOK.Int64 != 0,
		Compromised:  compromised.Valid && compromised.Int64 != 0,
		Reason:       reason.String,
		StagingDir:   stagingDir.String,
		ProductsJSON: productsJSON.String,
	}
	if similarity.Valid {
		value := similarity.Float64
		attempt.Similarity = &value
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		attempt.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			attempt.FinishedAt = &finished
		}
	}
	return attempt, nil
}
