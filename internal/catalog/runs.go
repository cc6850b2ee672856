package catalog

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// RecordRun stores one station cycle. A run without an id gets a new one.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	} else if _, err := uuid.Parse(run.ID); err != nil {
		return "", storeFault("record_run", "invalid run id", err)
	}

	var (
		uid    sql.NullString
		bottle sql.NullInt64
		errMsg sql.NullString
	)
	if run.CardUID != "" {
		uid = sql.NullString{String: run.CardUID, Valid: true}
	}
	if run.BottleID != nil {
		bottle = sql.NullInt64{Int64: int64(*run.BottleID), Valid: true}
	}
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}

	if _, err := s.execWithRetry(ctx,
		`INSERT INTO station_runs
		   (run_id, station, mode, card_uid, bottle_id, final_state, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Station, run.Mode, uid, bottle, run.FinalState, errMsg,
		formatTimestamp(run.StartedAt), formatTimestamp(run.FinishedAt),
	); err != nil {
		return "", storeFault("record_run", "insert run "+run.ID, err)
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT run_id, station, mode, card_uid, bottle_id, final_state, error, started_at, finished_at
		FROM station_runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeFault("list_runs", "query runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run               Run
			uid, errMsg       sql.NullString
			bottle            sql.NullInt64
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.Station, &run.Mode, &uid, &bottle, &run.FinalState, &errMsg, &started, &finished); err != nil {
			return nil, storeFault("list_runs", "scan run", err)
		}
		run.CardUID = uid.String
		run.Error = errMsg.String
		if bottle.Valid {
			id := BottleID(bottle.Int64)
			run.BottleID = &id
		}
		if run.StartedAt, err = parseRequiredTimestamp(started); err != nil {
			return nil, storeFault("list_runs", "decode started_at of "+run.ID, err)
		}
		if run.FinishedAt, err = parseRequiredTimestamp(finished); err != nil {
			return nil, storeFault("list_runs", "decode finished_at of "+run.ID, err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault("list_runs", "iterate runs", err)
	}
	return out, nil
}
