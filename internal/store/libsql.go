package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

const executionColumns = `execution_id, workflow_id, status, request_id, trigger_id, is_replay,
	input_json, output_json, step_states_json, logs_json, error, started_at, completed_at`

// UpsertExecution writes the record, refusing to regress a terminal status
// to a non-terminal one, then trims rows beyond keepLatest by started_at.
func (s *LibSQLStore) UpsertExecution(ctx context.Context, record *schema.WorkflowExecutionRecord, keepLatest int) error {
	inputJSON, err := json.Marshal(record.Input)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal input: %s", err.Error()).WithCause(err)
	}
	var outputJSON sql.NullString
	if record.Output != nil {
		raw, err := json.Marshal(record.Output)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "marshal output: %s", err.Error()).WithCause(err)
		}
		outputJSON = sql.NullString{String: string(raw), Valid: true}
	}
	stepStatesJSON, err := json.Marshal(record.StepStates)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal step states: %s", err.Error()).WithCause(err)
	}
	logs := record.Logs
	if logs == nil {
		logs = []schema.LogEntry{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal logs: %s", err.Error()).WithCause(err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (
			execution_id, workflow_id, status, request_id, trigger_id, is_replay,
			input_json, output_json, step_states_json, logs_json, error,
			started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			status = CASE
				WHEN workflow_executions.status IN ('completed', 'failed', 'cancelled')
					AND excluded.status NOT IN ('completed', 'failed', 'cancelled')
				THEN workflow_executions.status
				ELSE excluded.status
			END,
			request_id = excluded.request_id,
			trigger_id = excluded.trigger_id,
			is_replay = excluded.is_replay,
			input_json = excluded.input_json,
			output_json = excluded.output_json,
			step_states_json = excluded.step_states_json,
			logs_json = excluded.logs_json,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = CASE
				WHEN workflow_executions.status IN ('completed', 'failed', 'cancelled')
					AND excluded.status NOT IN ('completed', 'failed', 'cancelled')
				THEN workflow_executions.completed_at
				ELSE excluded.completed_at
			END,
			updated_at = excluded.updated_at`,
		record.ExecutionID, record.WorkflowID, string(record.Status),
		nullStr(record.RequestID), nullStr(record.TriggerID), nullBool(record.IsReplay),
		string(inputJSON), outputJSON, string(stepStatesJSON), string(logsJSON),
		nullStr(record.Error), record.StartedAt, nullStr(record.CompletedAt), now,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "upsert execution %s: %s", record.ExecutionID, err.Error()).WithCause(err)
	}

	if keepLatest > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM workflow_executions
			WHERE execution_id IN (
				SELECT execution_id
				FROM workflow_executions
				ORDER BY started_at DESC
				LIMIT -1 OFFSET ?
			)`, keepLatest)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "trim executions: %s", err.Error()).WithCause(err)
		}
	}
	return nil
}

func (s *LibSQLStore) GetExecution(ctx context.Context, executionID string) (*schema.WorkflowExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE execution_id = ?`, executionID)
	record, err := scanExecutionRecord(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound(executionID)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get execution %s: %s", executionID, err.Error()).WithCause(err)
	}
	return record, nil
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*schema.WorkflowExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions`
	var args []any
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list executions: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var records []*schema.WorkflowExecutionRecord
	for rows.Next() {
		record, err := scanExecutionRecord(rows)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan execution: %s", err.Error()).WithCause(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list executions: %s", err.Error()).WithCause(err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecutionRecord(row rowScanner) (*schema.WorkflowExecutionRecord, error) {
	var (
		record                    schema.WorkflowExecutionRecord
		status                    string
		requestID, triggerID      sql.NullString
		isReplay                  sql.NullInt64
		inputJSON, stepStatesJSON string
		outputJSON, logsJSON      sql.NullString
		errorText, completedAt    sql.NullString
	)
	if err := row.Scan(
		&record.ExecutionID, &record.WorkflowID, &status, &requestID, &triggerID, &isReplay,
		&inputJSON, &outputJSON, &stepStatesJSON, &logsJSON, &errorText,
		&record.StartedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	record.Status = schema.ExecutionStatus(status)
	record.RequestID = strOrNil(requestID)
	record.TriggerID = strOrNil(triggerID)
	record.Error = strOrNil(errorText)
	record.CompletedAt = strOrNil(completedAt)
	if isReplay.Valid {
		v := isReplay.Int64 == 1
		record.IsReplay = &v
	}

	// Row payloads are best-effort decoded; a corrupt column degrades to
	// an empty value rather than failing the whole read.
	if err := json.Unmarshal([]byte(inputJSON), &record.Input); err != nil {
		record.Input = map[string]any{}
	}
	if outputJSON.Valid {
		_ = json.Unmarshal([]byte(outputJSON.String), &record.Output)
	}
	if err := json.Unmarshal([]byte(stepStatesJSON), &record.StepStates); err != nil {
		record.StepStates = nil
	}
	if logsJSON.Valid {
		_ = json.Unmarshal([]byte(logsJSON.String), &record.Logs)
	}
	if record.Logs == nil {
		record.Logs = []schema.LogEntry{}
	}
	return &record, nil
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	v := int64(0)
	if *b {
		v = 1
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func strOrNil(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
