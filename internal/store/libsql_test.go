package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeRecord(index int, workflowID string) *schema.WorkflowExecutionRecord {
	requestID := fmt.Sprintf("req-%d", index%3)
	startedAt := time.Unix(1_700_000_000+int64(index), 0).UTC().Format(time.RFC3339)
	completedAt := time.Unix(1_700_000_100+int64(index), 0).UTC().Format(time.RFC3339)
	isReplay := false
	return &schema.WorkflowExecutionRecord{
		ExecutionID: fmt.Sprintf("exec-%d", index),
		WorkflowID:  workflowID,
		Status:      schema.ExecutionCompleted,
		RequestID:   &requestID,
		Input:       map[string]any{"value": float64(index)},
		Output:      map[string]any{"result": fmt.Sprintf("ok-%d", index)},
		StepStates: []schema.WorkflowStepState{{
			StepID: fmt.Sprintf("step-%d", index),
			Status: schema.StepCompleted,
		}},
		Logs: []schema.LogEntry{{
			EventID:     uuid.New().String(),
			Level:       schema.LevelInfo,
			Code:        strPtr("workflow.execution.completed"),
			ExecutionID: fmt.Sprintf("exec-%d", index),
			WorkflowID:  workflowID,
			Timestamp:   startedAt,
		}},
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		IsReplay:    &isReplay,
	}
}

func strPtr(s string) *string { return &s }

func TestUpsertAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := makeRecord(1, "workflow-a")
	require.NoError(t, s.UpsertExecution(ctx, record, 0))

	loaded, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", loaded.ExecutionID)
	assert.Equal(t, "workflow-a", loaded.WorkflowID)
	assert.Equal(t, schema.ExecutionCompleted, loaded.Status)
	require.NotNil(t, loaded.RequestID)
	assert.Equal(t, "req-1", *loaded.RequestID)
	assert.Equal(t, map[string]any{"value": float64(1)}, loaded.Input)
	assert.Equal(t, map[string]any{"result": "ok-1"}, loaded.Output)
	require.Len(t, loaded.StepStates, 1)
	assert.Equal(t, "step-1", loaded.StepStates[0].StepID)
	require.Len(t, loaded.Logs, 1)
	require.NotNil(t, loaded.IsReplay)
	assert.False(t, *loaded.IsReplay)
}

func TestGetExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExecution(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestUpsertOverwritesExistingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := makeRecord(1, "workflow-a")
	record.Status = schema.ExecutionRunning
	record.Output = nil
	record.CompletedAt = nil
	require.NoError(t, s.UpsertExecution(ctx, record, 0))

	record.Status = schema.ExecutionCompleted
	record.Output = map[string]any{"result": "done"}
	completedAt := time.Now().UTC().Format(time.RFC3339)
	record.CompletedAt = &completedAt
	require.NoError(t, s.UpsertExecution(ctx, record, 0))

	loaded, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCompleted, loaded.Status)
	assert.Equal(t, map[string]any{"result": "done"}, loaded.Output)
	require.NotNil(t, loaded.CompletedAt)
}

func TestUpsertKeepsTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := makeRecord(1, "workflow-a")
	record.Status = schema.ExecutionCancelled
	require.NoError(t, s.UpsertExecution(ctx, record, 0))

	// A late in-flight write must not resurrect a finished execution.
	stale := makeRecord(1, "workflow-a")
	stale.Status = schema.ExecutionRunning
	stale.CompletedAt = nil
	require.NoError(t, s.UpsertExecution(ctx, stale, 0))

	loaded, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCancelled, loaded.Status)
	assert.NotNil(t, loaded.CompletedAt)
}

func TestListExecutionsByWorkflowAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for index := 0; index < 6; index++ {
		workflowID := "workflow-a"
		if index%2 == 1 {
			workflowID = "workflow-b"
		}
		require.NoError(t, s.UpsertExecution(ctx, makeRecord(index, workflowID), 0))
	}

	records, err := s.ListExecutions(ctx, "workflow-a", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "workflow-a", record.WorkflowID)
	}
	// Most recent first.
	assert.Equal(t, "exec-4", records[0].ExecutionID)
	assert.Equal(t, "exec-2", records[1].ExecutionID)
}

func TestRetentionKeepsLatestRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for index := 0; index < 12; index++ {
		require.NoError(t, s.UpsertExecution(ctx, makeRecord(index, "workflow-a"), 10))
	}

	records, err := s.ListExecutions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 10)
	for _, record := range records {
		assert.NotEqual(t, "exec-0", record.ExecutionID)
		assert.NotEqual(t, "exec-1", record.ExecutionID)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.UpsertExecution(ctx, makeRecord(7, "workflow-a"), 0))
	require.NoError(t, s.Close())

	reopened, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Migrate(ctx))

	loaded, err := reopened.GetExecution(ctx, "exec-7")
	require.NoError(t, err)
	assert.Equal(t, "exec-7", loaded.ExecutionID)
	require.Len(t, loaded.Logs, 1)
}
