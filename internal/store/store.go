package store

import (
	"context"
	"errors"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// Store defines the durable persistence contract for execution records.
// All implementations must be safe for concurrent use.
type Store interface {
	// UpsertExecution writes the full record. When keepLatest > 0 it also
	// trims the table to the keepLatest most recent executions by startedAt.
	UpsertExecution(ctx context.Context, record *schema.WorkflowExecutionRecord, keepLatest int) error
	GetExecution(ctx context.Context, executionID string) (*schema.WorkflowExecutionRecord, error)
	// ListExecutions returns records most recent first. Empty workflowID
	// matches all workflows; limit <= 0 means no limit.
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]*schema.WorkflowExecutionRecord, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

func storeNotFound(executionID string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "execution not found: %s", executionID)
}

// IsNotFound reports whether err is a missing-record error from a Store.
func IsNotFound(err error) bool {
	var engErr *schema.EngineError
	return errors.As(err, &engErr) && engErr.Code == schema.ErrCodeNotFound
}
