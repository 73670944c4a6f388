package runtime

import (
	"context"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// Cancel raises the cancel flag and marks the record cancelled. Returns true
// when a record for the execution was found. Idempotent.
func (s *State) Cancel(ctx context.Context, executionID string) bool {
	s.MarkCancelled(executionID)

	record, err := s.Get(ctx, executionID)
	if err != nil {
		return false
	}
	record.Status = schema.ExecutionCancelled
	completedAt := nowISO()
	record.CompletedAt = &completedAt
	s.Persist(ctx, record)
	return true
}

// Pause raises the pause flag. Returns true when the execution is running
// (now paused) or already paused.
func (s *State) Pause(ctx context.Context, executionID string) bool {
	s.MarkPaused(executionID)

	record, err := s.Get(ctx, executionID)
	if err != nil {
		return false
	}
	if record.Status == schema.ExecutionRunning {
		record.Status = schema.ExecutionPaused
		s.Persist(ctx, record)
		return true
	}
	return record.Status == schema.ExecutionPaused
}

// Resume clears the pause flag. Returns true when the execution is paused
// (now running) or already running.
func (s *State) Resume(ctx context.Context, executionID string) bool {
	s.ClearPaused(executionID)

	record, err := s.Get(ctx, executionID)
	if err != nil {
		return false
	}
	if record.Status == schema.ExecutionPaused {
		record.Status = schema.ExecutionRunning
		s.Persist(ctx, record)
		return true
	}
	return record.Status == schema.ExecutionRunning
}
