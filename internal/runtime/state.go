package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ElementsAI-Dev/cognia-workflow/internal/store"
	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// Defaults for the bounded execution cache and the durable retention window.
const (
	DefaultCacheLimit     = 100
	DefaultRetentionLimit = 500
)

// Config bounds the in-memory cache and the durable retention window.
type Config struct {
	// CacheLimit is the maximum number of records kept in memory.
	CacheLimit int
	// RetentionLimit is the number of records kept in the durable store.
	RetentionLimit int
}

func (c Config) withDefaults() Config {
	if c.CacheLimit <= 0 {
		c.CacheLimit = DefaultCacheLimit
	}
	if c.RetentionLimit <= 0 {
		c.RetentionLimit = DefaultRetentionLimit
	}
	return c
}

// State holds the live execution records plus the cancel/pause control
// flags, backed by an optional durable store. Safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	executions map[string]*schema.WorkflowExecutionRecord
	cancelled  map[string]struct{}
	paused     map[string]struct{}

	store  store.Store
	config Config
	logger *slog.Logger
}

// NewState creates an in-memory only State.
func NewState(config Config, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		executions: make(map[string]*schema.WorkflowExecutionRecord),
		cancelled:  make(map[string]struct{}),
		paused:     make(map[string]struct{}),
		config:     config.withDefaults(),
		logger:     logger,
	}
}

// NewStateWithStore creates a State backed by a durable store and warms the
// memory cache with the most recent records.
func NewStateWithStore(ctx context.Context, durable store.Store, config Config, logger *slog.Logger) (*State, error) {
	s := NewState(config, logger)
	s.store = durable

	recent, err := durable.ListExecutions(ctx, "", s.config.CacheLimit)
	if err != nil {
		return nil, err
	}
	for _, record := range recent {
		s.executions[record.ExecutionID] = record
	}
	return s, nil
}

// Persist upserts the record in memory and in the durable store. The memory
// cache is trimmed only after a successful durable write so a failing store
// never silently loses the newest records.
func (s *State) Persist(ctx context.Context, record *schema.WorkflowExecutionRecord) {
	snapshot := cloneRecord(record)

	s.mu.Lock()
	if existing, ok := s.executions[snapshot.ExecutionID]; ok {
		// A finished execution never goes back to running; late writes may
		// still append logs under the terminal status.
		if existing.Status.Terminal() && !snapshot.Status.Terminal() {
			snapshot.Status = existing.Status
			snapshot.CompletedAt = existing.CompletedAt
		}
	}
	s.executions[snapshot.ExecutionID] = snapshot
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertExecution(ctx, snapshot, s.config.RetentionLimit); err != nil {
			s.logger.WarnContext(ctx, "persist execution to store failed",
				slog.String("execution_id", snapshot.ExecutionID),
				slog.String("error", err.Error()))
			return
		}
	}

	s.mu.Lock()
	s.trimLocked()
	s.mu.Unlock()
}

// trimLocked evicts the oldest records (by startedAt) beyond CacheLimit.
func (s *State) trimLocked() {
	if len(s.executions) <= s.config.CacheLimit {
		return
	}
	type entry struct {
		startedAt   string
		executionID string
	}
	sorted := make([]entry, 0, len(s.executions))
	for _, record := range s.executions {
		sorted = append(sorted, entry{record.StartedAt, record.ExecutionID})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].startedAt > sorted[j].startedAt })
	for _, e := range sorted[s.config.CacheLimit:] {
		delete(s.executions, e.executionID)
	}
}

// Get returns the record from memory, falling back to the durable store.
func (s *State) Get(ctx context.Context, executionID string) (*schema.WorkflowExecutionRecord, error) {
	s.mu.RLock()
	record, ok := s.executions[executionID]
	s.mu.RUnlock()
	if ok {
		return cloneRecord(record), nil
	}

	if s.store != nil {
		return s.store.GetExecution(ctx, executionID)
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution not found: %s", executionID)
}

// List merges memory and store records, most recent first. Empty workflowID
// matches everything; limit <= 0 means no limit.
func (s *State) List(ctx context.Context, workflowID string, limit int) ([]*schema.WorkflowExecutionRecord, error) {
	memory := s.listMemory(workflowID, limit)
	if s.store == nil {
		return memory, nil
	}

	fetchLimit := s.config.CacheLimit
	if limit > 0 {
		fetchLimit = limit
		if len(memory) > fetchLimit {
			fetchLimit = len(memory)
		}
	}
	stored, err := s.store.ListExecutions(ctx, workflowID, fetchLimit)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*schema.WorkflowExecutionRecord, len(stored)+len(memory))
	for _, record := range stored {
		merged[record.ExecutionID] = record
	}
	// Memory wins on conflict: it is always at least as fresh as the store.
	for _, record := range memory {
		merged[record.ExecutionID] = record
	}

	list := make([]*schema.WorkflowExecutionRecord, 0, len(merged))
	for _, record := range merged {
		list = append(list, record)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt > list[j].StartedAt })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *State) listMemory(workflowID string, limit int) []*schema.WorkflowExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*schema.WorkflowExecutionRecord, 0, len(s.executions))
	for _, record := range s.executions {
		if workflowID != "" && record.WorkflowID != workflowID {
			continue
		}
		list = append(list, cloneRecord(record))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt > list[j].StartedAt })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// --- control flags ---

// MarkCancelled raises the cancel flag and drops any pause flag.
func (s *State) MarkCancelled(executionID string) {
	s.mu.Lock()
	s.cancelled[executionID] = struct{}{}
	delete(s.paused, executionID)
	s.mu.Unlock()
}

// MarkPaused raises the pause flag.
func (s *State) MarkPaused(executionID string) {
	s.mu.Lock()
	s.paused[executionID] = struct{}{}
	s.mu.Unlock()
}

// ClearPaused drops the pause flag.
func (s *State) ClearPaused(executionID string) {
	s.mu.Lock()
	delete(s.paused, executionID)
	s.mu.Unlock()
}

// ClearFlags drops both flags, called when an execution reaches a terminal state.
func (s *State) ClearFlags(executionID string) {
	s.mu.Lock()
	delete(s.cancelled, executionID)
	delete(s.paused, executionID)
	s.mu.Unlock()
}

// IsCancelled reports whether the cancel flag is raised.
func (s *State) IsCancelled(executionID string) bool {
	s.mu.RLock()
	_, ok := s.cancelled[executionID]
	s.mu.RUnlock()
	return ok
}

// IsPaused reports whether the pause flag is raised.
func (s *State) IsPaused(executionID string) bool {
	s.mu.RLock()
	_, ok := s.paused[executionID]
	s.mu.RUnlock()
	return ok
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// cloneRecord copies the record deeply enough that callers and the cache
// never share step state or log slices.
func cloneRecord(record *schema.WorkflowExecutionRecord) *schema.WorkflowExecutionRecord {
	clone := *record
	if record.StepStates != nil {
		clone.StepStates = make([]schema.WorkflowStepState, len(record.StepStates))
		copy(clone.StepStates, record.StepStates)
	}
	if record.Logs != nil {
		clone.Logs = make([]schema.LogEntry, len(record.Logs))
		copy(clone.Logs, record.Logs)
	}
	return &clone
}
