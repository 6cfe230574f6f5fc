// Package lattice implements the cognitive lattice: the append-only
// session record that survives context loss. Tasks move through a small
// state machine, every action leaves an event, and the whole structure
// persists to disk after each state change so an episode can resume
// from the file alone.
package lattice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"webnerd/internal/logging"
	"webnerd/internal/webtypes"
)

// TaskStatus is the lifecycle state of one task node.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskAbandoned  TaskStatus = "abandoned"
	TaskFailed     TaskStatus = "failed"
)

// ErrActiveTaskExists is returned when a second task is created while
// one is still in progress. One active task per lattice.
var ErrActiveTaskExists = errors.New("lattice already has an active task")

// ErrNoActiveTask is returned by step operations when nothing is active.
var ErrNoActiveTask = errors.New("lattice has no active task")

// Task is one node in the lattice: a goal, its plan, and progress.
type Task struct {
	ID             string              `json:"id"`
	Description    string              `json:"description"`
	Status         TaskStatus          `json:"status"`
	Steps          []webtypes.PlanStep `json:"steps"`
	CurrentStep    int                 `json:"current_step"`
	CompletedSteps []int               `json:"completed_steps"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Event is one append-only entry in the session log.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	TaskID      string         `json:"task_id,omitempty"`
	StepIndex   int            `json:"step_index,omitempty"`
	Summary     string         `json:"summary"`
	CandidateID int            `json:"candidate_id,omitempty"`
	Selector    string         `json:"selector,omitempty"`
	Changed     bool           `json:"changed"`
	Success     bool           `json:"success"`
	Detail      map[string]any `json:"detail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// MemoryChunk stores a piece of durable episode knowledge, like a
// finding from an observation step.
type MemoryChunk struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Source    string    `json:"source"` // event id that produced it
	Timestamp time.Time `json:"timestamp"`
}

// Lattice is the full persisted session state.
type Lattice struct {
	mu sync.Mutex

	SessionID    string        `json:"session_id"`
	Goal         string        `json:"goal"`
	Nodes        []*Task       `json:"nodes"`
	EventLog     []Event       `json:"event_log"`
	MemoryChunks []MemoryChunk `json:"memory_chunks,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	path string
}

// New creates an empty lattice persisted under dir.
func New(dir, goal string) *Lattice {
	id := uuid.NewString()
	return &Lattice{
		SessionID: id,
		Goal:      goal,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		path:      filepath.Join(dir, fmt.Sprintf("session_%s.json", id)),
	}
}

// Load reads a persisted lattice back for resumption.
func Load(path string) (*Lattice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lattice: %w", err)
	}
	var l Lattice
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lattice: %w", err)
	}
	l.path = path
	logging.Lattice("resumed session %s with %d tasks, %d events", l.SessionID, len(l.Nodes), len(l.EventLog))
	return &l, nil
}

// Path returns where this lattice persists.
func (l *Lattice) Path() string {
	return l.path
}

// CreateNewTask adds a task and activates it. Only one task may be in
// progress at a time; finish or fail the current one first.
func (l *Lattice) CreateNewTask(description string, steps []webtypes.PlanStep) (*Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.Nodes {
		if t.Status == TaskInProgress {
			return nil, fmt.Errorf("%w: %s", ErrActiveTaskExists, t.ID)
		}
	}

	task := &Task{
		ID:          uuid.NewString(),
		Description: description,
		Status:      TaskInProgress,
		Steps:       steps,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	l.Nodes = append(l.Nodes, task)
	l.appendEventLocked(Event{
		Type:    "task_created",
		TaskID:  task.ID,
		Summary: description,
		Success: true,
	})
	if err := l.saveLocked(); err != nil {
		return nil, err
	}
	logging.Lattice("task %s created with %d steps", task.ID, len(steps))
	return task, nil
}

// GetActiveTask returns the in-progress task, if any.
func (l *Lattice) GetActiveTask() (*Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.Nodes {
		if t.Status == TaskInProgress {
			return t, true
		}
	}
	return nil, false
}

// CurrentStep returns the active task's current plan step.
func (l *Lattice) CurrentStep() (webtypes.PlanStep, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.activeLocked()
	if task == nil {
		return webtypes.PlanStep{}, 0, ErrNoActiveTask
	}
	if task.CurrentStep >= len(task.Steps) {
		return webtypes.PlanStep{}, task.CurrentStep, fmt.Errorf("no step %d in a %d-step plan", task.CurrentStep, len(task.Steps))
	}
	return task.Steps[task.CurrentStep], task.CurrentStep, nil
}

// RecordStep appends the outcome of one executed step to the event log.
// The task's step pointer does not advance; call MarkStepCompleted when
// the coordinator judges the step logically done.
func (l *Lattice) RecordStep(outcome webtypes.StepOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.activeLocked()
	if task == nil {
		return ErrNoActiveTask
	}

	selector := ""
	if sel, ok := outcome.Evidence.Findings["clicked_selector"].(string); ok {
		selector = sel
	} else if sel, ok := outcome.Evidence.Findings["typed_selector"].(string); ok {
		selector = sel
	}

	l.appendEventLocked(Event{
		Type:        "step_executed",
		TaskID:      task.ID,
		StepIndex:   task.CurrentStep,
		Summary:     outcome.Breadcrumb,
		CandidateID: outcome.Evidence.UsedCandidateID,
		Selector:    selector,
		Changed:     outcome.Evidence.Changed,
		Success:     outcome.Evidence.Success,
		Detail: map[string]any{
			"confidence":      outcome.Confidence,
			"logical_success": string(outcome.LogicalSuccess),
			"errors":          outcome.Evidence.Errors,
		},
	})
	task.UpdatedAt = time.Now()
	return l.saveLocked()
}

// MarkStepCompleted advances the active task past its current step.
func (l *Lattice) MarkStepCompleted(summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.activeLocked()
	if task == nil {
		return ErrNoActiveTask
	}

	task.CompletedSteps = append(task.CompletedSteps, task.CurrentStep)
	l.appendEventLocked(Event{
		Type:      "step_completed",
		TaskID:    task.ID,
		StepIndex: task.CurrentStep,
		Summary:   summary,
		Success:   true,
	})
	task.CurrentStep++
	task.UpdatedAt = time.Now()
	return l.saveLocked()
}

// CompleteCurrentTask transitions the active task to its terminal
// state. A task closes as completed only when every planned step was
// completed; a successful episode that stopped short of the full plan
// is recorded as abandoned.
func (l *Lattice) CompleteCurrentTask(success bool, summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.activeLocked()
	if task == nil {
		return ErrNoActiveTask
	}

	switch {
	case success && len(task.CompletedSteps) >= len(task.Steps):
		task.Status = TaskCompleted
	case success:
		task.Status = TaskAbandoned
	default:
		task.Status = TaskFailed
	}
	task.UpdatedAt = time.Now()
	l.appendEventLocked(Event{
		Type:    "task_" + string(task.Status),
		TaskID:  task.ID,
		Summary: summary,
		Success: success,
	})
	logging.Lattice("task %s finished: %s", task.ID, task.Status)
	return l.saveLocked()
}

// AddEvent appends a free-form event (navigation, observation, pause).
func (l *Lattice) AddEvent(eventType, summary string, success bool, detail map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := Event{
		Type:    eventType,
		Summary: summary,
		Success: success,
		Detail:  detail,
	}
	if task := l.activeLocked(); task != nil {
		ev.TaskID = task.ID
		ev.StepIndex = task.CurrentStep
	}
	l.appendEventLocked(ev)
	return l.saveLocked()
}

// AddMemory stores a durable key/value finding.
func (l *Lattice) AddMemory(key, value, sourceEventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MemoryChunks = append(l.MemoryChunks, MemoryChunk{
		Key:       key,
		Value:     value,
		Source:    sourceEventID,
		Timestamp: time.Now(),
	})
	return l.saveLocked()
}

// GetRecentEvents returns the last n step-relevant events distilled
// into the planner-facing form.
func (l *Lattice) GetRecentEvents(n int) []webtypes.RecentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var recent []webtypes.RecentEvent
	for i := len(l.EventLog) - 1; i >= 0 && len(recent) < n; i-- {
		ev := l.EventLog[i]
		if ev.Type != "step_executed" && ev.Type != "navigation" {
			continue
		}
		recent = append(recent, webtypes.RecentEvent{
			Type:        ev.Type,
			Summary:     ev.Summary,
			CandidateID: ev.CandidateID,
			Selector:    ev.Selector,
			Changed:     ev.Changed,
			Success:     ev.Success,
			Timestamp:   ev.Timestamp,
		})
	}
	// Reverse to chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}

// GetTaskProgress summarizes the active task for prompts and the CLI.
func (l *Lattice) GetTaskProgress() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.activeLocked()
	if task == nil {
		return "no active task"
	}
	return fmt.Sprintf("step %d/%d of %q (%d completed)",
		task.CurrentStep+1, len(task.Steps), task.Description, len(task.CompletedSteps))
}

// CompletedStepCount totals completed steps across all tasks.
func (l *Lattice) CompletedStepCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, t := range l.Nodes {
		total += len(t.CompletedSteps)
	}
	return total
}

// PlannerState builds the planner-visible slice of this lattice.
func (l *Lattice) PlannerState() *webtypes.LatticeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	task := l.activeLocked()
	if task == nil {
		return nil
	}
	state := &webtypes.LatticeState{CurrentIndex: task.CurrentStep}
	for _, step := range task.Steps {
		state.PlannedSteps = append(state.PlannedSteps, step.Description)
	}
	for _, chunk := range l.MemoryChunks {
		state.SuccessfulPatterns = append(state.SuccessfulPatterns, chunk.Key+": "+chunk.Value)
	}
	return state
}

// Save persists the lattice immediately.
func (l *Lattice) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *Lattice) activeLocked() *Task {
	for _, t := range l.Nodes {
		if t.Status == TaskInProgress {
			return t
		}
	}
	return nil
}

func (l *Lattice) appendEventLocked(ev Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now()
	l.EventLog = append(l.EventLog, ev)
	l.UpdatedAt = ev.Timestamp
}

// saveLocked writes to a temp file in the same directory then renames
// it over the target, so a crash mid-write never corrupts the session.
func (l *Lattice) saveLocked() error {
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lattice: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".lattice-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist lattice: %w", err)
	}
	return nil
}
