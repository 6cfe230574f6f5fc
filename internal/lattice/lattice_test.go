package lattice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"webnerd/internal/webtypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func twoStepPlan() []webtypes.PlanStep {
	return []webtypes.PlanStep{
		{Description: "Open the store locator", Kind: webtypes.StepAction},
		{Description: "Report the store hours", Kind: webtypes.StepObservation},
	}
}

func TestSingleActiveTaskEnforced(t *testing.T) {
	l := New(t.TempDir(), "goal")
	if _, err := l.CreateNewTask("first", twoStepPlan()); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CreateNewTask("second", twoStepPlan()); !errors.Is(err, ErrActiveTaskExists) {
		t.Fatalf("second active task allowed: %v", err)
	}

	if err := l.CompleteCurrentTask(true, "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CreateNewTask("second", twoStepPlan()); err != nil {
		t.Fatalf("new task after completion rejected: %v", err)
	}
}

func TestTaskClosureRequiresFullPlan(t *testing.T) {
	t.Run("all steps completed", func(t *testing.T) {
		l := New(t.TempDir(), "goal")
		task, err := l.CreateNewTask("task", twoStepPlan())
		if err != nil {
			t.Fatal(err)
		}
		if err := l.MarkStepCompleted("one"); err != nil {
			t.Fatal(err)
		}
		if err := l.MarkStepCompleted("two"); err != nil {
			t.Fatal(err)
		}
		if err := l.CompleteCurrentTask(true, "done"); err != nil {
			t.Fatal(err)
		}
		if task.Status != TaskCompleted {
			t.Fatalf("status = %s, want %s", task.Status, TaskCompleted)
		}
	})

	t.Run("partial plan is abandoned, not completed", func(t *testing.T) {
		l := New(t.TempDir(), "goal")
		task, err := l.CreateNewTask("task", twoStepPlan())
		if err != nil {
			t.Fatal(err)
		}
		if err := l.MarkStepCompleted("one"); err != nil {
			t.Fatal(err)
		}
		if err := l.CompleteCurrentTask(true, "stopped early"); err != nil {
			t.Fatal(err)
		}
		if task.Status != TaskAbandoned {
			t.Fatalf("status = %s, want %s", task.Status, TaskAbandoned)
		}
	})

	t.Run("failure closes failed", func(t *testing.T) {
		l := New(t.TempDir(), "goal")
		task, err := l.CreateNewTask("task", twoStepPlan())
		if err != nil {
			t.Fatal(err)
		}
		if err := l.CompleteCurrentTask(false, "gave up"); err != nil {
			t.Fatal(err)
		}
		if task.Status != TaskFailed {
			t.Fatalf("status = %s, want %s", task.Status, TaskFailed)
		}
	})
}

func TestStepMachineAdvances(t *testing.T) {
	l := New(t.TempDir(), "goal")
	if _, err := l.CreateNewTask("task", twoStepPlan()); err != nil {
		t.Fatal(err)
	}

	step, idx, err := l.CurrentStep()
	if err != nil || idx != 0 || step.Description != "Open the store locator" {
		t.Fatalf("current step = %v %d %v", step, idx, err)
	}

	if err := l.MarkStepCompleted("opened the locator"); err != nil {
		t.Fatal(err)
	}
	step, idx, err = l.CurrentStep()
	if err != nil || idx != 1 || step.Kind != webtypes.StepObservation {
		t.Fatalf("after advance: %v %d %v", step, idx, err)
	}

	if err := l.MarkStepCompleted("reported hours"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.CurrentStep(); err == nil {
		t.Fatal("exhausted plan should error from CurrentStep")
	}
	if got := l.CompletedStepCount(); got != 2 {
		t.Errorf("completed = %d", got)
	}
}

func TestRecordStepAppendsEvent(t *testing.T) {
	l := New(t.TempDir(), "goal")
	if _, err := l.CreateNewTask("task", twoStepPlan()); err != nil {
		t.Fatal(err)
	}

	outcome := webtypes.StepOutcome{
		Breadcrumb: "Clicked the search button.",
		Confidence: 0.8,
		Evidence: webtypes.Evidence{
			Success:         true,
			Changed:         true,
			UsedCandidateID: 2,
			Findings:        map[string]any{"clicked_selector": "button.search"},
		},
		LogicalSuccess: webtypes.TriTrue,
	}
	if err := l.RecordStep(outcome); err != nil {
		t.Fatal(err)
	}

	events := l.GetRecentEvents(5)
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	ev := events[0]
	if ev.CandidateID != 2 || ev.Selector != "button.search" || !ev.Changed || !ev.Success {
		t.Fatalf("event fields wrong: %+v", ev)
	}
}

func TestRecentEventsOrderAndLimit(t *testing.T) {
	l := New(t.TempDir(), "goal")
	if _, err := l.CreateNewTask("task", twoStepPlan()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		outcome := webtypes.StepOutcome{Breadcrumb: string(rune('a' + i)), Evidence: webtypes.Evidence{Success: true}}
		if err := l.RecordStep(outcome); err != nil {
			t.Fatal(err)
		}
	}

	events := l.GetRecentEvents(3)
	if len(events) != 3 {
		t.Fatalf("limit not applied: %d", len(events))
	}
	// Chronological: the last three recorded, oldest first.
	if events[0].Summary != "f" || events[2].Summary != "h" {
		t.Fatalf("order wrong: %q %q %q", events[0].Summary, events[1].Summary, events[2].Summary)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "find the nearest store")
	if _, err := l.CreateNewTask("task", twoStepPlan()); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkStepCompleted("done step one"); err != nil {
		t.Fatal(err)
	}
	if err := l.AddMemory("hours", "10-10", ""); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(l.Path())
	if err != nil {
		t.Fatal(err)
	}

	opts := []cmp.Option{
		cmpopts.IgnoreUnexported(Lattice{}),
		cmpopts.EquateApproxTime(0),
	}
	if diff := cmp.Diff(l, loaded, opts...); diff != "" {
		t.Errorf("round-trip mismatch (-saved +loaded):\n%s", diff)
	}

	task, ok := loaded.GetActiveTask()
	if !ok || task.CurrentStep != 1 {
		t.Fatalf("resumed task state wrong: %+v", task)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "goal")
	if _, err := l.CreateNewTask("task", twoStepPlan()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
	if _, err := os.Stat(l.Path()); err != nil {
		t.Fatalf("session file missing: %v", err)
	}
}

func TestPlannerState(t *testing.T) {
	l := New(t.TempDir(), "goal")
	if _, err := l.CreateNewTask("task", twoStepPlan()); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkStepCompleted("x"); err != nil {
		t.Fatal(err)
	}

	state := l.PlannerState()
	if state == nil || state.CurrentIndex != 1 || len(state.PlannedSteps) != 2 {
		t.Fatalf("planner state wrong: %+v", state)
	}
}
