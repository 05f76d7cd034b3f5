package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
)

func TestCreateAndGetRun(t *testing.T) {
	repo := New()
	ctx := context.Background()

	run := &store.Run{
		ID:        "run-1",
		Kind:      "demo",
		Status:    store.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetRunByID(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "run-1" || got.Kind != "demo" || got.Status != store.StatusPending {
		t.Fatalf("got %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	repo := New()
	if _, err := repo.GetRunByID(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRun(t *testing.T) {
	repo := New()
	ctx := context.Background()

	run := &store.Run{ID: "run-1", Status: store.StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	run.Status = store.StatusCompleted
	run.ExitCode = 0
	run.Stdout = "ok"
	if err := repo.UpdateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetRunByID(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusCompleted || got.Stdout != "ok" {
		t.Fatalf("got %+v", got)
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	repo := New()
	run := &store.Run{ID: "ghost", Status: store.StatusRunning}
	if err := repo.UpdateRun(context.Background(), run); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	repo := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		run := &store.Run{ID: id, Status: store.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := repo.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d", len(runs))
	}
	for i, want := range []string{"c", "b", "a"} {
		if runs[i].ID != want {
			t.Fatalf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}
}

func TestListRunsLimit(t *testing.T) {
	repo := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		run := &store.Run{ID: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := repo.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].ID != "e" || runs[1].ID != "d" {
		t.Fatalf("runs = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestListRunsTiebreakOnCreatedAt(t *testing.T) {
	repo := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"x", "y"} {
		if err := repo.CreateRun(ctx, &store.Run{ID: id, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := repo.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if runs[0].ID != "y" || runs[1].ID != "x" {
		t.Fatalf("runs = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestCreateRunCopiesRecord(t *testing.T) {
	repo := New()
	ctx := context.Background()

	run := &store.Run{ID: "run-1", Status: store.StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	run.Status = store.StatusFailed

	got, err := repo.GetRunByID(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusPending {
		t.Fatalf("stored record mutated through caller pointer: %+v", got)
	}
}
