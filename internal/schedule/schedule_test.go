package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/store/memstore"
	"github.com/MikeSquared-Agency/casi/internal/store/storetest"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAdd_IntervalRuns(t *testing.T) {
	s := newScheduler(t)
	var runs atomic.Int32
	ok, err := s.Add(Job{Name: "tick", Spec: "50ms", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	if err != nil || !ok {
		t.Fatalf("Add: ok=%v err=%v", ok, err)
	}
	s.Start()
	waitFor(t, func() bool { return runs.Load() >= 2 })
}

func TestAdd_Disabled(t *testing.T) {
	s := newScheduler(t)
	for _, spec := range []string{"", "off"} {
		ok, err := s.Add(Job{Name: "noop", Spec: spec, Run: func(context.Context) error { return nil }})
		if err != nil || ok {
			t.Errorf("spec %q: expected disabled job, got ok=%v err=%v", spec, ok, err)
		}
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("disabled jobs registered: %v", s.Jobs())
	}
}

func TestAdd_Cron(t *testing.T) {
	s := newScheduler(t)
	ok, err := s.Add(Job{Name: "nightly", Spec: "0 3 * * *", Run: func(context.Context) error { return nil }})
	if err != nil || !ok {
		t.Fatalf("Add: ok=%v err=%v", ok, err)
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "nightly" {
		t.Errorf("unexpected jobs: %v", got)
	}
}

func TestAdd_BadSpec(t *testing.T) {
	s := newScheduler(t)
	if _, err := s.Add(Job{Name: "bad", Spec: "every tuesday", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected an error for a malformed spec")
	}
}

func TestRun_FailuresAndPanicsDoNotStopTheJob(t *testing.T) {
	s := newScheduler(t)
	var runs atomic.Int32
	_, err := s.Add(Job{Name: "flaky", Spec: "30ms", Run: func(context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("first run fails")
		case 2:
			panic("second run panics")
		}
		return nil
	}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start()
	waitFor(t, func() bool { return runs.Load() >= 3 })
}

func TestReloadJob(t *testing.T) {
	repo := memstore.New()
	if _, err := repo.Insert(context.Background(), storetest.Make(t, "tides", "The moon drives the tides.", 0.97, time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	c := cache.New(10, quiet())
	if err := ReloadJob("1h", c, repo).Run(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached pattern, got %d", c.Len())
	}
}

func TestIngestJob_NoURLsIsDisabled(t *testing.T) {
	if job := IngestJob("6h", nil, nil, quiet()); job.Spec != "off" {
		t.Errorf("expected ingest to be off without urls, got %q", job.Spec)
	}
}
