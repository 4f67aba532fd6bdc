package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/transform"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(o Options) (*Manager, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(o)
	m.now = c.now
	return m, c
}

func data() *dataset.Dataset {
	return dataset.New("a.csv", []string{"A"}, [][]string{{"1"}})
}

func plan() *transform.Plan {
	return &transform.Plan{Operations: []transform.Operation{{Op: transform.OpHead, N: 1}}}
}

func TestQueryApplyCycle(t *testing.T) {
	m, _ := newTestManager(Options{})
	s, err := m.Create("a.csv", data(), data())
	if err != nil {
		t.Fatal(err)
	}
	if s.State != StateIdle {
		t.Fatalf("state = %s", s.State)
	}

	if _, err := m.BeginQuery(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.BeginQuery(s.ID); !errors.Is(err, ErrBusy) {
		t.Fatalf("second query: err = %v, want ErrBusy", err)
	}
	mod, err := m.EndQuery(s.ID, "top row", plan(), []string{"head 1"}, nil)
	if err != nil || mod == nil {
		t.Fatalf("EndQuery = %v, %v", mod, err)
	}

	if _, _, err := m.BeginApply(s.ID, "other"); !errors.Is(err, ErrNoModification) {
		t.Fatalf("wrong id: err = %v", err)
	}
	_, got, err := m.BeginApply(s.ID, mod.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Query != "top row" {
		t.Fatalf("mod = %+v", got)
	}
	if _, err := m.BeginQuery(s.ID); !errors.Is(err, ErrBusy) {
		t.Fatalf("query during apply: err = %v", err)
	}
	applied, err := m.EndApply(s.ID, mod.ID, data(), nil)
	if err != nil || applied.Result == nil {
		t.Fatalf("EndApply = %+v, %v", applied, err)
	}

	cur, _ := m.Get(s.ID)
	if cur.State != StateApplied || cur.Pending != nil || cur.Applied.ID != mod.ID {
		t.Fatalf("after apply: %+v", cur)
	}
	if _, _, err := m.BeginApply(s.ID, mod.ID); !errors.Is(err, ErrNoModification) {
		t.Fatalf("re-apply: err = %v", err)
	}
	if dl, err := m.Modification(s.ID, mod.ID); err != nil || dl.Result == nil {
		t.Fatalf("Modification = %+v, %v", dl, err)
	}
}

func TestFailedStates(t *testing.T) {
	m, _ := newTestManager(Options{})
	s, _ := m.Create("a.csv", data(), data())

	m.BeginQuery(s.ID)
	m.EndQuery(s.ID, "q", nil, nil, errors.New("oracle down"))
	cur, _ := m.Get(s.ID)
	if cur.State != StateFailed || cur.LastError != "oracle down" {
		t.Fatalf("after failed query: %+v", cur)
	}

	m.BeginQuery(s.ID)
	mod, _ := m.EndQuery(s.ID, "q", plan(), nil, nil)
	m.BeginApply(s.ID, mod.ID)
	if _, err := m.EndApply(s.ID, mod.ID, nil, errors.New("bad column")); err != nil {
		t.Fatal(err)
	}
	cur, _ = m.Get(s.ID)
	if cur.State != StateExecutionFailed || cur.Pending == nil {
		t.Fatalf("after failed apply: %+v", cur)
	}

	m.BeginQuery(s.ID)
	if err := m.EndChart(s.ID, nil); err != nil {
		t.Fatal(err)
	}
	cur, _ = m.Get(s.ID)
	if cur.State != StateDisplayed || cur.Pending == nil {
		t.Fatalf("chart must keep the pending modification: %+v", cur)
	}

	m.BeginQuery(s.ID)
	m.EndQuery(s.ID, "plain question", nil, nil, nil)
	cur, _ = m.Get(s.ID)
	if cur.Pending != nil {
		t.Fatal("a new answer without a plan must clear the pending modification")
	}
}

func TestNotFound(t *testing.T) {
	m, _ := newTestManager(Options{})
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if err := m.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: %v", err)
	}
	s, _ := m.Create("a.csv", data(), data())
	if err := m.Delete(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.BeginQuery(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("BeginQuery after delete: %v", err)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	m, c := newTestManager(Options{MaxSessions: 2})
	a, _ := m.Create("a", data(), data())
	c.advance(time.Second)
	b, _ := m.Create("b", data(), data())
	c.advance(time.Second)
	m.Get(a.ID)
	c.advance(time.Second)

	if _, err := m.Create("c", data(), data()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("least recently used session should be evicted")
	}
	if _, err := m.Get(a.ID); err != nil {
		t.Fatal("recently used session was evicted")
	}
}

func TestCapacityWhenAllBusy(t *testing.T) {
	m, _ := newTestManager(Options{MaxSessions: 1})
	a, _ := m.Create("a", data(), data())
	m.BeginQuery(a.ID)
	if _, err := m.Create("b", data(), data()); !errors.Is(err, ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	m, c := newTestManager(Options{})
	old, _ := m.Create("old", data(), data())
	busy, _ := m.Create("busy", data(), data())
	m.BeginQuery(busy.ID)
	c.advance(time.Hour)
	fresh, _ := m.Create("fresh", data(), data())

	removed := m.CleanupExpired(30 * time.Minute)
	if len(removed) != 1 || removed[0] != old.ID {
		t.Fatalf("removed = %v", removed)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Fatal(err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m := NewManager(Options{TTL: time.Nanosecond})
	m.Create("a", data(), data())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if m.Len() != 0 {
		t.Fatal("expired session not cleaned up")
	}
}
