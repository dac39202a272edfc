package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

type fakeDurable struct {
	mu      sync.Mutex
	rows    map[string]Entry
	saves   int
	purged  int
	saveErr error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{rows: make(map[string]Entry)}
}

func (f *fakeDurable) Save(ctx context.Context, entries []Entry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	n := 0
	for _, e := range entries {
		if _, ok := f.rows[e.ID]; ok {
			continue
		}
		f.rows[e.ID] = e
		n++
	}
	return n, nil
}

func (f *fakeDurable) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, e := range f.rows {
		if e.Expired(now) {
			delete(f.rows, id)
			n++
		}
	}
	f.purged += n
	return n, nil
}

func TestReconcilerSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	eph := NewInMemoryStore(WithClock(clock.Now), WithTTL(0))
	dur := newFakeDurable()
	ctx := context.Background()

	_ = eph.Append(ctx, "c1", NewEntry("c1", llmx.RoleUser, "a", clock.Now(), time.Minute))
	_ = eph.Append(ctx, "c2",
		NewEntry("c2", llmx.RoleUser, "b", clock.Now(), 0),
		NewEntry("c2", llmx.RoleAssistant, "c", clock.Now(), 0),
	)

	r, err := NewReconciler(eph, dur, WithReconcilerLogger(zerolog.Nop()), WithReconcilerClock(clock.Now))
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}

	first, err := r.SyncEphemeralWithDurable(ctx)
	if err != nil {
		t.Fatalf("SyncEphemeralWithDurable() error = %v", err)
	}
	if first.Conversations != 2 || first.Copied != 3 || first.Skipped != 0 {
		t.Fatalf("first sync = %+v", first)
	}

	second, err := r.SyncEphemeralWithDurable(ctx)
	if err != nil {
		t.Fatalf("second SyncEphemeralWithDurable() error = %v", err)
	}
	if second.Copied != 0 || second.Skipped != 3 || len(dur.rows) != 3 {
		t.Fatalf("second sync = %+v rows = %d", second, len(dur.rows))
	}
}

func TestReconcilerPurgeExpired(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	eph := NewInMemoryStore(WithClock(clock.Now), WithTTL(0))
	dur := newFakeDurable()
	ctx := context.Background()

	_ = eph.Append(ctx, "c1",
		NewEntry("c1", llmx.RoleUser, "old", clock.Now(), time.Minute),
		NewEntry("c1", llmx.RoleAssistant, "keep", clock.Now(), 0),
	)
	r, _ := NewReconciler(eph, dur, WithReconcilerLogger(zerolog.Nop()), WithReconcilerClock(clock.Now))
	if _, err := r.SyncEphemeralWithDurable(ctx); err != nil {
		t.Fatalf("SyncEphemeralWithDurable() error = %v", err)
	}

	clock.Advance(2 * time.Minute)
	e, d, err := r.PurgeExpired(ctx)
	if err != nil || e != 1 || d != 1 {
		t.Fatalf("PurgeExpired() = %d, %d, %v", e, d, err)
	}
	if got, _ := eph.Window(ctx, "c1"); len(got) != 1 || got[0].Content != "keep" {
		t.Fatalf("Window() = %+v", got)
	}
}

func TestReconcilerSyncStopsOnDurableError(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	eph := NewInMemoryStore(WithClock(clock.Now))
	_ = eph.Append(context.Background(), "c1", NewEntry("c1", llmx.RoleUser, "a", clock.Now(), 0))
	dur := newFakeDurable()
	dur.saveErr = errors.New("connection refused")

	r, _ := NewReconciler(eph, dur, WithReconcilerLogger(zerolog.Nop()))
	if _, err := r.SyncEphemeralWithDurable(context.Background()); !errors.Is(err, dur.saveErr) {
		t.Fatalf("SyncEphemeralWithDurable() error = %v", err)
	}
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	eph := NewInMemoryStore(WithClock(clock.Now))
	_ = eph.Append(context.Background(), "c1", NewEntry("c1", llmx.RoleUser, "a", clock.Now(), 0))
	dur := newFakeDurable()
	r, _ := NewReconciler(eph, dur, WithReconcilerLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for {
		dur.mu.Lock()
		saves := dur.saves
		dur.mu.Unlock()
		if saves >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Run() made %d passes, want at least 2", saves)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if len(dur.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(dur.rows))
	}
}
