package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) handle(_ context.Context, ch Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
	return nil
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

func TestObserve_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(zerolog.Nop(), false)
	rec := &recorder{}
	d.On("visits", Created, "rec", rec.handle)
	d.On("visits", Updated, "rec", rec.handle)
	d.On("visits", Deleted, "rec", rec.handle)
	repo := d.Observe(store.NewMemory())

	doc, err := repo.Upsert(ctx, "visits", "", store.Fields{"status": "checked_in"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Upsert(ctx, "visits", doc.ID, store.Fields{"status": "checked_out"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Delete(ctx, "visits", doc.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := rec.kinds()
	if len(kinds) != 3 || kinds[0] != Created || kinds[1] != Updated || kinds[2] != Deleted {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	upd := rec.changes[1]
	if upd.Before.Fields.String("status") != "checked_in" || upd.After.Fields.String("status") != "checked_out" {
		t.Error("update change should carry before and after state")
	}
	if !upd.FieldChanged("status") {
		t.Error("FieldChanged should report status change")
	}
}

func TestObserve_UpsertWithNewIDIsCreate(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), false)
	rec := &recorder{}
	d.On("users", Created, "rec", rec.handle)
	repo := d.Observe(store.NewMemory())

	if _, err := repo.Upsert(context.Background(), "users", "u1", store.Fields{"email": "a@b.c"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.kinds()) != 1 {
		t.Fatalf("expected one created change, got %v", rec.kinds())
	}
}

func TestObserve_UnwatchedCollection(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), false)
	rec := &recorder{}
	d.On("visits", Created, "rec", rec.handle)
	repo := d.Observe(store.NewMemory())

	_, _ = repo.Upsert(context.Background(), store.SubCollection("visits", "v1", "timeline"), "", store.Fields{}, false)
	if len(rec.kinds()) != 0 {
		t.Fatal("subcollection writes must not fire visit triggers")
	}
}

func TestObserve_FailedWriteDoesNotFire(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), false)
	rec := &recorder{}
	d.On("visits", Created, "rec", rec.handle)
	mem := store.NewMemory()
	mem.SetFailure(errors.New("down"))
	repo := d.Observe(mem)

	if _, err := repo.Upsert(context.Background(), "visits", "", store.Fields{}, false); err == nil {
		t.Fatal("expected write error")
	}
	if len(rec.kinds()) != 0 {
		t.Fatal("failed write must not fire")
	}
}

func TestDispatcher_HandlerErrorsAndPanicsSwallowed(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), false)
	var ran atomic.Int32
	d.On("visits", Created, "fails", func(context.Context, Change) error {
		ran.Add(1)
		return errors.New("push gateway down")
	})
	d.On("visits", Created, "panics", func(context.Context, Change) error {
		ran.Add(1)
		panic("boom")
	})
	d.On("visits", Created, "after", func(context.Context, Change) error {
		ran.Add(1)
		return nil
	})
	repo := d.Observe(store.NewMemory())

	if _, err := repo.Upsert(context.Background(), "visits", "", store.Fields{}, false); err != nil {
		t.Fatalf("handler failure leaked to caller: %v", err)
	}
	if ran.Load() != 3 {
		t.Errorf("expected all three handlers to run, got %d", ran.Load())
	}
}

func TestDispatcher_AsyncWait(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), true)
	var ran atomic.Bool
	d.On("visits", Created, "slow", func(context.Context, Change) error {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
		return nil
	})
	repo := d.Observe(store.NewMemory())

	_, _ = repo.Upsert(context.Background(), "visits", "", store.Fields{}, false)
	d.Wait()
	if !ran.Load() {
		t.Fatal("expected async handler to finish before Wait returns")
	}
}

func TestDispatcher_HandlerContextOutlivesCaller(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), false)
	var handlerErr error
	d.On("visits", Created, "ctx", func(ctx context.Context, _ Change) error {
		handlerErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.Fire(ctx, Change{Kind: Created, Collection: "visits", ID: "v1"})
	cancel()
	d.Fire(ctx, Change{Kind: Created, Collection: "visits", ID: "v2"})
	if handlerErr != nil {
		t.Fatalf("handler saw cancelled context: %v", handlerErr)
	}
}

func TestScheduler_RunsAndStops(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	var runs atomic.Int32
	s.Every("tick", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	s.Wait()

	if runs.Load() == 0 {
		t.Fatal("expected job to run at least once")
	}
}
