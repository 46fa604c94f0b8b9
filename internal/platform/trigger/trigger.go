// Package trigger runs side effects after document writes. A Dispatcher wraps
// a store.Repository, compares each write against the stored state to decide
// whether it created, updated or deleted a document, and invokes the handlers
// registered for that collection.
//
// Handlers are best-effort: their errors and panics are logged and never
// reach the caller that performed the write.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

// ---------------------------------------------------------------------------
// Changes
// ---------------------------------------------------------------------------

// Kind classifies a write.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// Change describes one observed write. Before is nil for Created and After is
// nil for Deleted.
type Change struct {
	Kind       Kind
	Collection string
	ID         string
	Before     *store.Document
	After      *store.Document
}

// FieldChanged reports whether key differs between Before and After.
func (c Change) FieldChanged(key string) bool {
	var before, after any
	if c.Before != nil {
		before = c.Before.Fields[key]
	}
	if c.After != nil {
		after = c.After.Fields[key]
	}
	return fmt.Sprint(before) != fmt.Sprint(after)
}

// Handler reacts to a change.
type Handler func(ctx context.Context, ch Change) error

type registration struct {
	name string
	fn   Handler
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = 30 * time.Second

// Dispatcher holds handler registrations and runs them.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]map[Kind][]registration
	logger   zerolog.Logger
	async    bool
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. With async set, handlers run on their
// own goroutine after the write returns; call Wait to drain them.
func NewDispatcher(logger zerolog.Logger, async bool) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]map[Kind][]registration),
		logger:   logger,
		async:    async,
		timeout:  DefaultTimeout,
	}
}

// On registers fn under name for writes of kind to the top-level collection.
func (d *Dispatcher) On(collection string, kind Kind, name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byKind, ok := d.handlers[collection]
	if !ok {
		byKind = make(map[Kind][]registration)
		d.handlers[collection] = byKind
	}
	byKind[kind] = append(byKind[kind], registration{name: name, fn: fn})
}

// Wait blocks until every in-flight asynchronous handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) watches(collection string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[collection]
	return ok
}

func (d *Dispatcher) registrations(ch Change) []registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	regs := d.handlers[ch.Collection][ch.Kind]
	out := make([]registration, len(regs))
	copy(out, regs)
	return out
}

// Fire runs the handlers for ch. The caller's cancellation does not propagate
// into handlers.
func (d *Dispatcher) Fire(ctx context.Context, ch Change) {
	regs := d.registrations(ch)
	if len(regs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if !d.async {
		d.run(ctx, ch, regs)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, ch, regs)
	}()
}

func (d *Dispatcher) run(ctx context.Context, ch Change, regs []registration) {
	for _, r := range regs {
		d.invoke(ctx, ch, r)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, ch Change, r registration) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log := d.logger.With().
		Str("trigger", r.name).
		Str("collection", ch.Collection).
		Str("id", ch.ID).
		Str("kind", string(ch.Kind)).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("panic", fmt.Sprint(rec)).Msg("trigger panicked")
		}
	}()

	start := time.Now()
	if err := r.fn(ctx, ch); err != nil {
		log.Error().Err(err).Dur("latency", time.Since(start)).Msg("trigger failed")
		return
	}
	log.Debug().Dur("latency", time.Since(start)).Msg("trigger ran")
}

// ---------------------------------------------------------------------------
// Observed repository
// ---------------------------------------------------------------------------

type observed struct {
	store.Repository
	d *Dispatcher
}

// Observe returns a Repository that fires d's handlers after successful writes
// to watched collections. Handlers should write through repo itself, not the
// returned value, so their own writes do not fire further triggers.
func (d *Dispatcher) Observe(repo store.Repository) store.Repository {
	return &observed{Repository: repo, d: d}
}

func (o *observed) Upsert(ctx context.Context, collection, id string, fields store.Fields, merge bool) (*store.Document, error) {
	if !o.d.watches(collection) {
		return o.Repository.Upsert(ctx, collection, id, fields, merge)
	}

	var before *store.Document
	if id == "" {
		id = store.NewID()
	} else {
		doc, err := o.Repository.Get(ctx, collection, id)
		switch {
		case err == nil:
			before = doc
		case !errors.Is(err, store.ErrNotFound):
			// The prior state is unknown, so the kind of write cannot be
			// decided. Write without firing.
			o.d.logger.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("trigger skipped, prior state unreadable")
			return o.Repository.Upsert(ctx, collection, id, fields, merge)
		}
	}

	after, err := o.Repository.Upsert(ctx, collection, id, fields, merge)
	if err != nil {
		return nil, err
	}

	ch := Change{Kind: Updated, Collection: collection, ID: after.ID, Before: before, After: after}
	if before == nil {
		ch.Kind = Created
	}
	o.d.Fire(ctx, ch)
	return after, nil
}

func (o *observed) Delete(ctx context.Context, collection, id string) error {
	if !o.d.watches(collection) {
		return o.Repository.Delete(ctx, collection, id)
	}
	before, err := o.Repository.Get(ctx, collection, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.d.logger.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("trigger skipped, prior state unreadable")
		return o.Repository.Delete(ctx, collection, id)
	}
	if err := o.Repository.Delete(ctx, collection, id); err != nil {
		return err
	}
	if before != nil {
		o.d.Fire(ctx, Change{Kind: Deleted, Collection: collection, ID: id, Before: before})
	}
	return nil
}
