package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// ListByCreator returns the user's visits, newest first.
	ListByCreator(ctx context.Context, uid string) ([]*Record, error)
	ListAll(ctx context.Context) ([]*Record, error)
	Checkout(ctx context.Context, id, actor string, at time.Time) (*Record, error)
	// DeleteByPatients removes every visit of uid whose patient is in names.
	DeleteByPatients(ctx context.Context, uid string, names []string) (int, error)
}

type storeRepo struct {
	docs store.Repository
}

func NewRepo(docs store.Repository) Repository {
	return &storeRepo{docs: docs}
}

func (r *storeRepo) Create(ctx context.Context, rec *Record) error {
	doc, err := r.docs.Upsert(ctx, Collection, rec.ID, rec.fields(), false)
	if err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	rec.ID = doc.ID
	return nil
}

func (r *storeRepo) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := r.docs.Get(ctx, Collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return fromDoc(doc), nil
}

func (r *storeRepo) ListByCreator(ctx context.Context, uid string) ([]*Record, error) {
	return r.list(ctx, store.Eq("createdBy", uid))
}

func (r *storeRepo) ListAll(ctx context.Context) ([]*Record, error) {
	return r.list(ctx)
}

func (r *storeRepo) list(ctx context.Context, where ...store.Filter) ([]*Record, error) {
	docs, err := r.docs.Query(ctx, store.Query{
		Collection: Collection,
		Where:      where,
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	out := make([]*Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

func (r *storeRepo) Checkout(ctx context.Context, id, actor string, at time.Time) (*Record, error) {
	ts := store.Timestamp(at)
	doc, err := r.docs.Upsert(ctx, Collection, id, store.Fields{
		"status":       StatusCheckedOut,
		"checkOutTime": ts,
		"updatedAt":    ts,
		"updatedBy":    actor,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("checkout visit: %w", err)
	}
	return fromDoc(doc), nil
}

func (r *storeRepo) DeleteByPatients(ctx context.Context, uid string, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	docs, err := r.docs.Query(ctx, store.Query{
		Collection: Collection,
		Where:      []store.Filter{store.Eq("createdBy", uid), store.In("patientName", names...)},
	})
	if err != nil {
		return 0, fmt.Errorf("find visits to delete: %w", err)
	}
	for i, d := range docs {
		if err := r.docs.Delete(ctx, Collection, d.ID); err != nil {
			return i, fmt.Errorf("delete visit %s: %w", d.ID, err)
		}
	}
	return len(docs), nil
}
