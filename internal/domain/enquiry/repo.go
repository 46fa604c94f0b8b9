package enquiry

import (
	"context"
	"errors"
	"fmt"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// ListRecent returns the newest enquiries, optionally only those of createdBy.
	ListRecent(ctx context.Context, createdBy string, limit int) ([]*Record, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]*Record, error)
	Update(ctx context.Context, id string, changes store.Fields) (*Record, error)
}

type storeRepo struct {
	docs store.Repository
}

func NewRepo(docs store.Repository) Repository {
	return &storeRepo{docs: docs}
}

func (r *storeRepo) Create(ctx context.Context, rec *Record) error {
	doc, err := r.docs.Upsert(ctx, Collection, "", rec.fields(), false)
	if err != nil {
		return fmt.Errorf("create enquiry: %w", err)
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
		return nil, fmt.Errorf("get enquiry: %w", err)
	}
	return fromDoc(doc), nil
}

func (r *storeRepo) ListRecent(ctx context.Context, createdBy string, limit int) ([]*Record, error) {
	q := store.Query{Collection: Collection, OrderBy: "createdAt", Descending: true, Limit: limit}
	if createdBy != "" {
		q.Where = []store.Filter{store.Eq("createdBy", createdBy)}
	}
	return r.query(ctx, q)
}

func (r *storeRepo) ListByStatus(ctx context.Context, statuses ...string) ([]*Record, error) {
	return r.query(ctx, store.Query{
		Collection: Collection,
		Where:      []store.Filter{store.In("status", statuses...)},
		OrderBy:    "createdAt",
	})
}

func (r *storeRepo) query(ctx context.Context, q store.Query) ([]*Record, error) {
	docs, err := r.docs.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list enquiries: %w", err)
	}
	out := make([]*Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

func (r *storeRepo) Update(ctx context.Context, id string, changes store.Fields) (*Record, error) {
	doc, err := r.docs.Upsert(ctx, Collection, id, changes, true)
	if err != nil {
		return nil, fmt.Errorf("update enquiry: %w", err)
	}
	return fromDoc(doc), nil
}
