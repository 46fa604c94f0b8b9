package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/visitdesk/visitdesk/internal/platform/store"
)

var ErrNotFound = errors.New("profile not found")

type Repository interface {
	Get(ctx context.Context, uid string) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	// Update merges changes into the profile. A nil value removes the field.
	Update(ctx context.Context, uid string, changes store.Fields) (*Profile, error)
	ListByRoles(ctx context.Context, roles ...string) ([]*Profile, error)
}

type storeRepo struct {
	docs store.Repository
}

func NewRepo(docs store.Repository) Repository {
	return &storeRepo{docs: docs}
}

func (r *storeRepo) Get(ctx context.Context, uid string) (*Profile, error) {
	doc, err := r.docs.Get(ctx, Collection, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return fromDoc(doc), nil
}

func (r *storeRepo) Create(ctx context.Context, p *Profile) error {
	doc, err := r.docs.Upsert(ctx, Collection, p.ID, p.fields(), true)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	*p = *fromDoc(doc)
	return nil
}

func (r *storeRepo) Update(ctx context.Context, uid string, changes store.Fields) (*Profile, error) {
	doc, err := r.docs.Upsert(ctx, Collection, uid, changes, true)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return fromDoc(doc), nil
}

func (r *storeRepo) ListByRoles(ctx context.Context, roles ...string) ([]*Profile, error) {
	docs, err := r.docs.Query(ctx, store.Query{Collection: Collection, Where: []store.Filter{store.In("role", roles...)}})
	if err != nil {
		return nil, fmt.Errorf("list profiles by role: %w", err)
	}
	out := make([]*Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}
