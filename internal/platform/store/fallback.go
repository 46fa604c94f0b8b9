package store

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

type fallback struct {
	primary   Repository
	secondary Repository
	logger    zerolog.Logger
}

// WithFallback returns a Repository that sends every call to primary and
// repeats it against secondary when primary fails for any reason other than
// ErrNotFound, an invalid query, or a cancelled context. A nil secondary
// returns primary unchanged.
func WithFallback(primary, secondary Repository, logger zerolog.Logger) Repository {
	if secondary == nil {
		return primary
	}
	return &fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *fallback) retry(ctx context.Context, op, collection string, err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidQuery) || ctx.Err() != nil {
		return false
	}
	f.logger.Warn().Err(err).Str("op", op).Str("collection", collection).Msg("primary store failed, using fallback")
	return true
}

func (f *fallback) Get(ctx context.Context, collection, id string) (*Document, error) {
	doc, err := f.primary.Get(ctx, collection, id)
	if f.retry(ctx, "get", collection, err) {
		return f.secondary.Get(ctx, collection, id)
	}
	return doc, err
}

func (f *fallback) Query(ctx context.Context, q Query) ([]*Document, error) {
	docs, err := f.primary.Query(ctx, q)
	if f.retry(ctx, "query", q.Collection, err) {
		return f.secondary.Query(ctx, q)
	}
	return docs, err
}

func (f *fallback) Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) (*Document, error) {
	// Fix the id up front so a create that reaches both backends lands on the
	// same document.
	if id == "" {
		id = NewID()
	}
	doc, err := f.primary.Upsert(ctx, collection, id, fields, merge)
	if f.retry(ctx, "upsert", collection, err) {
		return f.secondary.Upsert(ctx, collection, id, fields, merge)
	}
	return doc, err
}

func (f *fallback) Delete(ctx context.Context, collection, id string) error {
	err := f.primary.Delete(ctx, collection, id)
	if f.retry(ctx, "delete", collection, err) {
		return f.secondary.Delete(ctx, collection, id)
	}
	return err
}
