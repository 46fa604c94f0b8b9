// Package store provides a schemaless document repository. Services address
// records by collection path and id, and every backend (PostgreSQL JSONB, a
// REST document gateway, or process memory) implements the same Repository
// contract. Fallback, caching and change observation are layered on top as
// decorators.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrNotFound is returned by Get when no document exists at the address.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidQuery is returned for malformed filters or collection paths.
	ErrInvalidQuery = errors.New("invalid query")
)

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// TimeLayout is the storage form of every timestamp field. It is fixed width
// and UTC, so string ordering in any backend matches chronological ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp formats t for storage.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTimestamp accepts the storage layout and RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Fields is the flat key/value body of a document. A nil value passed to a
// merge Upsert removes the key.
type Fields map[string]any

// String returns the string stored at key, or "" if absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Bool returns the bool stored at key, or false.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Time returns the timestamp stored at key. ok is false when the key is
// missing or does not parse.
func (f Fields) Time(key string) (t time.Time, ok bool) {
	s := f.String(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Documents and queries
// ---------------------------------------------------------------------------

// Document is a stored record.
type Document struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Fields     Fields    `json:"fields"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

// Filter restricts a query to documents whose Field matches Value. For OpIn,
// Value must be a []string.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// In builds a set-membership filter.
func In(field string, values ...string) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Query selects documents from a single collection. Documents missing the
// OrderBy field sort first when Descending and last otherwise. Limit <= 0
// means no limit.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

func (q Query) validate() error {
	if err := validCollection(q.Collection); err != nil {
		return err
	}
	for _, f := range q.Where {
		if f.Field == "" {
			return errors.Join(ErrInvalidQuery, errors.New("filter field is empty"))
		}
		switch f.Op {
		case OpEqual:
		case OpIn:
			if _, ok := f.Value.([]string); !ok {
				return errors.Join(ErrInvalidQuery, errors.New("in filter needs []string"))
			}
		default:
			return errors.Join(ErrInvalidQuery, errors.New("unsupported operator "+string(f.Op)))
		}
	}
	return nil
}

// emptyIn reports whether the query contains an in-filter with no values,
// which can never match.
func (q Query) emptyIn() bool {
	for _, f := range q.Where {
		if vals, ok := f.Value.([]string); ok && f.Op == OpIn && len(vals) == 0 {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// Repository is the storage contract shared by every backend.
//
// Upsert with an empty id creates a new document with a generated id. With
// merge set, fields are merged into any existing document; otherwise the
// document body is replaced. Delete of a missing document is not an error.
type Repository interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
}

// NewID returns a time-ordered document id.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SubCollection returns the path of a collection nested under a document,
// e.g. SubCollection("visits", "abc", "timeline") = "visits/abc/timeline".
func SubCollection(parent, id, name string) string {
	return parent + "/" + id + "/" + name
}

// Parent splits a nested collection path into its parent collection and
// document id. ok is false for top-level collections.
func Parent(collection string) (parent, id string, ok bool) {
	parts := strings.Split(collection, "/")
	if len(parts) < 3 {
		return "", "", false
	}
	return strings.Join(parts[:len(parts)-2], "/"), parts[len(parts)-2], true
}

// validCollection enforces an odd number of non-empty path segments.
func validCollection(collection string) error {
	if collection == "" {
		return errors.Join(ErrInvalidQuery, errors.New("collection is empty"))
	}
	parts := strings.Split(collection, "/")
	if len(parts)%2 == 0 {
		return errors.Join(ErrInvalidQuery, errors.New("collection path has an even number of segments: "+collection))
	}
	for _, p := range parts {
		if p == "" {
			return errors.Join(ErrInvalidQuery, errors.New("collection path has an empty segment: "+collection))
		}
	}
	return nil
}

// prepareFields drops nil values for a replacing write.
func prepareFields(fields Fields, merge bool) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if v == nil && !merge {
			continue
		}
		out[k] = v
	}
	return out
}
