package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Repository used by tests and STORE_BACKEND=memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]*Document
	now  func() time.Time

	// fail, when set, is returned by every call. Tests use it to simulate an
	// unreachable backend.
	fail error
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]map[string]*Document),
		now:  time.Now,
	}
}

// SetFailure makes every subsequent call return err. Pass nil to recover.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Len returns the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}

func (m *Memory) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return copyDoc(doc), nil
}

func (m *Memory) Query(_ context.Context, q Query) ([]*Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	if q.emptyIn() {
		return []*Document{}, nil
	}

	out := []*Document{}
	for _, doc := range m.docs[q.Collection] {
		if matchesAll(doc.Fields, q.Where) {
			out = append(out, copyDoc(doc))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			a, aok := out[i].Fields[q.OrderBy]
			b, bok := out[j].Fields[q.OrderBy]
			switch {
			case aok != bok:
				// missing values sort first descending, last ascending
				if q.Descending {
					return !aok
				}
				return aok
			case aok && bok:
				as, bs := fmt.Sprint(a), fmt.Sprint(b)
				if as != bs {
					if q.Descending {
						return as > bs
					}
					return as < bs
				}
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, collection, id string, fields Fields, merge bool) (*Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	if id == "" {
		id = NewID()
	}
	now := m.now().UTC()

	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string]*Document)
		m.docs[collection] = coll
	}

	existing, exists := coll[id]
	doc := &Document{ID: id, Collection: collection, CreateTime: now, UpdateTime: now}
	if exists {
		doc.CreateTime = existing.CreateTime
	}
	if exists && merge {
		doc.Fields = existing.Fields.Clone()
	} else {
		doc.Fields = Fields{}
	}
	for k, v := range prepareFields(fields, merge) {
		if v == nil {
			delete(doc.Fields, k)
			continue
		}
		doc.Fields[k] = v
	}
	coll[id] = doc
	return copyDoc(doc), nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.docs[collection], id)
	return nil
}

func copyDoc(d *Document) *Document {
	c := *d
	c.Fields = d.Fields.Clone()
	return &c
}

func matchesAll(fields Fields, where []Filter) bool {
	for _, f := range where {
		v, ok := fields[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(v, f.Value) {
				return false
			}
		case OpIn:
			s, isString := v.(string)
			if !isString || !contains(f.Value.([]string), s) {
				return false
			}
		}
	}
	return true
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
