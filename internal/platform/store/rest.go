package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RESTConfig configures the REST document gateway adapter.
type RESTConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
}

// REST talks to a JSON document gateway:
//
//	GET    /v1/{collection}/{id}
//	PUT    /v1/{collection}/{id}?merge=true|false   {"fields": {...}}
//	DELETE /v1/{collection}/{id}
//	POST   /v1/{collection}:query                   {"where": [...], "orderBy": ...}
type REST struct {
	client *resty.Client
}

func NewREST(cfg RESTConfig) *REST {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &REST{client: client}
}

type restDocument struct {
	ID         string    `json:"id"`
	Fields     Fields    `json:"fields"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

func (d restDocument) toDocument(collection string) *Document {
	if d.Fields == nil {
		d.Fields = Fields{}
	}
	return &Document{
		ID:         d.ID,
		Collection: collection,
		Fields:     d.Fields,
		CreateTime: d.CreateTime,
		UpdateTime: d.UpdateTime,
	}
}

type restQuery struct {
	Where      []Filter `json:"where,omitempty"`
	OrderBy    string   `json:"orderBy,omitempty"`
	Descending bool     `json:"descending,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type restQueryResult struct {
	Documents []restDocument `json:"documents"`
}

func (s *REST) Get(ctx context.Context, collection, id string) (*Document, error) {
	var out restDocument
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(docPath(collection, id))
	if err != nil {
		return nil, fmt.Errorf("rest get %s/%s: %w", collection, id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest get %s/%s: status %d", collection, id, resp.StatusCode())
	}
	return out.toDocument(collection), nil
}

func (s *REST) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if q.emptyIn() {
		return []*Document{}, nil
	}
	var out restQueryResult
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(restQuery{Where: q.Where, OrderBy: q.OrderBy, Descending: q.Descending, Limit: q.Limit}).
		SetResult(&out).
		Post("/v1/" + escapeCollection(q.Collection) + ":query")
	if err != nil {
		return nil, fmt.Errorf("rest query %s: %w", q.Collection, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest query %s: status %d", q.Collection, resp.StatusCode())
	}

	docs := make([]*Document, 0, len(out.Documents))
	for _, d := range out.Documents {
		docs = append(docs, d.toDocument(q.Collection))
	}
	return docs, nil
}

func (s *REST) Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) (*Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if id == "" {
		id = NewID()
	}
	var out restDocument
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("merge", strconv.FormatBool(merge)).
		SetBody(map[string]any{"fields": prepareFields(fields, merge)}).
		SetResult(&out).
		Put(docPath(collection, id))
	if err != nil {
		return nil, fmt.Errorf("rest upsert %s/%s: %w", collection, id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rest upsert %s/%s: status %d", collection, id, resp.StatusCode())
	}
	if out.ID == "" {
		out.ID = id
	}
	return out.toDocument(collection), nil
}

func (s *REST) Delete(ctx context.Context, collection, id string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete(docPath(collection, id))
	if err != nil {
		return fmt.Errorf("rest delete %s/%s: %w", collection, id, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("rest delete %s/%s: status %d", collection, id, resp.StatusCode())
	}
	return nil
}

func docPath(collection, id string) string {
	return "/v1/" + escapeCollection(collection) + "/" + url.PathEscape(id)
}

func escapeCollection(collection string) string {
	parts := strings.Split(collection, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
