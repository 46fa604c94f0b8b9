// Package timeline keeps the append-only event log nested under visits and
// enquiries. Events are written by trigger handlers and the reminder sweep,
// never by client requests.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/store"
)

const Collection = "timeline"

const (
	EventVisitorLoggedIn = "visitor_logged_in"
	EventStatusChanged   = "status_changed"
	EventEnquiryCreated  = "enquiry_created"
	EventReminderSent    = "reminder_sent"
)

// ActorSystem marks events not caused by a signed-in user.
const ActorSystem = "system"

type Event struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Actor     string    `json:"actor"`
	BranchID  string    `json:"branchId"`
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
}

func (e Event) fields() store.Fields {
	f := store.Fields{
		"event":     e.Event,
		"actor":     e.Actor,
		"branchId":  e.BranchID,
		"timestamp": store.Timestamp(e.Timestamp),
	}
	if e.From != "" {
		f["from"] = e.From
	}
	if e.To != "" {
		f["to"] = e.To
	}
	return f
}

func fromDoc(d *store.Document) Event {
	ts, _ := d.Fields.Time("timestamp")
	return Event{
		ID:        d.ID,
		Event:     d.Fields.String("event"),
		Actor:     d.Fields.String("actor"),
		BranchID:  d.Fields.String("branchId"),
		Timestamp: ts,
		From:      d.Fields.String("from"),
		To:        d.Fields.String("to"),
	}
}

type Writer struct {
	repo     store.Repository
	branchID string
	now      func() time.Time
}

func NewWriter(repo store.Repository, branchID string) *Writer {
	return &Writer{repo: repo, branchID: branchID, now: time.Now}
}

// Append adds e under parent/{parentID}/timeline. Empty Actor becomes
// ActorSystem and a zero Timestamp becomes now.
func (w *Writer) Append(ctx context.Context, parent, parentID string, e Event) (Event, error) {
	if e.Event == "" {
		return Event{}, fmt.Errorf("event is required")
	}
	if e.Actor == "" {
		e.Actor = ActorSystem
	}
	if e.BranchID == "" {
		e.BranchID = w.branchID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = w.now().UTC()
	}
	doc, err := w.repo.Upsert(ctx, store.SubCollection(parent, parentID, Collection), "", e.fields(), false)
	if err != nil {
		return Event{}, fmt.Errorf("append %s event to %s/%s: %w", e.Event, parent, parentID, err)
	}
	e.ID = doc.ID
	return e, nil
}

// List returns the events under parent/{parentID}, oldest first.
func (w *Writer) List(ctx context.Context, parent, parentID string) ([]Event, error) {
	docs, err := w.repo.Query(ctx, store.Query{
		Collection: store.SubCollection(parent, parentID, Collection),
		OrderBy:    "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("list timeline of %s/%s: %w", parent, parentID, err)
	}
	out := make([]Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

// Handler serves read-only timelines. The parent record's creator and staff
// may read it.
type Handler struct {
	repo   store.Repository
	writer *Writer
}

func NewHandler(repo store.Repository, writer *Writer) *Handler {
	return &Handler{repo: repo, writer: writer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/visits/:id/timeline", h.list("visits"))
	api.GET("/enquiries/:id/timeline", h.list("enquiries"))
}

func (h *Handler) list(parent string) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := auth.FromEcho(c)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		id := c.Param("id")

		doc, err := h.repo.Get(ctx, parent, id)
		if err != nil {
			if isNotFound(err) {
				return echo.NewHTTPError(http.StatusNotFound, "record not found")
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		if doc.Fields.String("createdBy") != s.UserID && !s.HasRole(auth.StaffRoles...) {
			return echo.NewHTTPError(http.StatusForbidden, "not your record")
		}

		events, err := h.writer.List(ctx, parent, id)
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"data": events})
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
