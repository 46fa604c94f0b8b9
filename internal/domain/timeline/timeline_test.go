package timeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/store"
)

func TestAppend_Defaults(t *testing.T) {
	repo := store.NewMemory()
	w := NewWriter(repo, "main")
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	e, err := w.Append(context.Background(), "visits", "v1", Event{Event: EventVisitorLoggedIn})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if e.Actor != ActorSystem {
		t.Errorf("expected actor %q, got %q", ActorSystem, e.Actor)
	}
	if e.BranchID != "main" {
		t.Errorf("expected branch main, got %q", e.BranchID)
	}
	if !e.Timestamp.Equal(fixed) {
		t.Errorf("expected timestamp %v, got %v", fixed, e.Timestamp)
	}
	if n := repo.Len("visits/v1/timeline"); n != 1 {
		t.Errorf("expected 1 stored event, got %d", n)
	}
}

func TestAppend_RequiresEvent(t *testing.T) {
	w := NewWriter(store.NewMemory(), "main")
	if _, err := w.Append(context.Background(), "visits", "v1", Event{}); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestList_OldestFirst(t *testing.T) {
	w := NewWriter(store.NewMemory(), "main")
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	w.Append(ctx, "enquiries", "e1", Event{Event: EventReminderSent, Timestamp: base.Add(2 * time.Hour)})
	w.Append(ctx, "enquiries", "e1", Event{Event: EventEnquiryCreated, Timestamp: base})
	w.Append(ctx, "enquiries", "e1", Event{Event: EventStatusChanged, From: "pending", To: "resolved", Timestamp: base.Add(time.Hour)})

	events, err := w.List(ctx, "enquiries", "e1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{EventEnquiryCreated, EventStatusChanged, EventReminderSent}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.Event != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], e.Event)
		}
	}
	if events[1].From != "pending" || events[1].To != "resolved" {
		t.Errorf("expected from/to preserved, got %q -> %q", events[1].From, events[1].To)
	}
}

func newTimelineRequest(t *testing.T, h *Handler, s auth.Session, id string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/visits/"+id+"/timeline", nil)
	req = req.WithContext(auth.WithSession(req.Context(), s))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return rec, h.list("visits")(c)
}

func TestHandler_Access(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()
	repo.Upsert(ctx, "visits", "v1", store.Fields{"createdBy": "alice"}, false)
	w := NewWriter(repo, "main")
	w.Append(ctx, "visits", "v1", Event{Event: EventVisitorLoggedIn, Actor: "alice"})
	h := NewHandler(repo, w)

	rec, err := newTimelineRequest(t, h, auth.Session{UserID: "alice"}, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	if _, err := newTimelineRequest(t, h, auth.Session{UserID: "desk", Roles: []string{auth.RoleReceptionist}}, "v1"); err != nil {
		t.Errorf("expected staff access, got %v", err)
	}

	_, err = newTimelineRequest(t, h, auth.Session{UserID: "bob", Roles: []string{auth.RoleHost}}, "v1")
	expectHTTPStatus(t, err, http.StatusForbidden)

	_, err = newTimelineRequest(t, h, auth.Session{UserID: "alice"}, "missing")
	expectHTTPStatus(t, err, http.StatusNotFound)

	repo.SetFailure(errors.New("backend down"))
	_, err = newTimelineRequest(t, h, auth.Session{UserID: "alice"}, "v1")
	expectHTTPStatus(t, err, http.StatusServiceUnavailable)
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
}
