package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_VisitorCheckedIn(t *testing.T) {
	eng := NewTemplateEngine()

	msg, err := eng.Render(TemplateVisitorCheckedIn, map[string]string{"visitor_name": "Ravi", "purpose": "Consultation"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Title != "Visitor: Ravi" {
		t.Errorf("title = %q", msg.Title)
	}
	if msg.Body != "Ravi is here for Consultation" {
		t.Errorf("body = %q", msg.Body)
	}
}

func TestTemplateEngine_DefaultPurpose(t *testing.T) {
	eng := NewTemplateEngine()
	msg, err := eng.Render(TemplateVisitorCheckedIn, map[string]string{"visitor_name": "Ravi", "purpose": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "Ravi is here for a visit" {
		t.Errorf("body = %q, want default purpose", msg.Body)
	}
}

func TestTemplateEngine_RegisterAndMissing(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{ID: "custom", Title: "Hi {{name}}", Body: "{{unknown}}"})

	msg, err := eng.Render("custom", map[string]string{"name": "Asha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Title != "Hi Asha" || msg.Body != "{{unknown}}" {
		t.Errorf("unexpected render %+v", msg)
	}

	if _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

// ---------------------------------------------------------------------------
// Manager Tests
// ---------------------------------------------------------------------------

func TestManager_SendRecordsOutcome(t *testing.T) {
	sender := &MockPushSender{}
	mgr := NewManager(sender, NewTemplateEngine(), zerolog.Nop())

	n, err := mgr.Send(context.Background(), "tok-1", "host-1", TemplateVisitorCheckedIn, map[string]string{"visitor_name": "Ravi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != StatusSent || n.SentAt == nil {
		t.Errorf("unexpected notification %+v", n)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].Token != "tok-1" {
		t.Fatalf("unexpected calls %+v", calls)
	}

	sender.ShouldFail = true
	sender.FailError = "unregistered token"
	n, err = mgr.Send(context.Background(), "tok-2", "host-2", TemplateVisitorCheckedIn, nil)
	if err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != StatusFailed || n.Error != "unregistered token" {
		t.Errorf("unexpected failed notification %+v", n)
	}

	stats := mgr.Stats()
	if stats[StatusSent] != 1 || stats[StatusFailed] != 1 {
		t.Errorf("unexpected stats %v", stats)
	}
	recent := mgr.Recent(10)
	if len(recent) != 2 || recent[0].UserID != "host-2" {
		t.Errorf("expected newest first, got %+v", recent)
	}
}

func TestManager_LogIsBounded(t *testing.T) {
	mgr := NewManager(&MockPushSender{}, NewTemplateEngine(), zerolog.Nop())
	mgr.logSize = 3
	for i := 0; i < 5; i++ {
		_, _ = mgr.Send(context.Background(), "tok", "u", TemplateEnquiryReminder, nil)
	}
	if len(mgr.Recent(10)) != 3 {
		t.Errorf("expected log trimmed to 3")
	}
	if mgr.Stats()[StatusSent] != 5 {
		t.Errorf("stats should count every send")
	}
}

func TestHTTPPushSender(t *testing.T) {
	var got gatewayRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.To == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPPushSender(srv.URL, "server-key", 0)
	err := s.SendPush(context.Background(), "device-1", Message{Title: "T", Body: "B", Data: map[string]string{"visitId": "v1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authHeader != "key=server-key" {
		t.Errorf("authorization = %q", authHeader)
	}
	if got.To != "device-1" || got.Notification.Title != "T" || got.Data["visitId"] != "v1" {
		t.Errorf("unexpected gateway body %+v", got)
	}

	if err := s.SendPush(context.Background(), "bad", Message{}); err == nil {
		t.Fatal("expected error on 400")
	}
}

// ---------------------------------------------------------------------------
// Handler Tests
// ---------------------------------------------------------------------------

func TestHandler_Stats(t *testing.T) {
	mgr := NewManager(&MockPushSender{}, NewTemplateEngine(), zerolog.Nop())
	_, _ = mgr.Send(context.Background(), "tok", "u", TemplateEnquiryReminder, nil)

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithSession(req.Context(), auth.Session{UserID: "a", Roles: []string{auth.RoleAdmin}})))
			return next(c)
		}
	})
	NewHandler(mgr).RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats[StatusSent] != 1 {
		t.Errorf("unexpected stats %v", stats)
	}
}
