// Package notification sends push messages to device tokens, with template
// rendering, an in-memory delivery log, and an admin stats endpoint.
//
// Delivery is best-effort. Callers in trigger handlers log a failed send and
// carry on; nothing is queued for redelivery.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Messages and senders
// ---------------------------------------------------------------------------

// Message is the title/body/data triple delivered to a device.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushSender delivers a message to one device token.
type PushSender interface {
	SendPush(ctx context.Context, token string, msg Message) error
}

// HTTPPushSender posts messages to a push gateway:
//
//	POST {url}  {"to": token, "notification": {"title", "body"}, "data": {...}}
type HTTPPushSender struct {
	client *resty.Client
	url    string
}

func NewHTTPPushSender(url, serverKey string, timeout time.Duration) *HTTPPushSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if serverKey != "" {
		client.SetHeader("Authorization", "key="+serverKey)
	}
	return &HTTPPushSender{client: client, url: url}
}

type gatewayRequest struct {
	To           string            `json:"to"`
	Notification gatewayBody       `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type gatewayBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *HTTPPushSender) SendPush(ctx context.Context, token string, msg Message) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(gatewayRequest{To: token, Notification: gatewayBody{Title: msg.Title, Body: msg.Body}, Data: msg.Data}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway: status %d", resp.StatusCode())
	}
	return nil
}

// LogPushSender writes pushes to the log instead of sending them. Used when
// no gateway is configured.
type LogPushSender struct {
	Logger zerolog.Logger
}

func (s LogPushSender) SendPush(_ context.Context, token string, msg Message) error {
	s.Logger.Info().Str("token", redact(token)).Str("title", msg.Title).Str("body", msg.Body).Msg("push (not sent, no gateway)")
	return nil
}

func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// ---------------------------------------------------------------------------
// Mock sender (test double)
// ---------------------------------------------------------------------------

// PushCall records a single call to SendPush.
type PushCall struct {
	Token   string
	Message Message
}

// MockPushSender is a test double for PushSender.
type MockPushSender struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
}

func (m *MockPushSender) SendPush(_ context.Context, token string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{Token: token, Message: msg})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded push calls.
func (m *MockPushSender) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

const (
	TemplateVisitorCheckedIn = "visitor-checked-in"
	TemplateEnquiryReminder  = "enquiry-reminder"
)

// Template defines a reusable push message. Defaults fill placeholders the
// caller leaves empty.
type Template struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Defaults map[string]string `json:"defaults,omitempty"`
}

// TemplateEngine manages templates and renders them with {{key}} replacement.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:       TemplateVisitorCheckedIn,
			Name:     "Visitor Checked In",
			Title:    "Visitor: {{visitor_name}}",
			Body:     "{{visitor_name}} is here for {{purpose}}",
			Defaults: map[string]string{"purpose": "a visit"},
		},
		{
			ID:       TemplateEnquiryReminder,
			Name:     "Enquiry Reminder",
			Title:    "Enquiry reminder",
			Body:     "Enquiry from {{enquirer_name}} about {{patient_name}} is still {{status}}.",
			Defaults: map[string]string{"enquirer_name": "a visitor", "patient_name": "a patient", "status": "pending"},
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and substitutes data, then defaults, into
// its title and body. Unknown placeholders are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Message, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("template %q not found", templateID)
	}

	title, body := t.Title, t.Body
	apply := func(k, v string) {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	for k, v := range data {
		if v != "" {
			apply(k, v)
		}
	}
	for k, v := range t.Defaults {
		apply(k, v)
	}
	return Message{Title: title, Body: body, Data: data}, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one delivery attempt kept in the log.
type Notification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId,omitempty"`
	TemplateID string     `json:"templateId,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
}

// DefaultLogSize is how many deliveries the manager remembers.
const DefaultLogSize = 500

// Manager renders, sends and records push notifications.
type Manager struct {
	sender    PushSender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu      sync.RWMutex
	log     []*Notification
	logSize int
	counts  map[string]int
}

func NewManager(sender PushSender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	return &Manager{
		sender:    sender,
		templates: tpl,
		logger:    logger,
		logSize:   DefaultLogSize,
		counts:    make(map[string]int),
	}
}

// Send renders templateID with data and pushes it to token on behalf of
// userID. The delivery is recorded whether or not it succeeded.
func (m *Manager) Send(ctx context.Context, token, userID, templateID string, data map[string]string) (*Notification, error) {
	msg, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: templateID,
		Title:      msg.Title,
		Body:       msg.Body,
		CreatedAt:  time.Now().UTC(),
	}

	sendErr := m.sender.SendPush(ctx, token, msg)
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
		m.logger.Warn().Err(sendErr).Str("user_id", userID).Str("template", templateID).Msg("push failed")
	} else {
		n.Status = StatusSent
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}
	m.record(n)
	return n, sendErr
}

func (m *Manager) record(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[n.Status]++
	m.log = append(m.log, n)
	if len(m.log) > m.logSize {
		m.log = m.log[len(m.log)-m.logSize:]
	}
}

// Stats returns lifetime delivery counts by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Recent returns up to limit deliveries, newest first.
func (m *Manager) Recent(limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Notification, 0, limit)
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.log[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/notifications", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats())
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": h.manager.Recent(50)})
}
