package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/visitdesk/visitdesk/internal/config"
	"github.com/visitdesk/visitdesk/internal/domain/roster"
	"github.com/visitdesk/visitdesk/internal/domain/timeline"
	"github.com/visitdesk/visitdesk/internal/domain/visit"
	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "development",
		StoreBackend:         config.StoreMemory,
		CORSOrigins:          []string{"*"},
		RateLimitRPS:         1000,
		RateLimitBurst:       1000,
		PhoneCountryCode:     "+91",
		Timezone:             "UTC",
		BranchID:             "main",
		ReceptionDeepLink:    "main://quick-checkin",
		ReceptionEmailDomain: "reception.example.com",
		ReminderInterval:     time.Hour,
		TriggersAsync:        false,
	}
}

type testServer struct {
	srv *httptest.Server
	mem *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig()
	mem := store.NewMemory()
	svc := newServices(cfg, zerolog.Nop(), mem)
	e := newEcho(cfg, zerolog.Nop(), svc, auth.JWTConfig{}, nil)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mem: mem}
}

type devUser struct {
	uid   string
	email string
	roles string
}

func visitorUser(uid string) devUser {
	return devUser{uid: uid, email: uid + "@mail.example.com", roles: "visitor"}
}

func (ts *testServer) do(t *testing.T, method, path, body string, u devUser) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dev-User", u.uid)
	req.Header.Set("X-Dev-Name", "Asha")
	req.Header.Set("X-Dev-Email", u.email)
	req.Header.Set("X-Dev-Roles", u.roles)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), version) {
		t.Errorf("unexpected /health: %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/health/db", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "memory") {
		t.Errorf("unexpected /health/db: %d %s", resp.StatusCode, body)
	}
}

func TestVisitFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPut, "/api/v1/profile",
		`{"displayName":"Asha","mobileNumber":"9876543210","defaultPatientName":"Meera"}`, visitorUser("u1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete profile: %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/v1/visits",
		`{"visitorMobile":"9876543210","patientName":"Ravi"}`, visitorUser("u1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("check in: %d %s", resp.StatusCode, body)
	}
	var rec visit.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode visit: %v", err)
	}
	if rec.VisitorMobile != "+91 9876543210" || rec.Status != visit.StatusCheckedIn {
		t.Errorf("unexpected visit: %+v", rec)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/v1/roster", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("roster: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Patients []roster.Entry `json:"patients"`
	}
	json.Unmarshal(body, &out)
	if len(out.Patients) != 2 || out.Patients[0].Name != "Meera" || out.Patients[1].Name != "Ravi" {
		t.Errorf("unexpected roster: %+v", out.Patients)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/v1/visits/"+rec.ID+"/timeline", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), timeline.EventVisitorLoggedIn) {
		t.Errorf("expected visitor_logged_in event: %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/v1/visits/"+rec.ID+"/checkout", "", visitorUser("u2"))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("checkout by another visitor: expected 403, got %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/v1/visits/"+rec.ID+"/checkout", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), visit.StatusCheckedOut) {
		t.Errorf("checkout: %d %s", resp.StatusCode, body)
	}
}

func TestStaffRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/reception-qr", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("visitor reception-qr: expected 403, got %d", resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodGet, "/api/v1/reception-qr", "", devUser{uid: "r1", email: "r1@mail.example.com", roles: auth.RoleReceptionist})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "main://quick-checkin") {
		t.Errorf("receptionist reception-qr: %d %s", resp.StatusCode, body)
	}

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/notifications/stats", "", devUser{uid: "r1", email: "r1@mail.example.com", roles: auth.RoleReceptionist})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("receptionist notification stats: expected 403, got %d", resp.StatusCode)
	}
}

func TestEnsureProfileOnFirstRequest(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/profile", "", visitorUser("fresh"))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"isProfileComplete":false`) {
		t.Errorf("profile: %d %s", resp.StatusCode, body)
	}
	if n := ts.mem.Len("users"); n != 1 {
		t.Errorf("expected 1 user document, got %d", n)
	}
}

func TestJWTConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = "secret"
	jc, err := jwtConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(jc.SigningKey) != "secret" || jc.PublicKey != nil {
		t.Errorf("unexpected config: %+v", jc)
	}

	cfg.AuthPublicKeyFile = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := jwtConfig(cfg); err == nil {
		t.Error("expected error for missing key file")
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	os.WriteFile(bad, []byte("not a key"), 0o600)
	cfg.AuthPublicKeyFile = bad
	if _, err := jwtConfig(cfg); err == nil {
		t.Error("expected error for invalid key file")
	}
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := testConfig()
	stack, err := openStore(t.Context(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stack.Close()
	if stack.pool != nil || stack.pinger() != nil {
		t.Error("memory store should not open a pool")
	}
}

func TestOpenStore_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "://nope"
	if _, err := openStore(t.Context(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for bad REDIS_URL")
	}
}

func TestProfileRoleGrantsStaffRoutes(t *testing.T) {
	ts := newTestServer(t)
	desk := devUser{uid: "desk", email: "desk@reception.example.com", roles: "visitor"}

	resp, body := ts.do(t, http.MethodGet, "/api/v1/profile", "", desk)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"role":"receptionist"`) {
		t.Fatalf("profile: %d %s", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/v1/reception-qr", "", desk)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("receptionist by profile role: expected 200, got %d %s", resp.StatusCode, body)
	}
}

func TestUnknownAPIPathIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/no-such-route", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d %s", resp.StatusCode, body)
	}
}

func TestRosterHidesPlaceholderVisits(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/visits/quick", `{}`, visitorUser("u1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("quick check-in: %d %s", resp.StatusCode, body)
	}
	var rec visit.Record
	json.Unmarshal(body, &rec)
	if rec.PatientName != visit.PlaceholderPatient {
		t.Fatalf("expected placeholder patient, got %+v", rec)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/v1/roster", "", visitorUser("u1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("roster: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Patients []roster.Entry `json:"patients"`
	}
	json.Unmarshal(body, &out)
	if len(out.Patients) != 0 {
		t.Errorf("expected empty roster, got %+v", out.Patients)
	}
}
