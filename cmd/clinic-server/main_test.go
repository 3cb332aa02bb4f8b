package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/config"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/cache"
	"github.com/clinic/scheduler/internal/platform/events"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:                   "8000",
		Env:                    env,
		DatabaseURL:            "postgres://localhost/clinic",
		AuthSigningKey:         "test-signing-key",
		CORSOrigins:            []string{"http://localhost:3000"},
		RequestTimeout:         5 * time.Second,
		SlotCacheTTL:           30 * time.Second,
		DefaultConsultationFee: "500.00",
		ClinicTimezone:         "UTC",
		BodyLimit:              "1M",
	}
}

// testServer wires the real services over a nil pool. Only requests that are
// rejected before reaching storage may be sent to it.
func testServer(t *testing.T, env string) http.Handler {
	t.Helper()
	cfg := testConfig(env)
	svcs, err := buildServices(nil, cache.Nop{}, events.NopPublisher{}, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	return newServer(cfg, zerolog.Nop(), svcs, nil)
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()

	want := map[string][]string{
		"serve":     nil,
		"migrate":   {"up", "status"},
		"reminders": nil,
	}
	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered", name)
		}
		for _, sub := range subs {
			if c, _, err := root.Find([]string{name, sub}); err != nil || c.Name() != sub {
				t.Errorf("command %q %q not registered", name, sub)
			}
		}
	}

	reminders, _, _ := root.Find([]string{"reminders"})
	if reminders.Flags().Lookup("once") == nil {
		t.Error("reminders should accept --once")
	}
}

func TestBuildServices_RejectsBadFee(t *testing.T) {
	cfg := testConfig("development")
	cfg.DefaultConsultationFee = "free"

	if _, err := buildServices(nil, cache.Nop{}, events.NopPublisher{}, cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unparseable fee")
	}
}

func TestNewServer_Routes(t *testing.T) {
	cfg := testConfig("development")
	svcs, err := buildServices(nil, cache.Nop{}, events.NopPublisher{}, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	e := newServer(cfg, zerolog.Nop(), svcs, nil)

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	for _, route := range []string{
		"GET /health",
		"GET /api/v1/available-slots",
		"POST /api/v1/schedules",
		"GET /api/v1/schedules",
		"PUT /api/v1/schedules/:id",
		"DELETE /api/v1/schedules/:id",
		"POST /api/v1/appointments",
		"GET /api/v1/appointments",
		"GET /api/v1/appointments/:id",
		"PATCH /api/v1/appointments/:id",
		"POST /api/v1/appointments/:id/approve",
		"POST /api/v1/appointments/:id/decline",
		"POST /api/v1/appointments/:id/cancel",
		"POST /api/v1/appointments/:id/reschedule",
		"GET /api/v1/appointments/:id/prescription",
		"GET /api/v1/appointments/:id/payment",
		"POST /api/v1/prescriptions",
		"POST /api/v1/payments",
	} {
		if !registered[route] {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestNewServer_Health(t *testing.T) {
	h := testServer(t, "production")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("expected version in body, got %s", rec.Body.String())
	}
}

func TestNewServer_RequiresTokenOutsideDevelopment(t *testing.T) {
	h := testServer(t, "production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set(auth.DevUserHeader, auth.DevUserID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body apperr.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == nil || body.Error.Kind != apperr.KindState {
		t.Errorf("unexpected error body: %s", rec.Body.String())
	}
}

func TestNewServer_RoleGate(t *testing.T) {
	h := testServer(t, "development")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.DevUserHeader, "5d6c1f0a-8a4e-4c1b-9f7e-3b2a1c0d9e8f")
	req.Header.Set(auth.DevRoleHeader, string(auth.RolePatient))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for patient on schedules, got %d", rec.Code)
	}
}

func TestNewServer_ValidationBeforeStorage(t *testing.T) {
	h := testServer(t, "development")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/available-slots?doctor_id=nope&date=2026-11-02", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body apperr.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == nil || body.Error.Field != "doctor_id" {
		t.Errorf("expected doctor_id field error, got %s", rec.Body.String())
	}
}
