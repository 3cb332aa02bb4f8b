package appointment

import (
	"errors"
	"testing"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
)

var allStatuses = []Status{StatusPending, StatusScheduled, StatusRescheduled, StatusCompleted, StatusCancelled, StatusDeclined}

func TestAllowed_Exhaustive(t *testing.T) {
	type key struct {
		role     auth.Role
		from, to Status
	}
	legal := map[key]bool{
		{auth.RoleDoctor, StatusPending, StatusScheduled}:       true,
		{auth.RoleDoctor, StatusPending, StatusDeclined}:        true,
		{auth.RoleDoctor, StatusScheduled, StatusRescheduled}:   true,
		{auth.RoleDoctor, StatusScheduled, StatusCompleted}:     true,
		{auth.RoleDoctor, StatusScheduled, StatusCancelled}:     true,
		{auth.RoleDoctor, StatusRescheduled, StatusRescheduled}: true,
		{auth.RoleDoctor, StatusRescheduled, StatusCompleted}:   true,
		{auth.RoleDoctor, StatusRescheduled, StatusCancelled}:   true,
		{auth.RolePatient, StatusScheduled, StatusCancelled}:    true,
	}

	n := 0
	for _, role := range []auth.Role{auth.RoleDoctor, auth.RolePatient, auth.RoleAdmin} {
		for _, from := range allStatuses {
			for _, to := range allStatuses {
				want := legal[key{role, from, to}]
				if got := Allowed(role, from, to); got != want {
					t.Errorf("Allowed(%s, %s, %s) = %v, want %v", role, from, to, got, want)
				}
				err := Authorize(role, from, to)
				if want && err != nil {
					t.Errorf("Authorize(%s, %s, %s) = %v", role, from, to, err)
				}
				if !want && !errors.Is(err, apperr.ErrState) {
					t.Errorf("Authorize(%s, %s, %s) = %v, want state error", role, from, to, err)
				}
				n++
			}
		}
	}
	if n != 108 {
		t.Errorf("expected 108 combinations, checked %d", n)
	}
}

func TestValidateReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"123456789", "", false},
		{"1234567890", "1234567890", true},
		{"   12345678   ", "", false},
		{"  1234567890  ", "1234567890", true},
		{"", "", false},
		{"rendez-vous", "rendez-vous", true},
		{"médecin absé", "médecin absé", true},
		{"ééééééééé", "", false},
	}
	for _, tt := range tests {
		got, err := ValidateReason("reason", tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ValidateReason(%q) = %q, %v", tt.in, got, err)
			}
			continue
		}
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("ValidateReason(%q): expected validation error, got %v", tt.in, err)
		}
		if err != nil && apperr.As(err).Field != "reason" {
			t.Errorf("expected field reason, got %q", apperr.As(err).Field)
		}
	}
}

func TestStatusActive(t *testing.T) {
	active := map[Status]bool{StatusPending: true, StatusScheduled: true, StatusRescheduled: true}
	for _, s := range allStatuses {
		if s.Active() != active[s] {
			t.Errorf("%s.Active() = %v", s, s.Active())
		}
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("ARCHIVED").Valid() {
		t.Error("unknown status should not be valid")
	}
}
