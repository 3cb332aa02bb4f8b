package appointment

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
)

// MinReasonLength applies to decline and cancellation reasons after trimming.
const MinReasonLength = 10

// transitions lists, per role, the target states reachable from each state.
// Admins have no entry.
var transitions = map[auth.Role]map[Status][]Status{
	auth.RoleDoctor: {
		StatusPending:     {StatusScheduled, StatusDeclined},
		StatusScheduled:   {StatusRescheduled, StatusCompleted, StatusCancelled},
		StatusRescheduled: {StatusRescheduled, StatusCompleted, StatusCancelled},
	},
	auth.RolePatient: {
		StatusScheduled: {StatusCancelled},
	},
}

// Allowed reports whether role may move an appointment from one state to
// another.
func Allowed(role auth.Role, from, to Status) bool {
	for _, s := range transitions[role][from] {
		if s == to {
			return true
		}
	}
	return false
}

// Authorize is Allowed as an error.
func Authorize(role auth.Role, from, to Status) error {
	if Allowed(role, from, to) {
		return nil
	}
	return apperr.State("transition_not_allowed",
		fmt.Sprintf("%s cannot move an appointment from %s to %s", role, from, to))
}

// ValidateReason trims reason and checks its length in characters.
func ValidateReason(field, reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperr.Validation(field, "is required")
	}
	if utf8.RuneCountInString(reason) < MinReasonLength {
		return "", apperr.Validationf(field, "must be at least %d characters", MinReasonLength)
	}
	return reason, nil
}

func (a *Appointment) approve(now time.Time) {
	a.Status = StatusScheduled
	a.ApprovedAt = &now
}

func (a *Appointment) decline(reason string, now time.Time) {
	a.Status = StatusDeclined
	a.DeclineReason = &reason
	a.DeclinedAt = &now
}

func (a *Appointment) cancel(actor auth.Actor, reason string, now time.Time) {
	role := string(actor.Role)
	by := actor.ID
	a.Status = StatusCancelled
	a.CancellationReason = &reason
	a.CancelledAt = &now
	a.CancelledBy = &by
	a.CancelledByRole = &role
}

// reschedule moves the appointment. The original fields, and who moved it
// when, are written by the first reschedule only and survive later ones.
func (a *Appointment) reschedule(actor auth.Actor, date, hhmm string, reason *string, now time.Time) {
	if a.OriginalDate == nil {
		d, t, by := a.Date, a.Time, actor.ID
		a.OriginalDate, a.OriginalTime = &d, &t
		a.RescheduledBy, a.RescheduledAt = &by, &now
	}
	a.Date, a.Time = date, hhmm
	a.Status = StatusRescheduled
	a.RescheduleReason = reason
}

func (a *Appointment) complete(now time.Time) {
	ps := payment.StatusPending
	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.PaymentStatus = &ps
}

// visibleTo hides other people's appointments behind not-found.
func visibleTo(actor auth.Actor, a *Appointment) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleDoctor:
		if a.DoctorID == actor.ID {
			return nil
		}
	case auth.RolePatient:
		if a.PatientID == actor.ID {
			return nil
		}
	}
	return apperr.NotFound("appointment")
}
