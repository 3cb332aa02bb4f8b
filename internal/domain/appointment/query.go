package appointment

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/domain/prescription"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
)

var statusRank = map[Status]int{
	StatusPending:     0,
	StatusScheduled:   1,
	StatusRescheduled: 2,
	StatusCompleted:   3,
	StatusCancelled:   4,
	StatusDeclined:    5,
}

// displayLess orders by status priority, then newest date and time first,
// then id.
func displayLess(a, b *Appointment) bool {
	if ra, rb := statusRank[a.Status], statusRank[b.Status]; ra != rb {
		return ra < rb
	}
	if a.Date != b.Date {
		return a.Date > b.Date
	}
	if a.Time != b.Time {
		return a.Time > b.Time
	}
	return a.ID.String() < b.ID.String()
}

// SortForDisplay sorts views in place in the order lists are shown.
func SortForDisplay(views []*View) {
	sort.SliceStable(views, func(i, j int) bool {
		return displayLess(views[i].Appointment, views[j].Appointment)
	})
}

// List returns the caller's appointments. Patients see their own; doctors
// see theirs with patient contact details; admins see all.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter, limit, offset int) ([]*View, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("status", "is not a known appointment status")
	}
	switch actor.Role {
	case auth.RolePatient:
		f.PatientID = actor.ID
	case auth.RoleDoctor:
		f.DoctorID = actor.ID
	case auth.RoleAdmin:
	default:
		return nil, 0, apperr.State("forbidden", "unknown role")
	}

	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if actor.IsPatient() {
		for _, v := range items {
			v.Patient = nil
		}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*View, error) {
	v, err := s.repo.GetView(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := visibleTo(actor, v.Appointment); err != nil {
		return nil, err
	}
	if actor.IsPatient() {
		v.Patient = nil
	}
	return v, nil
}

func (s *Service) visible(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return visibleTo(actor, a)
}

func (s *Service) GetPrescription(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (*prescription.Prescription, error) {
	if err := s.visible(ctx, actor, appointmentID); err != nil {
		return nil, err
	}
	return s.prescriptions.GetByAppointment(ctx, appointmentID)
}

func (s *Service) GetPayment(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (*payment.Payment, error) {
	if err := s.visible(ctx, actor, appointmentID); err != nil {
		return nil, err
	}
	return s.payments.GetByAppointment(ctx, appointmentID)
}
