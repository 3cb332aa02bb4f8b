package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/domain/prescription"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/events"
)

type CompleteInput struct {
	AppointmentID uuid.UUID
	Diagnosis     string
	Notes         *string
	FollowUpDate  string
	AttachmentRef *string
	Medications   []prescription.Medication
	Version       *int
}

// Completion is everything the pipeline wrote.
type Completion struct {
	Appointment  *Appointment               `json:"appointment"`
	Prescription *prescription.Prescription `json:"prescription"`
	Payment      *payment.Payment           `json:"payment"`
}

// Complete closes a visit: it stores the prescription and its medications,
// marks the appointment COMPLETED and opens a PENDING payment for the
// default fee. All of it commits together or not at all.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, in CompleteInput) (*Completion, error) {
	if in.AppointmentID == uuid.Nil {
		return nil, apperr.Validation("appointment_id", "is required")
	}
	rx := &prescription.Prescription{
		AppointmentID: in.AppointmentID,
		Diagnosis:     strings.TrimSpace(in.Diagnosis),
		Notes:         trimmedOrNil(in.Notes),
		FollowUpDate:  in.FollowUpDate,
		AttachmentRef: trimmedOrNil(in.AttachmentRef),
		Medications:   in.Medications,
	}
	if err := rx.Validate(); err != nil {
		return nil, err
	}

	var pay *payment.Payment
	a, _, err := s.transition(ctx, actor, in.AppointmentID, change{
		to:      StatusCompleted,
		version: in.Version,
		apply: func(ctx context.Context, a *Appointment) error {
			if rx.FollowUpDate < a.Date {
				return apperr.Validation("follow_up_date", "must not be before the appointment date")
			}
			rx.DoctorID, rx.PatientID = a.DoctorID, a.PatientID
			if err := s.prescriptions.Create(ctx, rx); err != nil {
				return err
			}
			a.complete(s.now().UTC())
			return nil
		},
		after: func(ctx context.Context, a *Appointment) error {
			pay = payment.NewPending(a.ID, s.fee)
			return s.payments.Create(ctx, pay)
		},
	})
	if err != nil {
		return nil, err
	}

	s.slots.InvalidateSlots(ctx, a.DoctorID, a.Date)
	events.PublishLogged(ctx, s.logger, s.publisher, s.event(events.AppointmentCompleted, a, actor, map[string]string{
		"prescription_id": rx.ID.String(),
		"payment_status":  string(pay.Status),
		"amount":          pay.Amount.StringFixed(2),
	}))
	return &Completion{Appointment: a, Prescription: rx, Payment: pay}, nil
}
