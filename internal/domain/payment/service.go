package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/db"
	"github.com/clinic/scheduler/internal/platform/events"
)

// completedStatus mirrors the appointment status that opens a payment.
const completedStatus = "COMPLETED"

type Service struct {
	tx        db.TxRunner
	repo      Repository
	appts     Appointments
	publisher events.Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(tx db.TxRunner, repo Repository, appts Appointments, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		tx:        tx,
		repo:      repo,
		appts:     appts,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With().Str("component", "payment").Logger(),
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RecordInput is the doctor's "payment received" / "not paid yet" action.
type RecordInput struct {
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Method        Method
	IsPaid        bool
	Notes         *string
}

func (in RecordInput) validate() error {
	if in.AppointmentID == uuid.Nil {
		return apperr.Validation("appointment_id", "is required")
	}
	if in.Amount.IsNegative() {
		return apperr.Validation("amount", "must not be negative")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return apperr.Validation("amount", "must have at most two decimal places")
	}
	if !in.Method.Valid() {
		return apperr.Validation("method", "must be one of: cash card upi insurance other")
	}
	return nil
}

// Record updates the appointment's payment and mirrors its status on the
// appointment. Only the appointment's doctor or an admin may record, and
// only once the visit is completed.
func (s *Service) Record(ctx context.Context, actor auth.Actor, in RecordInput) (*Payment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if actor.IsPatient() {
		return nil, apperr.State("forbidden", "patients cannot record payments")
	}

	var (
		p   *Payment
		ref *AppointmentRef
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.appts.LockForPayment(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		if actor.IsDoctor() && ref.DoctorID != actor.ID {
			return apperr.NotFound("appointment")
		}
		if ref.Status != completedStatus {
			return apperr.State("not_completed", "payments can only be recorded for completed appointments")
		}

		p, err = s.repo.GetByAppointmentForUpdate(ctx, in.AppointmentID)
		if err != nil {
			return err
		}
		p.Amount = in.Amount.Round(2)
		p.Method = in.Method
		p.Notes = in.Notes
		if in.IsPaid {
			now := s.now().UTC()
			p.Status, p.PaidAt = StatusPaid, &now
		} else {
			p.Status, p.PaidAt = StatusPending, nil
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		return s.appts.SetPaymentStatus(ctx, in.AppointmentID, p.Status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", in.AppointmentID.String()).
		Str("status", string(p.Status)).
		Str("method", string(p.Method)).
		Str("actor_role", string(actor.Role)).
		Msg("payment recorded")

	actorID := actor.ID
	events.PublishLogged(ctx, s.logger, s.publisher, events.Event{
		Type:          events.PaymentRecorded,
		AppointmentID: ref.ID,
		DoctorID:      ref.DoctorID,
		PatientID:     ref.PatientID,
		Date:          ref.Date,
		Time:          ref.Time,
		Status:        ref.Status,
		ActorID:       &actorID,
		ActorRole:     string(actor.Role),
		Attributes: map[string]string{
			"payment_status": string(p.Status),
			"amount":         p.Amount.StringFixed(2),
			"method":         string(p.Method),
		},
	})
	return p, nil
}
