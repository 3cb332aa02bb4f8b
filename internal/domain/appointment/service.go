package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/scheduler/internal/domain/availability"
	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/domain/prescription"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/db"
	"github.com/clinic/scheduler/internal/platform/events"
)

// SlotInvalidator drops cached slot lists; *availability.Service implements it.
type SlotInvalidator interface {
	InvalidateSlots(ctx context.Context, doctorID uuid.UUID, dates ...string)
}

type nopSlots struct{}

func (nopSlots) InvalidateSlots(context.Context, uuid.UUID, ...string) {}

type Deps struct {
	Tx            db.TxRunner
	Repo          Repository
	Schedules     availability.Repository
	Prescriptions prescription.Repository
	Payments      payment.Repository
	Slots         SlotInvalidator
	Publisher     events.Publisher
	// Fee is the amount a completed visit's payment opens with.
	Fee      decimal.Decimal
	Now      func() time.Time
	Location *time.Location
	Logger   zerolog.Logger
}

type Service struct {
	tx            db.TxRunner
	repo          Repository
	guard         *Guard
	prescriptions prescription.Repository
	payments      payment.Repository
	slots         SlotInvalidator
	publisher     events.Publisher
	fee           decimal.Decimal
	now           func() time.Time
	loc           *time.Location
	logger        zerolog.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		tx:            d.Tx,
		repo:          d.Repo,
		guard:         NewGuard(d.Schedules, d.Repo),
		prescriptions: d.Prescriptions,
		payments:      d.Payments,
		slots:         d.Slots,
		publisher:     d.Publisher,
		fee:           d.Fee,
		now:           d.Now,
		loc:           d.Location,
		logger:        d.Logger.With().Str("component", "appointment").Logger(),
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.slots == nil {
		s.slots = nopSlots{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

func (s *Service) clinicNow() time.Time { return s.now().In(s.loc) }

// -- Booking --

type BookInput struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
	Symptoms string
	Notes    *string
}

func (in *BookInput) validate() error {
	if in.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id", "is required")
	}
	if err := validDateTime("date", in.Date, "time", in.Time); err != nil {
		return err
	}
	in.Symptoms = strings.TrimSpace(in.Symptoms)
	if in.Symptoms == "" {
		return apperr.Validation("symptoms", "is required")
	}
	in.Notes = trimmedOrNil(in.Notes)
	return nil
}

func validDateTime(dateField, date, timeField, hhmm string) error {
	if _, err := availability.ParseDate(date); err != nil {
		return apperr.Validation(dateField, "must be a date in YYYY-MM-DD format")
	}
	if _, err := availability.ParseTimeOfDay(hhmm); err != nil {
		return apperr.Validation(timeField, "must be a time in HH:mm format")
	}
	return nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Book requests a slot for the calling patient. The slot is re-checked under
// the availability row lock; the new appointment starts PENDING.
func (s *Service) Book(ctx context.Context, actor auth.Actor, in BookInput) (*Appointment, error) {
	if !actor.IsPatient() {
		return nil, apperr.State("forbidden", "only patients can book appointments")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:    actor.ID,
		DoctorID:     in.DoctorID,
		Date:         in.Date,
		Time:         in.Time,
		Status:       StatusPending,
		Symptoms:     in.Symptoms,
		GeneralNotes: in.Notes,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.guard.Check(ctx, in.DoctorID, in.Date, in.Time, uuid.Nil, s.clinicNow()); err != nil {
			return err
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date).
		Str("time", a.Time).
		Msg("appointment requested")
	s.slots.InvalidateSlots(ctx, a.DoctorID, a.Date)
	events.PublishLogged(ctx, s.logger, s.publisher, s.event(events.AppointmentRequested, a, actor, nil))
	return a, nil
}

// -- Transitions --

// change describes one transition. apply mutates the locked appointment
// before it is written; after runs once the appointment row is updated.
type change struct {
	to      Status
	version *int
	apply   func(ctx context.Context, a *Appointment) error
	after   func(ctx context.Context, a *Appointment) error
}

// transition locks the appointment, checks visibility, version and the
// transition table, then applies and writes the change in one transaction.
// It returns the updated appointment and the state it left.
func (s *Service) transition(ctx context.Context, actor auth.Actor, id uuid.UUID, ch change) (*Appointment, Status, error) {
	var (
		a    *Appointment
		from Status
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if err := visibleTo(actor, a); err != nil {
			return err
		}
		if ch.version != nil && *ch.version != a.VersionID {
			return apperr.Conflict("stale_version", "the appointment was changed by someone else, reload and try again")
		}
		from = a.Status
		if err := Authorize(actor.Role, from, ch.to); err != nil {
			return err
		}
		if ch.apply != nil {
			if err := ch.apply(ctx, a); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		if ch.after != nil {
			return ch.after(ctx, a)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("from", string(from)).
		Str("to", string(a.Status)).
		Str("actor_role", string(actor.Role)).
		Msg("appointment transition")
	return a, from, nil
}

func (s *Service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID, version *int) (*Appointment, error) {
	a, _, err := s.transition(ctx, actor, id, change{
		to:      StatusScheduled,
		version: version,
		apply: func(_ context.Context, a *Appointment) error {
			a.approve(s.now().UTC())
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	events.PublishLogged(ctx, s.logger, s.publisher, s.event(events.AppointmentApproved, a, actor, nil))
	return a, nil
}

func (s *Service) Decline(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string, version *int) (*Appointment, error) {
	reason, err := ValidateReason("reason", reason)
	if err != nil {
		return nil, err
	}
	a, _, err := s.transition(ctx, actor, id, change{
		to:      StatusDeclined,
		version: version,
		apply: func(_ context.Context, a *Appointment) error {
			a.decline(reason, s.now().UTC())
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.slots.InvalidateSlots(ctx, a.DoctorID, a.Date)
	events.PublishLogged(ctx, s.logger, s.publisher, s.event(events.AppointmentDeclined, a, actor, map[string]string{"reason": reason}))
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string, version *int) (*Appointment, error) {
	reason, err := ValidateReason("reason", reason)
	if err != nil {
		return nil, err
	}
	a, _, err := s.transition(ctx, actor, id, change{
		to:      StatusCancelled,
		version: version,
		apply: func(_ context.Context, a *Appointment) error {
			a.cancel(actor, reason, s.now().UTC())
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.slots.InvalidateSlots(ctx, a.DoctorID, a.Date)
	events.PublishLogged(ctx, s.logger, s.publisher, s.event(events.AppointmentCancelled, a, actor, map[string]string{"reason": reason}))
	return a, nil
}

type RescheduleInput struct {
	Date    string
	Time    string
	Reason  *string
	Version *int
}

// Reschedule moves a SCHEDULED or RESCHEDULED appointment to a new slot,
// which must pass the same guard as a new booking.
func (s *Service) Reschedule(ctx context.Context, actor auth.Actor, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	if err := validDateTime("new_date", in.Date, "new_time", in.Time); err != nil {
		return nil, err
	}
	reason := trimmedOrNil(in.Reason)

	var oldDate string
	a, _, err := s.transition(ctx, actor, id, change{
		to:      StatusRescheduled,
		version: in.Version,
		apply: func(ctx context.Context, a *Appointment) error {
			if err := s.guard.Check(ctx, a.DoctorID, in.Date, in.Time, a.ID, s.clinicNow()); err != nil {
				return err
			}
			oldDate = a.Date
			a.reschedule(actor, in.Date, in.Time, reason, s.now().UTC())
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.slots.InvalidateSlots(ctx, a.DoctorID, oldDate, a.Date)
	attrs := map[string]string{"original_date": *a.OriginalDate, "original_time": *a.OriginalTime}
	if reason != nil {
		attrs["reason"] = *reason
	}
	events.PublishLogged(ctx, s.logger, s.publisher, s.event(events.AppointmentRescheduled, a, actor, attrs))
	return a, nil
}

// PatchInput is the generic status update. Notes carries the reason for
// declines and cancellations.
type PatchInput struct {
	Status  Status
	Notes   *string
	Version *int
}

// Patch dispatches a status change to the matching transition.
// Rescheduling and completion need their own payloads and are rejected here.
func (s *Service) Patch(ctx context.Context, actor auth.Actor, id uuid.UUID, in PatchInput) (*Appointment, error) {
	notes := ""
	if in.Notes != nil {
		notes = *in.Notes
	}
	switch in.Status {
	case StatusScheduled:
		return s.Approve(ctx, actor, id, in.Version)
	case StatusDeclined:
		a, err := s.Decline(ctx, actor, id, notes, in.Version)
		return a, renameField(err, "reason", "notes")
	case StatusCancelled:
		a, err := s.Cancel(ctx, actor, id, notes, in.Version)
		return a, renameField(err, "reason", "notes")
	case StatusRescheduled:
		return nil, s.redirect(ctx, actor, id, in.Status, "use the reschedule endpoint to move an appointment")
	case StatusCompleted:
		return nil, s.redirect(ctx, actor, id, in.Status, "submit a prescription to complete an appointment")
	case StatusPending:
		a, _, err := s.transition(ctx, actor, id, change{to: StatusPending, version: in.Version})
		return a, err
	}
	return nil, apperr.Validation("status", "must be one of: SCHEDULED DECLINED CANCELLED")
}

// redirect answers a PATCH whose target needs its own endpoint. Illegal
// moves still fail the transition table first.
func (s *Service) redirect(ctx context.Context, actor auth.Actor, id uuid.UUID, to Status, msg string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := visibleTo(actor, a); err != nil {
		return err
	}
	if err := Authorize(actor.Role, a.Status, to); err != nil {
		return err
	}
	return apperr.Validation("status", msg)
}

func renameField(err error, from, to string) error {
	if err == nil {
		return nil
	}
	if e := apperr.As(err); e.Kind == apperr.KindValidation && e.Field == from {
		cp := *e
		cp.Field = to
		return &cp
	}
	return err
}

func (s *Service) event(typ events.Type, a *Appointment, actor auth.Actor, attrs map[string]string) events.Event {
	actorID := actor.ID
	return events.Event{
		Type:          typ,
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date,
		Time:          a.Time,
		Status:        string(a.Status),
		ActorID:       &actorID,
		ActorRole:     string(actor.Role),
		OccurredAt:    s.now().UTC(),
		Attributes:    attrs,
	}
}
