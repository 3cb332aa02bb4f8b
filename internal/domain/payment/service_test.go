package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/events"
)

// -- Mocks --

type mockTx struct{ mu sync.Mutex }

func (m *mockTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

type mockPaymentRepo struct {
	items map[uuid.UUID]*Payment
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{items: make(map[uuid.UUID]*Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	if _, ok := m.items[p.AppointmentID]; ok {
		return apperr.Conflict("payment_exists", "this appointment already has a payment")
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.AppointmentID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetByAppointment(_ context.Context, id uuid.UUID) (*Payment, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("payment")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) GetByAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return m.GetByAppointment(ctx, id)
}

func (m *mockPaymentRepo) Update(_ context.Context, p *Payment) error {
	if _, ok := m.items[p.AppointmentID]; !ok {
		return apperr.NotFound("payment")
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.items[p.AppointmentID] = &cp
	return nil
}

type mockAppointments struct {
	refs     map[uuid.UUID]*AppointmentRef
	statuses map[uuid.UUID]Status
}

func (m *mockAppointments) LockForPayment(_ context.Context, id uuid.UUID) (*AppointmentRef, error) {
	r, ok := m.refs[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	cp := *r
	return &cp, nil
}

func (m *mockAppointments) SetPaymentStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.statuses[id] = status
	return nil
}

type capturePublisher struct{ events []events.Event }

func (c *capturePublisher) Publish(_ context.Context, evs ...events.Event) error {
	c.events = append(c.events, evs...)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *mockPaymentRepo
	appts  *mockAppointments
	pub    *capturePublisher
	doctor auth.Actor
	apptID uuid.UUID
}

func newFixture(t *testing.T, status string) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newMockPaymentRepo(),
		appts:  &mockAppointments{refs: map[uuid.UUID]*AppointmentRef{}, statuses: map[uuid.UUID]Status{}},
		pub:    &capturePublisher{},
		doctor: auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor},
		apptID: uuid.New(),
	}
	f.appts.refs[f.apptID] = &AppointmentRef{
		ID: f.apptID, DoctorID: f.doctor.ID, PatientID: uuid.New(),
		Date: "2026-10-19", Time: "09:30", Status: status,
	}
	if err := f.repo.Create(context.Background(), NewPending(f.apptID, decimal.RequireFromString("500"))); err != nil {
		t.Fatal(err)
	}
	f.svc = NewService(&mockTx{}, f.repo, f.appts, f.pub, zerolog.Nop())
	f.svc.SetClock(func() time.Time { return time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC) })
	return f
}

func (f *fixture) input(paid bool) RecordInput {
	return RecordInput{
		AppointmentID: f.apptID,
		Amount:        decimal.RequireFromString("650.50"),
		Method:        MethodUPI,
		IsPaid:        paid,
	}
}

func TestNewPending(t *testing.T) {
	p := NewPending(uuid.New(), decimal.RequireFromString("499.999"))
	if p.Status != StatusPending || p.Method != "" {
		t.Errorf("unexpected pending payment: %+v", p)
	}
	if p.Amount.StringFixed(2) != "500.00" {
		t.Errorf("expected amount rounded to 500.00, got %s", p.Amount.StringFixed(2))
	}
}

func TestRecord_Paid(t *testing.T) {
	f := newFixture(t, completedStatus)

	p, err := f.svc.Record(context.Background(), f.doctor, f.input(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusPaid || p.PaidAt == nil {
		t.Errorf("expected PAID with paid_at, got %+v", p)
	}
	if p.Amount.StringFixed(2) != "650.50" || p.Method != MethodUPI {
		t.Errorf("unexpected amount/method: %s %s", p.Amount, p.Method)
	}
	if f.appts.statuses[f.apptID] != StatusPaid {
		t.Errorf("appointment payment_status not mirrored: %q", f.appts.statuses[f.apptID])
	}
	if len(f.pub.events) != 1 || f.pub.events[0].Type != events.PaymentRecorded {
		t.Errorf("expected one payment.recorded event, got %+v", f.pub.events)
	}
}

func TestRecord_NotPaidYet(t *testing.T) {
	f := newFixture(t, completedStatus)
	if _, err := f.svc.Record(context.Background(), f.doctor, f.input(true)); err != nil {
		t.Fatal(err)
	}

	p, err := f.svc.Record(context.Background(), f.doctor, f.input(false))
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusPending || p.PaidAt != nil {
		t.Errorf("expected PENDING without paid_at, got %+v", p)
	}
	if f.appts.statuses[f.apptID] != StatusPending {
		t.Errorf("expected mirrored PENDING, got %q", f.appts.statuses[f.apptID])
	}
}

func TestRecord_Access(t *testing.T) {
	f := newFixture(t, completedStatus)

	_, err := f.svc.Record(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RolePatient}, f.input(true))
	if !errors.Is(err, apperr.ErrState) {
		t.Errorf("patient: expected state error, got %v", err)
	}

	_, err = f.svc.Record(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}, f.input(true))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("other doctor: expected not found, got %v", err)
	}

	_, err = f.svc.Record(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}, f.input(true))
	if err != nil {
		t.Errorf("admin: unexpected error %v", err)
	}
}

func TestRecord_RequiresCompleted(t *testing.T) {
	f := newFixture(t, "SCHEDULED")
	_, err := f.svc.Record(context.Background(), f.doctor, f.input(true))
	if !errors.Is(err, apperr.ErrState) {
		t.Fatalf("expected state error, got %v", err)
	}
	if len(f.pub.events) != 0 {
		t.Error("no event expected on failure")
	}
}

func TestRecord_Validation(t *testing.T) {
	f := newFixture(t, completedStatus)
	tests := []struct {
		name  string
		edit  func(in *RecordInput)
		field string
	}{
		{"missing appointment", func(in *RecordInput) { in.AppointmentID = uuid.Nil }, "appointment_id"},
		{"negative amount", func(in *RecordInput) { in.Amount = decimal.NewFromInt(-1) }, "amount"},
		{"sub-cent amount", func(in *RecordInput) { in.Amount = decimal.RequireFromString("10.005") }, "amount"},
		{"unknown method", func(in *RecordInput) { in.Method = "cheque" }, "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input(true)
			tt.edit(&in)
			_, err := f.svc.Record(context.Background(), f.doctor, in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := apperr.As(err).Field; got != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, got)
			}
		})
	}
}
