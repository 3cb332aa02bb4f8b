package appointment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/availability"
	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/domain/prescription"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/events"
)

// memStore backs every repository the service needs. memTx serializes
// transactions and restores a snapshot when one fails, which is what a
// rolled-back database transaction looks like to the caller.
type memStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*availability.Availability
	appts     map[uuid.UUID]*Appointment
	rxs       map[uuid.UUID]*prescription.Prescription
	pays      map[uuid.UUID]*payment.Payment
	contacts  map[uuid.UUID]*PatientContact

	failPaymentCreate error
}

func newMemStore() *memStore {
	return &memStore{
		schedules: map[uuid.UUID]*availability.Availability{},
		appts:     map[uuid.UUID]*Appointment{},
		rxs:       map[uuid.UUID]*prescription.Prescription{},
		pays:      map[uuid.UUID]*payment.Payment{},
		contacts:  map[uuid.UUID]*PatientContact{},
	}
}

type memSnapshot struct {
	schedules map[uuid.UUID]*availability.Availability
	appts     map[uuid.UUID]*Appointment
	rxs       map[uuid.UUID]*prescription.Prescription
	pays      map[uuid.UUID]*payment.Payment
}

func cloneAppt(a *Appointment) *Appointment {
	cp := *a
	return &cp
}

func cloneRx(p *prescription.Prescription) *prescription.Prescription {
	cp := *p
	cp.Medications = append([]prescription.Medication(nil), p.Medications...)
	return &cp
}

func clonePay(p *payment.Payment) *payment.Payment {
	cp := *p
	return &cp
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		schedules: map[uuid.UUID]*availability.Availability{},
		appts:     map[uuid.UUID]*Appointment{},
		rxs:       map[uuid.UUID]*prescription.Prescription{},
		pays:      map[uuid.UUID]*payment.Payment{},
	}
	for k, v := range s.schedules {
		cp := *v
		snap.schedules[k] = &cp
	}
	for k, v := range s.appts {
		snap.appts[k] = cloneAppt(v)
	}
	for k, v := range s.rxs {
		snap.rxs[k] = cloneRx(v)
	}
	for k, v := range s.pays {
		snap.pays[k] = clonePay(v)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules, s.appts, s.rxs, s.pays = snap.schedules, snap.appts, snap.rxs, snap.pays
}

type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// -- availability.Repository --

type memSchedules struct{ *memStore }

func (m memSchedules) Create(_ context.Context, a *availability.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.VersionID = 1
	cp := *a
	m.schedules[a.ID] = &cp
	return nil
}

func (m memSchedules) GetByID(_ context.Context, id uuid.UUID) (*availability.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.schedules[id]
	if !ok {
		return nil, apperr.NotFound("schedule")
	}
	cp := *a
	return &cp, nil
}

func (m memSchedules) GetByDoctorDate(_ context.Context, doctorID uuid.UUID, date string) (*availability.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.schedules {
		if a.DoctorID == doctorID && a.Date == date {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("schedule")
}

func (m memSchedules) GetByDoctorDateForUpdate(ctx context.Context, doctorID uuid.UUID, date string) (*availability.Availability, error) {
	return m.GetByDoctorDate(ctx, doctorID, date)
}

func (m memSchedules) Update(_ context.Context, a *availability.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.VersionID++
	cp := *a
	m.schedules[a.ID] = &cp
	return nil
}

func (m memSchedules) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m memSchedules) List(_ context.Context, _ availability.ListFilter, _, _ int) ([]*availability.Availability, int, error) {
	return nil, 0, errors.New("not used")
}

// -- Repository --

type memAppts struct{ *memStore }

func (m memAppts) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.VersionID = 1
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = cloneAppt(a)
	return nil
}

func (m memAppts) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return cloneAppt(a), nil
}

func (m memAppts) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m memAppts) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok || cur.VersionID != a.VersionID {
		return apperr.Conflict("stale_version", "the appointment was changed by someone else, reload and try again")
	}
	a.VersionID++
	a.UpdatedAt = time.Now()
	m.appts[a.ID] = cloneAppt(a)
	return nil
}

func (m memAppts) CountActiveByTime(_ context.Context, doctorID uuid.UUID, date string, exclude uuid.UUID) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Date == date && a.Status.Active() && a.ID != exclude {
			counts[a.Time]++
		}
	}
	return counts, nil
}

func (m memAppts) view(a *Appointment) *View {
	v := &View{Appointment: cloneAppt(a)}
	if c, ok := m.contacts[a.PatientID]; ok {
		cp := *c
		v.Patient = &cp
	}
	return v
}

func (m memAppts) List(_ context.Context, f ListFilter, limit, offset int) ([]*View, int, error) {
	m.mu.Lock()
	var out []*View
	for _, a := range m.appts {
		switch {
		case f.PatientID != uuid.Nil && a.PatientID != f.PatientID,
			f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.Date != "" && a.Date != f.Date:
			continue
		}
		out = append(out, m.view(a))
	}
	m.mu.Unlock()

	SortForDisplay(out)
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m memAppts) GetView(_ context.Context, id uuid.UUID) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return m.view(a), nil
}

func (m memAppts) ListForReminder(_ context.Context, date string) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.Date == date && (a.Status == StatusScheduled || a.Status == StatusRescheduled) {
			out = append(out, cloneAppt(a))
		}
	}
	return out, nil
}

func (m memAppts) LockForPayment(_ context.Context, id uuid.UUID) (*payment.AppointmentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return &payment.AppointmentRef{
		ID: a.ID, DoctorID: a.DoctorID, PatientID: a.PatientID,
		Date: a.Date, Time: a.Time, Status: string(a.Status),
	}, nil
}

func (m memAppts) SetPaymentStatus(_ context.Context, id uuid.UUID, status payment.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	cp := cloneAppt(a)
	cp.PaymentStatus = &status
	cp.VersionID++
	m.appts[id] = cp
	return nil
}

// -- prescription.Repository --

type memRx struct{ *memStore }

func (m memRx) Create(_ context.Context, p *prescription.Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rxs[p.AppointmentID]; ok {
		return apperr.Conflict("prescription_exists", "this appointment already has a prescription")
	}
	p.ID = uuid.New()
	for i := range p.Medications {
		p.Medications[i].ID = uuid.New()
	}
	m.rxs[p.AppointmentID] = cloneRx(p)
	return nil
}

func (m memRx) GetByAppointment(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rxs[id]
	if !ok {
		return nil, apperr.NotFound("prescription")
	}
	return cloneRx(p), nil
}

// -- payment.Repository --

type memPay struct{ *memStore }

func (m memPay) Create(_ context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPaymentCreate != nil {
		return m.failPaymentCreate
	}
	if _, ok := m.pays[p.AppointmentID]; ok {
		return apperr.Conflict("payment_exists", "this appointment already has a payment")
	}
	p.ID = uuid.New()
	m.pays[p.AppointmentID] = clonePay(p)
	return nil
}

func (m memPay) GetByAppointment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pays[id]
	if !ok {
		return nil, apperr.NotFound("payment")
	}
	return clonePay(p), nil
}

func (m memPay) GetByAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.GetByAppointment(ctx, id)
}

func (m memPay) Update(_ context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pays[p.AppointmentID] = clonePay(p)
	return nil
}

// -- collaborators --

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, evs ...events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evs...)
	return nil
}

func (c *capturePublisher) types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type captureSlots struct {
	mu    sync.Mutex
	dates []string
}

func (c *captureSlots) InvalidateSlots(_ context.Context, _ uuid.UUID, dates ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dates = append(c.dates, dates...)
}
