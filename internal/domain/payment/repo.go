package payment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	GetByAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}

// AppointmentRef is the slice of an appointment that payment recording needs.
type AppointmentRef struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string
	Time      string
	Status    string
}

// Appointments is implemented by the appointment repository. LockForPayment
// holds the appointment row until the transaction ends.
type Appointments interface {
	LockForPayment(ctx context.Context, id uuid.UUID) (*AppointmentRef, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status Status) error
}
