package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores p with its medications. A second prescription for the
	// same appointment is a conflict.
	Create(ctx context.Context, p *Prescription) error
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)
}
