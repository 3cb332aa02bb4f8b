package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/payment"
)

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    Status
	Date      string
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes a if a.VersionID still matches and bumps it.
	Update(ctx context.Context, a *Appointment) error
	CountActiveByTime(ctx context.Context, doctorID uuid.UUID, date string, exclude uuid.UUID) (map[string]int, error)
	// List returns views in display order with the patient's contact details.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*View, int, error)
	GetView(ctx context.Context, id uuid.UUID) (*View, error)
	// ListForReminder returns SCHEDULED and RESCHEDULED appointments on date.
	ListForReminder(ctx context.Context, date string) ([]*Appointment, error)

	payment.Appointments
}
