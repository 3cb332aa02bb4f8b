package availability

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	DoctorID uuid.UUID
	From     string
	To       string
}

type Repository interface {
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error)
	// GetByDoctorDateForUpdate locks the row until the surrounding
	// transaction ends. Bookings for the same doctor and date queue on it.
	GetByDoctorDateForUpdate(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error)
	Update(ctx context.Context, a *Availability) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Availability, int, error)
}

// OccupancyCounter counts non-terminal appointments per start time for one
// doctor and date. exclude, when not uuid.Nil, is left out of the count.
type OccupancyCounter interface {
	CountActiveByTime(ctx context.Context, doctorID uuid.UUID, date string, exclude uuid.UUID) (map[string]int, error)
}
