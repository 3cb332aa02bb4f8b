package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/availability"
	"github.com/clinic/scheduler/internal/platform/apperr"
)

// MessageSlotTaken is shown when a slot filled up between listing and booking.
const MessageSlotTaken = "this slot was just taken, pick another time"

// Guard re-checks a slot inside the booking transaction. It locks the
// doctor's availability row for the date, so concurrent bookings and
// reschedules into that date run one after another.
type Guard struct {
	schedules availability.Repository
	occupancy availability.OccupancyCounter
}

func NewGuard(schedules availability.Repository, occupancy availability.OccupancyCounter) *Guard {
	return &Guard{schedules: schedules, occupancy: occupancy}
}

// Check must run inside a transaction. exclude is the appointment being
// moved, if any; it does not count against its own new slot. now is in the
// clinic's location.
func (g *Guard) Check(ctx context.Context, doctorID uuid.UUID, date, hhmm string, exclude uuid.UUID, now time.Time) error {
	av, err := g.schedules.GetByDoctorDateForUpdate(ctx, doctorID, date)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.Conflict(string(availability.ReasonNoSchedule), availability.MessageNoSchedule)
		}
		return fmt.Errorf("lock schedule: %w", err)
	}
	if !av.IsActive {
		return apperr.Conflict(string(availability.ReasonFullyBooked), availability.MessageFullyBooked)
	}

	isMark := false
	for _, m := range availability.Marks(av) {
		if m == hhmm {
			isMark = true
			break
		}
	}
	if !isMark {
		return apperr.Validation("time", "is not a bookable time for this doctor and date")
	}
	if availability.HasStarted(date, hhmm, now) {
		return apperr.Conflict("slot_unavailable", "this slot has already started, pick another time")
	}

	occupied, err := g.occupancy.CountActiveByTime(ctx, doctorID, date, exclude)
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if occupied[hhmm] >= av.MaxConcurrentPerSlot {
		return apperr.Conflict("slot_taken", MessageSlotTaken)
	}
	return nil
}
