package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/platform/apperr"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Availability is one doctor's working window on one calendar date. Times
// are wall-clock HH:mm in the clinic's single timezone.
type Availability struct {
	ID                   uuid.UUID `json:"id"`
	DoctorID             uuid.UUID `json:"doctor_id"`
	Date                 string    `json:"date"`
	StartTime            string    `json:"start_time"`
	EndTime              string    `json:"end_time"`
	BreakStartTime       *string   `json:"break_start_time,omitempty"`
	BreakEndTime         *string   `json:"break_end_time,omitempty"`
	SlotDurationMinutes  int       `json:"slot_duration_minutes"`
	MaxConcurrentPerSlot int       `json:"max_concurrent_per_slot"`
	IsActive             bool      `json:"is_active"`
	VersionID            int       `json:"version_id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

var validDurations = map[int]bool{15: true, 30: true, 45: true, 60: true}

// TimeOfDay is minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts strict zero-padded HH:mm.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// window is the parsed form used by the slot generator.
type window struct {
	start, end           TimeOfDay
	breakStart, breakEnd TimeOfDay
	hasBreak             bool
	step                 int
}

func (a *Availability) window() (window, error) {
	var w window
	var err error
	if w.start, err = ParseTimeOfDay(a.StartTime); err != nil {
		return w, apperr.Validation("start_time", "must be a time in HH:mm format")
	}
	if w.end, err = ParseTimeOfDay(a.EndTime); err != nil {
		return w, apperr.Validation("end_time", "must be a time in HH:mm format")
	}
	if w.start >= w.end {
		return w, apperr.Validation("end_time", "must be after start_time")
	}

	switch {
	case a.BreakStartTime == nil && a.BreakEndTime == nil:
	case a.BreakStartTime == nil || a.BreakEndTime == nil:
		return w, apperr.Validation("break_start_time", "break_start_time and break_end_time must be set together")
	default:
		if w.breakStart, err = ParseTimeOfDay(*a.BreakStartTime); err != nil {
			return w, apperr.Validation("break_start_time", "must be a time in HH:mm format")
		}
		if w.breakEnd, err = ParseTimeOfDay(*a.BreakEndTime); err != nil {
			return w, apperr.Validation("break_end_time", "must be a time in HH:mm format")
		}
		if w.breakStart >= w.breakEnd {
			return w, apperr.Validation("break_end_time", "must be after break_start_time")
		}
		if w.breakStart < w.start || w.breakEnd > w.end {
			return w, apperr.Validation("break_start_time", "break must lie within the working window")
		}
		w.hasBreak = true
	}

	if !validDurations[a.SlotDurationMinutes] {
		return w, apperr.Validation("slot_duration_minutes", "must be one of 15, 30, 45, 60")
	}
	w.step = a.SlotDurationMinutes
	return w, nil
}

// Validate checks the record for a write. today is the clinic's current date
// (YYYY-MM-DD); schedules may not be written for earlier dates.
func (a *Availability) Validate(today string) error {
	if a.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id", "is required")
	}
	if _, err := ParseDate(a.Date); err != nil {
		return apperr.Validation("date", "must be a date in YYYY-MM-DD format")
	}
	if a.Date < today {
		return apperr.Validation("date", "must not be in the past")
	}
	if _, err := a.window(); err != nil {
		return err
	}
	if a.MaxConcurrentPerSlot < 1 {
		return apperr.Validation("max_concurrent_per_slot", "must be at least 1")
	}
	return nil
}
