package availability

import (
	"time"

	"github.com/google/uuid"
)

// Reason tells an empty slot list apart: nothing was scheduled for the date,
// or something was scheduled and none of it is bookable.
type Reason string

const (
	ReasonNoSchedule  Reason = "no_schedule"
	ReasonFullyBooked Reason = "fully_booked"

	MessageNoSchedule  = "no schedule"
	MessageFullyBooked = "fully booked"
)

// SlotResult is the bookable view of one doctor's date. Slots is never nil so
// it always renders as a JSON array.
type SlotResult struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
	Reason   Reason    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func noSchedule() SlotResult {
	return SlotResult{Slots: []string{}, Reason: ReasonNoSchedule, Message: MessageNoSchedule}
}

func fullyBooked() SlotResult {
	return SlotResult{Slots: []string{}, Reason: ReasonFullyBooked, Message: MessageFullyBooked}
}

// Marks returns every start time the availability defines, ignoring
// occupancy: from start_time in slot_duration steps while the mark is before
// end_time, skipping marks in [break_start, break_end). An invalid record
// has no marks.
func Marks(av *Availability) []string {
	w, err := av.window()
	if err != nil {
		return nil
	}
	var marks []string
	for m := w.start; m < w.end; m += TimeOfDay(w.step) {
		if w.hasBreak && m >= w.breakStart && m < w.breakEnd {
			continue
		}
		marks = append(marks, m.String())
	}
	return marks
}

// Generate lists the bookable slots of av given how many non-terminal
// appointments already hold each start time. A nil av means no schedule
// exists for the date.
func Generate(av *Availability, occupied map[string]int) SlotResult {
	if av == nil {
		return noSchedule()
	}
	res := fullyBooked()
	res.DoctorID, res.Date = av.DoctorID, av.Date
	if !av.IsActive {
		return res
	}

	for _, m := range Marks(av) {
		if occupied[m] >= av.MaxConcurrentPerSlot {
			continue
		}
		res.Slots = append(res.Slots, m)
	}
	if len(res.Slots) > 0 {
		res.Reason, res.Message = "", ""
	}
	return res
}

// DropPast removes slots that have already started at now. now must be in the
// clinic's location. Dates before today lose every slot.
func DropPast(res SlotResult, now time.Time) SlotResult {
	if len(res.Slots) == 0 {
		return res
	}
	today := now.Format(DateLayout)
	switch {
	case res.Date > today:
		return res
	case res.Date < today:
		res.Slots = []string{}
	default:
		cur := TimeOfDay(now.Hour()*60 + now.Minute())
		kept := make([]string, 0, len(res.Slots))
		for _, s := range res.Slots {
			if t, err := ParseTimeOfDay(s); err == nil && t > cur {
				kept = append(kept, s)
			}
		}
		res.Slots = kept
	}
	if len(res.Slots) == 0 {
		res.Reason, res.Message = ReasonFullyBooked, MessageFullyBooked
	}
	return res
}

// HasStarted reports whether the slot (date, hhmm) is at or before now.
func HasStarted(date, hhmm string, now time.Time) bool {
	today := now.Format(DateLayout)
	if date != today {
		return date < today
	}
	t, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return true
	}
	return t <= TimeOfDay(now.Hour()*60+now.Minute())
}
