package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/domain/payment"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusScheduled   Status = "SCHEDULED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusDeclined    Status = "DECLINED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusRescheduled, StatusCompleted, StatusCancelled, StatusDeclined:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusScheduled || s == StatusRescheduled
}

// Appointment is one patient visit with one doctor. Each transition writes
// its own audit fields; nothing is overloaded onto a shared notes column.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"appointment_date"`
	Time      string    `json:"appointment_time"`
	Status    Status    `json:"status"`
	Symptoms  string    `json:"symptoms"`

	GeneralNotes *string `json:"general_notes,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	DeclineReason *string    `json:"decline_reason,omitempty"`
	DeclinedAt    *time.Time `json:"declined_at,omitempty"`

	OriginalDate     *string    `json:"original_appointment_date,omitempty"`
	OriginalTime     *string    `json:"original_appointment_time,omitempty"`
	RescheduleReason *string    `json:"reschedule_reason,omitempty"`
	RescheduledBy    *uuid.UUID `json:"rescheduled_by,omitempty"`
	RescheduledAt    *time.Time `json:"rescheduled_at,omitempty"`

	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelledByRole    *string    `json:"cancelled_by_role,omitempty"`

	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	PaymentStatus *payment.Status `json:"payment_status,omitempty"`

	VersionID int       `json:"version_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PatientContact is read from the profile module for the doctor's view.
type PatientContact struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

// View is an appointment as listed to a caller. Patient is only filled for
// doctors and admins.
type View struct {
	*Appointment
	Patient *PatientContact `json:"patient,omitempty"`
}
