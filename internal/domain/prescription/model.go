package prescription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/scheduler/internal/platform/apperr"
)

const DateLayout = "2006-01-02"

// Prescription is written exactly once per appointment, when the visit is
// completed.
type Prescription struct {
	ID            uuid.UUID    `json:"id"`
	AppointmentID uuid.UUID    `json:"appointment_id"`
	DoctorID      uuid.UUID    `json:"doctor_id"`
	PatientID     uuid.UUID    `json:"patient_id"`
	Diagnosis     string       `json:"diagnosis"`
	Notes         *string      `json:"notes,omitempty"`
	FollowUpDate  string       `json:"follow_up_date"`
	AttachmentRef *string      `json:"attachment_ref,omitempty"`
	Medications   []Medication `json:"medications"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Medication is one line of a prescription. Fields are changed through the
// setters, which trim input.
type Medication struct {
	ID           uuid.UUID `json:"id"`
	MedicineName string    `json:"medicine_name"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	Duration     string    `json:"duration"`
	Instructions *string   `json:"instructions,omitempty"`
}

func (m *Medication) SetMedicineName(v string) { m.MedicineName = strings.TrimSpace(v) }
func (m *Medication) SetDosage(v string)       { m.Dosage = strings.TrimSpace(v) }
func (m *Medication) SetFrequency(v string)    { m.Frequency = strings.TrimSpace(v) }
func (m *Medication) SetDuration(v string)     { m.Duration = strings.TrimSpace(v) }

// SetInstructions clears the instructions when v is blank.
func (m *Medication) SetInstructions(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		m.Instructions = nil
		return
	}
	m.Instructions = &v
}

// Validate reports the first missing field as "medications[i].<field>" when
// index >= 0.
func (m *Medication) Validate(index int) error {
	field := func(name string) string {
		if index < 0 {
			return name
		}
		return fmt.Sprintf("medications[%d].%s", index, name)
	}
	switch {
	case m.MedicineName == "":
		return apperr.Validation(field("medicine_name"), "is required")
	case m.Dosage == "":
		return apperr.Validation(field("dosage"), "is required")
	case m.Frequency == "":
		return apperr.Validation(field("frequency"), "is required")
	case m.Duration == "":
		return apperr.Validation(field("duration"), "is required")
	}
	return nil
}

// Validate checks the payload rules that need no stored state. The follow-up
// date is compared with the appointment date by the completion pipeline.
func (p *Prescription) Validate() error {
	if strings.TrimSpace(p.Diagnosis) == "" {
		return apperr.Validation("diagnosis", "is required")
	}
	if p.FollowUpDate == "" {
		return apperr.Validation("follow_up_date", "is required")
	}
	if _, err := time.Parse(DateLayout, p.FollowUpDate); err != nil {
		return apperr.Validation("follow_up_date", "must be a date in YYYY-MM-DD format")
	}
	if len(p.Medications) == 0 {
		return apperr.Validation("medications", "at least one medication is required")
	}
	for i := range p.Medications {
		if err := p.Medications[i].Validate(i); err != nil {
			return err
		}
	}
	return nil
}
