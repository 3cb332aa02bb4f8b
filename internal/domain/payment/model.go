package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

type Method string

const (
	MethodCash      Method = "cash"
	MethodCard      Method = "card"
	MethodUPI       Method = "upi"
	MethodInsurance Method = "insurance"
	MethodOther     Method = "other"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodUPI, MethodInsurance, MethodOther:
		return true
	}
	return false
}

// Payment is opened as PENDING when the visit completes. Method stays empty
// until the doctor records how the patient paid.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        Method          `json:"method"`
	Status        Status          `json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewPending is the payment row written by the completion pipeline.
func NewPending(appointmentID uuid.UUID, fee decimal.Decimal) *Payment {
	return &Payment{
		AppointmentID: appointmentID,
		Amount:        fee.Round(2),
		Status:        StatusPending,
	}
}
