package prescription

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/db"
)

const uniqueAppointment = "prescription_appointment_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, appointment_id, doctor_id, patient_id, diagnosis, notes, follow_up_date, attachment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.AppointmentID, p.DoctorID, p.PatientID, p.Diagnosis, p.Notes, p.FollowUpDate, p.AttachmentRef,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, uniqueAppointment) {
		return apperr.Conflict("prescription_exists", "this appointment already has a prescription")
	}
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := range p.Medications {
		m := &p.Medications[i]
		m.ID = uuid.New()
		batch.Queue(`
			INSERT INTO medication (id, prescription_id, position, medicine_name, dosage, frequency, duration, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, p.ID, i, m.MedicineName, m.Dosage, m.Frequency, m.Duration, m.Instructions)
	}
	return r.conn(ctx).SendBatch(ctx, batch).Close()
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	var p Prescription
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, appointment_id, doctor_id, patient_id, diagnosis, notes,
			COALESCE(to_char(follow_up_date, 'YYYY-MM-DD'), ''), attachment_ref, created_at, updated_at
		FROM prescription WHERE appointment_id = $1`, appointmentID,
	).Scan(&p.ID, &p.AppointmentID, &p.DoctorID, &p.PatientID, &p.Diagnosis, &p.Notes,
		&p.FollowUpDate, &p.AttachmentRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("prescription")
		}
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medicine_name, dosage, frequency, duration, instructions
		FROM medication WHERE prescription_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m Medication
		if err := rows.Scan(&m.ID, &m.MedicineName, &m.Dosage, &m.Frequency, &m.Duration, &m.Instructions); err != nil {
			return nil, err
		}
		p.Medications = append(p.Medications, m)
	}
	return &p, rows.Err()
}
