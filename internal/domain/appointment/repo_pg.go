package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cols = `a.id, a.patient_id, a.doctor_id, to_char(a.appointment_date, 'YYYY-MM-DD'), a.appointment_time,
	a.status, a.symptoms, a.general_notes, a.approved_at, a.decline_reason, a.declined_at,
	to_char(a.original_appointment_date, 'YYYY-MM-DD'), a.original_appointment_time,
	a.reschedule_reason, a.rescheduled_by, a.rescheduled_at,
	a.cancellation_reason, a.cancelled_at, a.cancelled_by, a.cancelled_by_role,
	a.completed_at, a.payment_status, a.version_id, a.created_at, a.updated_at`

const viewCols = cols + `, p.full_name, p.email, p.phone`

const fromView = ` FROM appointment a LEFT JOIN patient_profile p ON p.id = a.patient_id`

// displayOrder mirrors SortForDisplay.
const displayOrder = ` ORDER BY CASE a.status
		WHEN 'PENDING' THEN 0 WHEN 'SCHEDULED' THEN 1 WHEN 'RESCHEDULED' THEN 2
		WHEN 'COMPLETED' THEN 3 WHEN 'CANCELLED' THEN 4 ELSE 5 END,
	a.appointment_date DESC, a.appointment_time DESC, a.id`

func scanInto(row pgx.Row, a *Appointment, extra ...interface{}) error {
	var status string
	var paymentStatus *string
	dest := []interface{}{
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&status, &a.Symptoms, &a.GeneralNotes, &a.ApprovedAt, &a.DeclineReason, &a.DeclinedAt,
		&a.OriginalDate, &a.OriginalTime,
		&a.RescheduleReason, &a.RescheduledBy, &a.RescheduledAt,
		&a.CancellationReason, &a.CancelledAt, &a.CancelledBy, &a.CancelledByRole,
		&a.CompletedAt, &paymentStatus, &a.VersionID, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if db.IsNoRows(err) {
			return apperr.NotFound("appointment")
		}
		return err
	}
	a.Status = Status(status)
	if paymentStatus != nil {
		ps := payment.Status(*paymentStatus)
		a.PaymentStatus = &ps
	}
	return nil
}

func scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := scanInto(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanView(row pgx.Row) (*View, error) {
	v := &View{Appointment: &Appointment{}}
	var c PatientContact
	if err := scanInto(row, v.Appointment, &c.FullName, &c.Email, &c.Phone); err != nil {
		return nil, err
	}
	if c.FullName != nil || c.Email != nil || c.Phone != nil {
		v.Patient = &c
	}
	return v, nil
}

func paymentStatusArg(ps *payment.Status) *string {
	if ps == nil {
		return nil
	}
	s := string(*ps)
	return &s
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.VersionID = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, appointment_date, appointment_time,
			status, symptoms, general_notes, version_id)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time,
		string(a.Status), a.Symptoms, a.GeneralNotes, a.VersionID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM appointment a WHERE a.id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM appointment a WHERE a.id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET appointment_date = $3::date, appointment_time = $4, status = $5,
			general_notes = $6, approved_at = $7, decline_reason = $8, declined_at = $9,
			original_appointment_date = $10::date, original_appointment_time = $11,
			reschedule_reason = $12, rescheduled_by = $13, rescheduled_at = $14,
			cancellation_reason = $15, cancelled_at = $16, cancelled_by = $17, cancelled_by_role = $18,
			completed_at = $19, payment_status = $20,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		a.ID, a.VersionID, a.Date, a.Time, string(a.Status),
		a.GeneralNotes, a.ApprovedAt, a.DeclineReason, a.DeclinedAt,
		a.OriginalDate, a.OriginalTime,
		a.RescheduleReason, a.RescheduledBy, a.RescheduledAt,
		a.CancellationReason, a.CancelledAt, a.CancelledBy, a.CancelledByRole,
		a.CompletedAt, paymentStatusArg(a.PaymentStatus),
	).Scan(&a.VersionID, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.Conflict("stale_version", "the appointment was changed by someone else, reload and try again")
	}
	return err
}

func (r *repoPG) CountActiveByTime(ctx context.Context, doctorID uuid.UUID, date string, exclude uuid.UUID) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_time, COUNT(*) FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2::date
			AND status IN ('PENDING', 'SCHEDULED', 'RESCHEDULED')
			AND id <> $3
		GROUP BY appointment_time`, doctorID, date, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*View, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != uuid.Nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Date != "" {
		where += fmt.Sprintf(` AND a.appointment_date = $%d::date`, idx)
		args = append(args, f.Date)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + viewCols + fromView + where + displayOrder +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) GetView(ctx context.Context, id uuid.UUID) (*View, error) {
	return scanView(r.conn(ctx).QueryRow(ctx, `SELECT `+viewCols+fromView+` WHERE a.id = $1`, id))
}

func (r *repoPG) ListForReminder(ctx context.Context, date string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM appointment a
		WHERE a.appointment_date = $1::date AND a.status IN ('SCHEDULED', 'RESCHEDULED')
		ORDER BY a.doctor_id, a.appointment_time, a.id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// -- payment.Appointments --

func (r *repoPG) LockForPayment(ctx context.Context, id uuid.UUID) (*payment.AppointmentRef, error) {
	var ref payment.AppointmentRef
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, doctor_id, patient_id, to_char(appointment_date, 'YYYY-MM-DD'), appointment_time, status
		FROM appointment WHERE id = $1 FOR UPDATE`, id,
	).Scan(&ref.ID, &ref.DoctorID, &ref.PatientID, &ref.Date, &ref.Time, &ref.Status)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}
	return &ref, nil
}

func (r *repoPG) SetPaymentStatus(ctx context.Context, id uuid.UUID, status payment.Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET payment_status = $2, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}
