package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/db"
)

const uniqueAppointment = "payment_appointment_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cols = `id, appointment_id, amount::text, method, status, paid_at, notes, created_at, updated_at`

func scan(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount, method, status string
	err := row.Scan(&p.ID, &p.AppointmentID, &amount, &method, &status, &p.PaidAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("payment")
		}
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	p.Method, p.Status = Method(method), Status(status)
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (id, appointment_id, amount, method, status, paid_at, notes)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.AppointmentID, p.Amount.StringFixed(2), string(p.Method), string(p.Status), p.PaidAt, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, uniqueAppointment) {
		return apperr.Conflict("payment_exists", "this appointment already has a payment")
	}
	return err
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM payment WHERE appointment_id = $1`, appointmentID))
}

func (r *repoPG) GetByAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM payment WHERE appointment_id = $1 FOR UPDATE`, appointmentID))
}

func (r *repoPG) Update(ctx context.Context, p *Payment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE payment SET amount = $2::numeric, method = $3, status = $4, paid_at = $5, notes = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Amount.StringFixed(2), string(p.Method), string(p.Status), p.PaidAt, p.Notes,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("payment")
	}
	return err
}
