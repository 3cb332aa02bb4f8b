package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/db"
)

const uniqueDoctorDate = "availability_doctor_date_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cols = `id, doctor_id, to_char(date, 'YYYY-MM-DD'), start_time, end_time,
	break_start_time, break_end_time, slot_duration_minutes, max_concurrent_per_slot,
	is_active, version_id, created_at, updated_at`

func scan(row pgx.Row) (*Availability, error) {
	var a Availability
	err := row.Scan(&a.ID, &a.DoctorID, &a.Date, &a.StartTime, &a.EndTime,
		&a.BreakStartTime, &a.BreakEndTime, &a.SlotDurationMinutes, &a.MaxConcurrentPerSlot,
		&a.IsActive, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("schedule")
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	a.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, date, start_time, end_time,
			break_start_time, break_end_time, slot_duration_minutes, max_concurrent_per_slot, is_active, version_id)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.Date, a.StartTime, a.EndTime,
		a.BreakStartTime, a.BreakEndTime, a.SlotDurationMinutes, a.MaxConcurrentPerSlot, a.IsActive, a.VersionID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, uniqueDoctorDate) {
		return apperr.Conflict("schedule_exists", "a schedule already exists for this doctor and date")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM availability WHERE id = $1`, id))
}

func (r *repoPG) GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error) {
	return scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM availability WHERE doctor_id = $1 AND date = $2::date`, doctorID, date))
}

func (r *repoPG) GetByDoctorDateForUpdate(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error) {
	return scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM availability WHERE doctor_id = $1 AND date = $2::date FOR UPDATE`, doctorID, date))
}

// Update writes a if its version still matches and bumps the version.
func (r *repoPG) Update(ctx context.Context, a *Availability) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE availability SET date = $3::date, start_time = $4, end_time = $5,
			break_start_time = $6, break_end_time = $7, slot_duration_minutes = $8,
			max_concurrent_per_slot = $9, is_active = $10,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		a.ID, a.VersionID, a.Date, a.StartTime, a.EndTime,
		a.BreakStartTime, a.BreakEndTime, a.SlotDurationMinutes,
		a.MaxConcurrentPerSlot, a.IsActive,
	).Scan(&a.VersionID, &a.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.Conflict("stale_version", "the schedule was changed by someone else, reload and try again")
	case db.IsUniqueViolation(err, uniqueDoctorDate):
		return apperr.Conflict("schedule_exists", "a schedule already exists for this doctor and date")
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule")
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Availability, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.From != "" {
		where += fmt.Sprintf(` AND date >= $%d::date`, idx)
		args = append(args, f.From)
		idx++
	}
	if f.To != "" {
		where += fmt.Sprintf(` AND date <= $%d::date`, idx)
		args = append(args, f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM availability`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + cols + ` FROM availability` + where +
		fmt.Sprintf(` ORDER BY date, doctor_id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Availability
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
