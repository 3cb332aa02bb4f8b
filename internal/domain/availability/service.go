package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/cache"
)

type Service struct {
	repo      Repository
	occupancy OccupancyCounter
	cache     cache.Cache
	cacheTTL  time.Duration
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger
}

func NewService(repo Repository, occupancy OccupancyCounter, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		occupancy: occupancy,
		cache:     cache.Nop{},
		now:       time.Now,
		loc:       time.Local,
		logger:    logger.With().Str("component", "availability").Logger(),
	}
}

// SetCache enables the slot read cache.
func (s *Service) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache, s.cacheTTL = c, ttl
}

// SetClock overrides the clock and the clinic location.
func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now, s.loc = now, loc
}

func (s *Service) clinicNow() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) today() string {
	return s.clinicNow().Format(DateLayout)
}

// -- Schedule CRUD --

// scope checks that actor may manage schedules of doctorID. Patients never
// can; doctors only their own.
func scope(actor auth.Actor, doctorID uuid.UUID) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleDoctor:
		if doctorID == actor.ID {
			return nil
		}
		return apperr.NotFound("schedule")
	}
	return apperr.State("forbidden", "only doctors and admins manage schedules")
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, a *Availability) error {
	if actor.IsDoctor() {
		a.DoctorID = actor.ID
	}
	if err := scope(actor, a.DoctorID); err != nil {
		return err
	}
	if err := a.Validate(s.today()); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	s.InvalidateSlots(ctx, a.DoctorID, a.Date)
	s.logger.Info().
		Str("schedule_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date).
		Msg("schedule created")
	return nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Availability, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scope(actor, a.DoctorID); err != nil {
		return nil, err
	}
	return a, nil
}

// Update replaces the editable fields of the schedule. in.VersionID must match
// the stored version.
func (s *Service) Update(ctx context.Context, actor auth.Actor, in *Availability) error {
	cur, err := s.Get(ctx, actor, in.ID)
	if err != nil {
		return err
	}
	if cur.Date < s.today() {
		return apperr.Validation("date", "past schedules cannot be edited")
	}
	in.DoctorID = cur.DoctorID
	if in.VersionID == 0 {
		in.VersionID = cur.VersionID
	}
	if err := in.Validate(s.today()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, in); err != nil {
		return err
	}
	in.CreatedAt = cur.CreatedAt
	s.InvalidateSlots(ctx, cur.DoctorID, cur.Date, in.Date)
	return nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	cur, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.InvalidateSlots(ctx, cur.DoctorID, cur.Date)
	s.logger.Info().
		Str("schedule_id", id.String()).
		Str("doctor_id", cur.DoctorID.String()).
		Str("date", cur.Date).
		Msg("schedule deleted")
	return nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter, limit, offset int) ([]*Availability, int, error) {
	switch actor.Role {
	case auth.RoleDoctor:
		f.DoctorID = actor.ID
	case auth.RoleAdmin:
	default:
		return nil, 0, apperr.State("forbidden", "only doctors and admins manage schedules")
	}
	return s.repo.List(ctx, f, limit, offset)
}

// -- Slots --

func slotKey(doctorID uuid.UUID, date string) string {
	return "slots:" + doctorID.String() + ":" + date
}

// AvailableSlots lists bookable start times for doctorID on date. The result
// is a snapshot: bookings recheck under lock.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) (SlotResult, error) {
	if doctorID == uuid.Nil {
		return SlotResult{}, apperr.Validation("doctor_id", "is required")
	}
	if _, err := ParseDate(date); err != nil {
		return SlotResult{}, apperr.Validation("date", "must be a date in YYYY-MM-DD format")
	}

	now := s.clinicNow()
	// today's list shrinks by the minute; entries written before midnight
	// must not be served once their date is today
	cacheable := date > now.Format(DateLayout)
	key := slotKey(doctorID, date)

	if cacheable {
		if b, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("slot cache read")
		} else if ok {
			var res SlotResult
			if err := json.Unmarshal(b, &res); err == nil {
				return res, nil
			}
		}
	}

	res, err := s.compute(ctx, doctorID, date)
	if err != nil {
		return SlotResult{}, err
	}
	res = DropPast(res, now)

	if cacheable {
		if b, err := json.Marshal(res); err == nil {
			if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("slot cache write")
			}
		}
	}
	return res, nil
}

func (s *Service) compute(ctx context.Context, doctorID uuid.UUID, date string) (SlotResult, error) {
	av, err := s.repo.GetByDoctorDate(ctx, doctorID, date)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return SlotResult{}, fmt.Errorf("load schedule: %w", err)
	}

	var res SlotResult
	if av == nil {
		res = Generate(nil, nil)
	} else {
		occupied, err := s.occupancy.CountActiveByTime(ctx, doctorID, date, uuid.Nil)
		if err != nil {
			return SlotResult{}, fmt.Errorf("count bookings: %w", err)
		}
		res = Generate(av, occupied)
	}
	res.DoctorID, res.Date = doctorID, date
	return res, nil
}

// InvalidateSlots drops cached slot lists. Called after every commit that
// changes a schedule or the set of active appointments.
func (s *Service) InvalidateSlots(ctx context.Context, doctorID uuid.UUID, dates ...string) {
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, slotKey(doctorID, d))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("slot cache invalidate")
	}
}
