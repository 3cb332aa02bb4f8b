// Package reminder publishes a reminder event for every confirmed
// appointment on the next clinic day. Delivery (email, SMS) belongs to the
// event consumers.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/domain/appointment"
	"github.com/clinic/scheduler/internal/domain/availability"
	"github.com/clinic/scheduler/internal/platform/events"
)

// Source lists the appointments to remind about; appointment.Repository
// implements it.
type Source interface {
	ListForReminder(ctx context.Context, date string) ([]*appointment.Appointment, error)
}

type Job struct {
	source    Source
	publisher events.Publisher
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger
}

func NewJob(source Source, publisher events.Publisher, loc *time.Location, logger zerolog.Logger) *Job {
	if loc == nil {
		loc = time.Local
	}
	return &Job{
		source:    source,
		publisher: publisher,
		now:       time.Now,
		loc:       loc,
		logger:    logger.With().Str("component", "reminder").Logger(),
	}
}

func (j *Job) SetClock(now func() time.Time) { j.now = now }

// Run publishes reminders for tomorrow's SCHEDULED and RESCHEDULED
// appointments and returns how many were sent. Appointments are not touched.
func (j *Job) Run(ctx context.Context) (int, error) {
	day := j.now().In(j.loc).AddDate(0, 0, 1).Format(availability.DateLayout)
	items, err := j.source.ListForReminder(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list appointments for %s: %w", day, err)
	}
	if len(items) == 0 {
		j.logger.Info().Str("date", day).Msg("no reminders to send")
		return 0, nil
	}

	sent := j.now().UTC()
	evs := make([]events.Event, 0, len(items))
	for _, a := range items {
		evs = append(evs, events.Event{
			Type:          events.AppointmentReminder,
			AppointmentID: a.ID,
			DoctorID:      a.DoctorID,
			PatientID:     a.PatientID,
			Date:          a.Date,
			Time:          a.Time,
			Status:        string(a.Status),
			OccurredAt:    sent,
		})
	}
	if err := j.publisher.Publish(ctx, evs...); err != nil {
		return 0, fmt.Errorf("publish reminders: %w", err)
	}
	j.logger.Info().Str("date", day).Int("count", len(evs)).Msg("reminders published")
	return len(evs), nil
}

// Start schedules Run on spec (standard five-field cron syntax, evaluated in
// the clinic's location) and returns the running scheduler. Stop it to end
// the job.
func (j *Job) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(j.loc))
	_, err := c.AddFunc(spec, func() {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("reminder run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	c.Start()
	j.logger.Info().Str("schedule", spec).Msg("reminder job started")
	return c, nil
}
