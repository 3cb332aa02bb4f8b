package availability

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/validate"
	"github.com/clinic/scheduler/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Slot lookup – every authenticated role
	api.GET("/available-slots", h.AvailableSlots)

	// Schedule management – doctors for themselves, admins for anyone
	sched := api.Group("/schedules", auth.RequireRole(auth.RoleDoctor))
	sched.POST("", h.CreateSchedule)
	sched.GET("", h.ListSchedules)
	sched.GET("/:id", h.GetSchedule)
	sched.PUT("/:id", h.UpdateSchedule)
	sched.DELETE("/:id", h.DeleteSchedule)
}

type scheduleRequest struct {
	DoctorID             string  `json:"doctor_id" validate:"omitempty,uuid"`
	Date                 string  `json:"date" validate:"required,isodate"`
	StartTime            string  `json:"start_time" validate:"required,hhmm"`
	EndTime              string  `json:"end_time" validate:"required,hhmm"`
	BreakStartTime       *string `json:"break_start_time" validate:"omitempty,hhmm"`
	BreakEndTime         *string `json:"break_end_time" validate:"omitempty,hhmm"`
	SlotDurationMinutes  int     `json:"slot_duration_minutes" validate:"required,oneof=15 30 45 60"`
	MaxConcurrentPerSlot int     `json:"max_concurrent_per_slot" validate:"required,gte=1"`
	IsActive             *bool   `json:"is_active"`
	VersionID            int     `json:"version_id" validate:"gte=0"`
}

func (r *scheduleRequest) toModel() *Availability {
	a := &Availability{
		Date:                 r.Date,
		StartTime:            r.StartTime,
		EndTime:              r.EndTime,
		BreakStartTime:       r.BreakStartTime,
		BreakEndTime:         r.BreakEndTime,
		SlotDurationMinutes:  r.SlotDurationMinutes,
		MaxConcurrentPerSlot: r.MaxConcurrentPerSlot,
		IsActive:             true,
		VersionID:            r.VersionID,
	}
	if r.DoctorID != "" {
		a.DoctorID = uuid.MustParse(r.DoctorID)
	}
	if r.IsActive != nil {
		a.IsActive = *r.IsActive
	}
	return a
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(name, "must be a valid UUID")
	}
	return id, nil
}

// -- Slot Handlers --

func (h *Handler) AvailableSlots(c echo.Context) error {
	if _, err := auth.RequireActor(c); err != nil {
		return err
	}
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return apperr.Validation("doctor_id", "must be a valid UUID")
	}
	res, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// -- Schedule Handlers --

func (h *Handler) CreateSchedule(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a := req.toModel()
	if err := h.svc.Create(c.Request().Context(), actor, a); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListSchedules(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	var f ListFilter
	if v := c.QueryParam("doctor_id"); v != "" {
		if f.DoctorID, err = uuid.Parse(v); err != nil {
			return apperr.Validation("doctor_id", "must be a valid UUID")
		}
	}
	for name, dst := range map[string]*string{"from": &f.From, "to": &f.To} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		if _, err := ParseDate(v); err != nil {
			return apperr.Validation(name, "must be a date in YYYY-MM-DD format")
		}
		*dst = v
	}

	items, total, err := h.svc.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Availability{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) UpdateSchedule(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a := req.toModel()
	a.ID = id
	if err := h.svc.Update(c.Request().Context(), actor, a); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteSchedule(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
