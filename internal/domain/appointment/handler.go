package appointment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/scheduler/internal/domain/availability"
	"github.com/clinic/scheduler/internal/domain/prescription"
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
	// Reads and generic transitions – every role, scoped by the service
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.GET("/appointments/:id/prescription", h.GetPrescription)
	api.GET("/appointments/:id/payment", h.GetPayment)
	api.PATCH("/appointments/:id", h.PatchAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)

	// Booking – patients
	book := api.Group("", auth.RequireRole(auth.RolePatient))
	book.POST("/appointments", h.BookAppointment)

	// Doctor transitions and completion
	doc := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doc.POST("/appointments/:id/approve", h.ApproveAppointment)
	doc.POST("/appointments/:id/decline", h.DeclineAppointment)
	doc.POST("/appointments/:id/reschedule", h.RescheduleAppointment)
	doc.POST("/prescriptions", h.CreatePrescription)
}

// -- Request DTOs --

type bookRequest struct {
	DoctorID string  `json:"doctor_id" validate:"required,uuid"`
	Date     string  `json:"date" validate:"required,isodate"`
	Time     string  `json:"time" validate:"required,hhmm"`
	Symptoms string  `json:"symptoms" validate:"required,notblank"`
	Notes    *string `json:"notes"`
}

type reasonRequest struct {
	Reason  string `json:"reason"`
	Version *int   `json:"version"`
}

type versionRequest struct {
	Version *int `json:"version"`
}

type rescheduleRequest struct {
	NewDate string  `json:"new_date" validate:"required,isodate"`
	NewTime string  `json:"new_time" validate:"required,hhmm"`
	Reason  *string `json:"reason"`
	Version *int    `json:"version"`
}

type patchRequest struct {
	Status  string  `json:"status" validate:"required"`
	Notes   *string `json:"notes"`
	Version *int    `json:"version"`
}

type medicationRequest struct {
	MedicineName string  `json:"medicine_name" validate:"required,notblank"`
	Dosage       string  `json:"dosage" validate:"required,notblank"`
	Frequency    string  `json:"frequency" validate:"required,notblank"`
	Duration     string  `json:"duration" validate:"required,notblank"`
	Instructions *string `json:"instructions"`
}

type prescriptionRequest struct {
	AppointmentID string              `json:"appointment_id" validate:"required,uuid"`
	Diagnosis     string              `json:"diagnosis" validate:"required,notblank"`
	Notes         *string             `json:"notes"`
	FollowUpDate  string              `json:"follow_up_date" validate:"required,isodate"`
	AttachmentRef *string             `json:"attachment_ref" validate:"omitempty,max=512"`
	Medications   []medicationRequest `json:"medications" validate:"required,min=1,dive"`
	Version       *int                `json:"version"`
}

func (r *prescriptionRequest) medications() []prescription.Medication {
	meds := make([]prescription.Medication, len(r.Medications))
	for i, m := range r.Medications {
		meds[i].SetMedicineName(m.MedicineName)
		meds[i].SetDosage(m.Dosage)
		meds[i].SetFrequency(m.Frequency)
		meds[i].SetDuration(m.Duration)
		if m.Instructions != nil {
			meds[i].SetInstructions(*m.Instructions)
		}
	}
	return meds
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "must be a valid UUID")
	}
	return id, nil
}

// bindOptional binds a body that may be empty.
func bindOptional(c echo.Context, obj interface{}) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	return validate.BindAndValidate(c, obj)
}

// -- Appointment Handlers --

func (h *Handler) BookAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req bookRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), actor, BookInput{
		DoctorID: uuid.MustParse(req.DoctorID),
		Date:     req.Date,
		Time:     req.Time,
		Symptoms: req.Symptoms,
		Notes:    req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	f := ListFilter{Status: Status(c.QueryParam("status"))}
	if v := c.QueryParam("date"); v != "" {
		if _, err := availability.ParseDate(v); err != nil {
			return apperr.Validation("date", "must be a date in YYYY-MM-DD format")
		}
		f.Date = v
	}
	if v := c.QueryParam("doctor_id"); v != "" {
		if f.DoctorID, err = uuid.Parse(v); err != nil {
			return apperr.Validation("doctor_id", "must be a valid UUID")
		}
	}

	items, total, err := h.svc.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*View{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) PatchAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req patchRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Patch(c.Request().Context(), actor, id, PatchInput{
		Status:  Status(req.Status),
		Notes:   req.Notes,
		Version: req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ApproveAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req versionRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Approve(c.Request().Context(), actor, id, req.Version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeclineAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Decline(c.Request().Context(), actor, id, req.Reason, req.Version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), actor, id, req.Reason, req.Version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.svc.Reschedule(c.Request().Context(), actor, id, RescheduleInput{
		Date:    req.NewDate,
		Time:    req.NewTime,
		Reason:  req.Reason,
		Version: req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// -- Completion Handlers --

func (h *Handler) CreatePrescription(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req prescriptionRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Complete(c.Request().Context(), actor, CompleteInput{
		AppointmentID: uuid.MustParse(req.AppointmentID),
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
		FollowUpDate:  req.FollowUpDate,
		AttachmentRef: req.AttachmentRef,
		Medications:   req.medications(),
		Version:       req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayment(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
