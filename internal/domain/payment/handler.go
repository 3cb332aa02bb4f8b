package payment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/payments", auth.RequireRole(auth.RoleDoctor))
	g.POST("", h.RecordPayment)
}

type recordRequest struct {
	AppointmentID string           `json:"appointment_id" validate:"required,uuid"`
	Amount        *decimal.Decimal `json:"amount"`
	Method        string           `json:"method" validate:"required,oneof=cash card upi insurance other"`
	IsPaid        bool             `json:"is_paid"`
	Notes         *string          `json:"notes"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req recordRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Amount == nil {
		return apperr.Validation("amount", "is required")
	}
	p, err := h.svc.Record(c.Request().Context(), actor, RecordInput{
		AppointmentID: uuid.MustParse(req.AppointmentID),
		Amount:        *req.Amount,
		Method:        Method(req.Method),
		IsPaid:        req.IsPaid,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
