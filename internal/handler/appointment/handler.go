package appointment

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/handler"
	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/service/appointment"
	"github.com/medimeet/appointment-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects r to be behind Authenticate.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.BookAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.POST("/:id/complete", h.CompleteAppointment)
		appointments.PUT("/:id/notes", h.SetNotes)
	}
}

func (h *Handler) BookAppointment(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.BookAppointmentRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	apt, err := h.service.Book(c.Request.Context(), actor, req.DoctorID, req.StartTime, req.EndTime)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	status := model.AppointmentStatus(c.Query("status"))
	appointments, err := h.service.ListForActor(c.Request.Context(), actor, status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	h.withAppointment(c, h.service.Get)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	h.withAppointment(c, h.service.Cancel)
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	h.withAppointment(c, h.service.Complete)
}

func (h *Handler) SetNotes(c *gin.Context) {
	var req model.SetNotesRequest
	if err := handler.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	h.withAppointment(c, func(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error) {
		return h.service.SetNotes(ctx, id, actor, req.Notes)
	})
}

type appointmentOp func(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Appointment, error)

// withAppointment resolves the caller and the :id parameter, runs op and
// writes its result.
func (h *Handler) withAppointment(c *gin.Context, op appointmentOp) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.ParamID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	apt, err := op(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}
