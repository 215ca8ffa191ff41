package doctor

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/handler"
	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/service/verification"
	"github.com/medimeet/appointment-api/pkg/httputil"
)

type Handler struct {
	service *verification.Service
}

func NewHandler(service *verification.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the verified doctor directory.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/doctors", h.ListDirectory)
}

// RegisterAdminRoutes mounts the review queue. The service enforces the
// admin role itself; r may add a role check in front.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/admin/doctors")
	{
		doctors.GET("/pending", h.ListPending)
		doctors.GET("/verified", h.ListVerified)
		doctors.POST("/:id/approve", h.Approve)
		doctors.POST("/:id/reject", h.Reject)
	}
}

func (h *Handler) ListDirectory(c *gin.Context) {
	doctors, err := h.service.ListVerifiedBySpecialty(c.Request.Context(), c.Query("specialty"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) ListPending(c *gin.Context) {
	doctors, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) ListVerified(c *gin.Context) {
	doctors, err := h.service.ListVerified(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve)
}

func (h *Handler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject)
}

func (h *Handler) review(c *gin.Context, op func(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.DoctorProfile, error)) {
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

	profile, err := op(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, profile)
}
