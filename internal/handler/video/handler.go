package video

import (
	"github.com/gin-gonic/gin"

	"github.com/medimeet/appointment-api/internal/handler"
	"github.com/medimeet/appointment-api/internal/service/video"
	"github.com/medimeet/appointment-api/pkg/httputil"
)

type Handler struct {
	service *video.Service
}

func NewHandler(service *video.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/appointments/:id/video", h.RequestJoin)
}

func (h *Handler) RequestJoin(c *gin.Context) {
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

	join, err := h.service.RequestJoin(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, join)
}
