package onboarding

import (
	"github.com/gin-gonic/gin"

	"github.com/medimeet/appointment-api/internal/handler"
	"github.com/medimeet/appointment-api/internal/service/onboarding"
	"github.com/medimeet/appointment-api/pkg/httputil"
)

type Handler struct {
	resolver *onboarding.Resolver
}

func NewHandler(resolver *onboarding.Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/onboarding/route", h.Route)
}

// Route tells the front end where to send the signed-in caller.
func (h *Handler) Route(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	route, err := h.resolver.Resolve(c.Request.Context(), actor.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, route)
}
