package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/pkg/auth"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/httputil"
)

const ContextActor = "actor"

var (
	errMissingHeader = errors.New("missing authorization header")
	errBadScheme     = errors.New("invalid authorization format")
)

type AuthMiddleware struct {
	jwtService auth.JWTService
}

func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate verifies the bearer token and stores the caller as a
// model.Actor in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingHeader))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, apperrors.Unauthorized(errBadScheme))
			return
		}

		claims, err := m.jwtService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextActor, claims.Actor())
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingHeader))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden("role "+string(actor.Role)+" may not access this resource"))
	}
}

// ActorFrom returns the caller stored by Authenticate.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
