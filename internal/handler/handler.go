// Package handler holds the request helpers shared by the HTTP handlers.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/middleware"
	"github.com/medimeet/appointment-api/internal/model"
	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/validator"
)

// BindJSON decodes and validates the body, describing failures with the
// JSON field names.
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperrors.BadRequest(validator.Describe(err), err)
	}
	return nil
}

// ParamID parses a uuid path parameter.
func ParamID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("invalid "+name, err)
	}
	return id, nil
}

// Actor returns the authenticated caller. Routes using it sit behind
// Authenticate, so a missing actor is reported as unauthenticated.
func Actor(c *gin.Context) (model.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, apperrors.Unauthorized(nil)
	}
	return actor, nil
}
