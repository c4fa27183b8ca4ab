// Package handlers exposes the services over HTTP. Handlers bind input,
// call exactly one service operation and map the result; they never make
// access decisions of their own.
package handlers

import (
	"strconv"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/middleware"
	"flowtrack/backend/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// principal returns the authenticated caller. Routes without Authenticate
// in front of them get a 401.
func principal(c *gin.Context) (policy.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		apperrors.Respond(c, apperrors.Authentication("not authenticated"))
	}
	return p, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(name))
	if err != nil {
		apperrors.Respond(c, apperrors.Validationf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		apperrors.Respond(c, apperrors.Validationf("%s must be a non-negative integer", name))
		return 0, false
	}
	return v, true
}

func queryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		apperrors.Respond(c, apperrors.Validationf("invalid %s", name))
		return nil, false
	}
	return &id, true
}

// pagination reads skip and limit; the store clamps limit.
func pagination(c *gin.Context) (skip, limit int, ok bool) {
	if skip, ok = queryInt(c, "skip"); !ok {
		return 0, 0, false
	}
	limit, ok = queryInt(c, "limit")
	return skip, limit, ok
}

func queryEnum[T ~string](c *gin.Context, name string) *T {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v := T(raw)
	return &v
}
