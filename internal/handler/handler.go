package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"usertasks/internal/auth"
	"usertasks/internal/errors"
)

// ClaimsContextKey is where the auth middleware stores *auth.Claims.
const ClaimsContextKey = "user"

// respondError converts a service error into an echo HTTP error. The original
// error is kept as the internal cause so the request logger records it.
func respondError(err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse()).SetInternal(err)
}

func badRequest(msg string) error {
	return respondError(errors.Validationf("%s", msg))
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid " + name)
	}
	return uint(id), nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 timestamps and plain yyyy-MM-dd dates. Values
// without a zone are read as UTC.
func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// callerID returns the authenticated user's id.
func callerID(c echo.Context) (uint, error) {
	claims, ok := c.Get(ClaimsContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return 0, respondError(errors.ErrInvalidToken)
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, respondError(errors.ErrInvalidToken)
	}
	return id, nil
}
