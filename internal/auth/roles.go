package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tourbook/tour-booking-service/internal/domain"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

// RequireRole ensures the verified principal carries the given role. A valid
// token of another role is rejected the same way as a bad token.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Role != role {
			return apperrors.NewAuthRejected("unauthorized access")
		}
		return c.Next()
	}
}

// RequireOwner ensures the path parameter names the caller's own id. Mismatch is
// a rejection, not a 404, so resource existence does not leak.
func RequireOwner(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || c.Params(param) != principal.ID {
			return apperrors.NewAuthRejected("unauthorized access")
		}
		return c.Next()
	}
}
