package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tourbook/tour-booking-service/internal/api/dto"
	"github.com/tourbook/tour-booking-service/internal/auth"
	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/service"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

// SessionHandler exposes register, login, refresh, logout and current for one
// role.
type SessionHandler struct {
	sessions     *service.SessionService
	role         domain.Role
	secureCookie bool
}

// NewSessionHandler constructs a handler bound to role.
func NewSessionHandler(sessions *service.SessionService, role domain.Role, secureCookie bool) *SessionHandler {
	return &SessionHandler{sessions: sessions, role: role, secureCookie: secureCookie}
}

// Register handles POST {prefix}/register.
func (h *SessionHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	principal, err := h.sessions.Register(c.UserContext(), req.ToInput(h.role))
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": string(h.role) + " registered successfully",
		"data":    dto.NewPrincipalResponse(service.SummaryFromPrincipal(principal)),
	})
}

// Login handles POST {prefix}/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	if caller, ok := auth.PrincipalFromContext(c); ok {
		if summary, reentered := h.sessions.Reenter(caller, h.role); reentered {
			return c.JSON(fiber.Map{
				"message": "already logged in",
				"data":    dto.LoginResponse{Principal: dto.NewPrincipalResponse(summary)},
			})
		}
	}

	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.sessions.Login(c.UserContext(), service.LoginInput{
		Role:     h.role,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	h.setTokenCookies(c, result.Tokens)
	tokens := dto.NewTokenPairResponse(result.Tokens)
	return c.JSON(fiber.Map{
		"message": "logged in successfully",
		"data": dto.LoginResponse{
			Principal: dto.NewPrincipalResponse(result.Summary),
			Tokens:    &tokens,
		},
	})
}

// Refresh handles POST {prefix}/refresh-token. The gate has already verified
// the refresh token.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	caller, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthRejected("authentication required")
	}
	inbound, _ := auth.RefreshTokenFromContext(c)

	pair, err := h.sessions.Refresh(c.UserContext(), caller, inbound)
	if err != nil {
		return err
	}

	h.setTokenCookies(c, pair)
	return c.JSON(fiber.Map{
		"message": "access token refreshed",
		"data":    dto.NewTokenPairResponse(pair),
	})
}

// Logout handles POST {prefix}/logout.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	caller, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthRejected("authentication required")
	}
	if err := h.sessions.Logout(c.UserContext(), caller); err != nil {
		return err
	}

	h.clearTokenCookies(c)
	return c.JSON(fiber.Map{"message": "logged out successfully"})
}

// Current handles GET {prefix}/current-{role}.
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	caller, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthRejected("authentication required")
	}
	return c.JSON(fiber.Map{"data": dto.NewPrincipalResponse(h.sessions.Current(caller))})
}

func (h *SessionHandler) setTokenCookies(c *fiber.Ctx, pair domain.TokenPair) {
	c.Cookie(h.cookie(auth.AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	c.Cookie(h.cookie(auth.RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

func (h *SessionHandler) clearTokenCookies(c *fiber.Ctx) {
	expired := time.Unix(0, 0).UTC()
	c.Cookie(h.cookie(auth.AccessTokenCookie, "", expired))
	c.Cookie(h.cookie(auth.RefreshTokenCookie, "", expired))
}

func (h *SessionHandler) cookie(name, value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
}
