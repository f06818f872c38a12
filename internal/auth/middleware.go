package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tourbook/tour-booking-service/internal/domain"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal is the verified caller attached to a request.
type Principal struct {
	ID     string
	Role   domain.Role
	Claims *Claims
}

// RejectionObserver is notified of every rejected token with a coarse reason.
type RejectionObserver interface {
	AuthRejected(reason string)
}

// AuthGate verifies tokens and attaches the principal to the request.
type AuthGate struct {
	tokens   *TokenManager
	logger   *zap.Logger
	observer RejectionObserver
}

// NewAuthGate constructs the gate. observer may be nil.
func NewAuthGate(tokens *TokenManager, logger *zap.Logger, observer RejectionObserver) *AuthGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthGate{tokens: tokens, logger: logger, observer: observer}
}

// Handle enforces a valid access token.
func (g *AuthGate) Handle(c *fiber.Ctx) error {
	token, err := AccessTokenFrom(c)
	if err != nil {
		return g.reject(c, "query_token", err)
	}
	if token == "" {
		return g.reject(c, "missing", nil)
	}
	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		return g.reject(c, RejectReason(err), err)
	}
	c.Locals(principalKey, principalFromClaims(claims))
	return c.Next()
}

// HandleRefresh enforces a valid refresh token and keeps the raw value for
// the rotation check.
func (g *AuthGate) HandleRefresh(c *fiber.Ctx) error {
	token, err := RefreshTokenFrom(c)
	if err != nil {
		return g.reject(c, "query_token", err)
	}
	if token == "" {
		return g.reject(c, "missing", nil)
	}
	claims, err := g.tokens.VerifyRefresh(token)
	if err != nil {
		return g.reject(c, RejectReason(err), err)
	}
	c.Locals(principalKey, principalFromClaims(claims))
	c.Locals(refreshTokenKey, token)
	return c.Next()
}

// Optional attaches a principal when a valid access token is present and
// otherwise lets the request through untouched.
func (g *AuthGate) Optional(c *fiber.Ctx) error {
	token, err := AccessTokenFrom(c)
	if err != nil || token == "" {
		return c.Next()
	}
	if claims, err := g.tokens.VerifyAccess(token); err == nil {
		c.Locals(principalKey, principalFromClaims(claims))
	}
	return c.Next()
}

func (g *AuthGate) reject(c *fiber.Ctx, reason string, err error) error {
	if g.observer != nil {
		g.observer.AuthRejected(reason)
	}
	if err != nil {
		g.logger.Debug("token rejected", zap.String("reason", reason), zap.String("path", c.Path()))
	}
	if reason == "missing" {
		return apperrors.NewAuthRejected("authentication required")
	}
	return apperrors.NewAuthRejected("invalid or expired token")
}

const refreshTokenKey = "auth_refresh_token"

func principalFromClaims(claims *Claims) *Principal {
	return &Principal{ID: claims.PrincipalID(), Role: claims.Role, Claims: claims}
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// RefreshTokenFromContext returns the raw refresh token verified by HandleRefresh.
func RefreshTokenFromContext(c *fiber.Ctx) (string, bool) {
	token, ok := c.Locals(refreshTokenKey).(string)
	return token, ok && token != ""
}
