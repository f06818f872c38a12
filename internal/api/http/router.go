package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/tourbook/tour-booking-service/internal/api/http/handlers"
	"github.com/tourbook/tour-booking-service/internal/auth"
	"github.com/tourbook/tour-booking-service/internal/config"
	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/observability"
)

// rolePrefixes maps each role to its route group under /api.
var rolePrefixes = map[domain.Role]string{
	domain.RoleTourist: "/tourists",
	domain.RoleAgency:  "/agencies",
	domain.RoleAdmin:   "/admins",
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Sessions  map[domain.Role]*handlers.SessionHandler
	Tours     *handlers.ToursHandler
	Gate      *auth.AuthGate
	Metrics   *observability.Metrics
	RateLimit config.RateLimitConfig
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	limited := RateLimitMiddleware(cfg.RateLimit)
	api := app.Group("/api")

	for _, role := range domain.Roles {
		h, ok := cfg.Sessions[role]
		if !ok {
			continue
		}
		group := api.Group(rolePrefixes[role])
		requireRole := auth.RequireRole(role)

		if role == domain.RoleAdmin {
			group.Post("/register", limited, cfg.Gate.Handle, requireRole, h.Register)
		} else {
			group.Post("/register", limited, h.Register)
		}
		group.Post("/login", limited, cfg.Gate.Optional, h.Login)
		group.Post("/refresh-token", limited, cfg.Gate.HandleRefresh, requireRole, h.Refresh)
		group.Post("/logout", cfg.Gate.Handle, requireRole, h.Logout)
		current := "/current-" + string(role)
		group.Get(current, cfg.Gate.Handle, requireRole, h.Current)

		if role == domain.RoleAgency && cfg.Tours != nil {
			group.Get(current+"/tours/:id", cfg.Gate.Handle, requireRole, auth.RequireOwner("id"), cfg.Tours.ListOwned)
		}
	}
}
