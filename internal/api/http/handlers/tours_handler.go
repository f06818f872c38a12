package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tourbook/tour-booking-service/internal/api/dto"
	"github.com/tourbook/tour-booking-service/internal/service"
)

// ToursHandler exposes the agency's own tour listing.
type ToursHandler struct {
	tours *service.TourService
}

// NewToursHandler constructs handler.
func NewToursHandler(tours *service.TourService) *ToursHandler {
	return &ToursHandler{tours: tours}
}

// ListOwned handles GET /api/agencies/current-agency/tours/:id. Ownership of :id is
// checked by the route guard.
func (h *ToursHandler) ListOwned(c *fiber.Ctx) error {
	tours, err := h.tours.ListForAgency(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTourResponses(tours)})
}
