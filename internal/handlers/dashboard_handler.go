package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"tareas/internal/middleware"
	"tareas/internal/services"
)

// DashboardHandler renders the profile page.
type DashboardHandler struct {
	accounts *services.AccountService
	sessions *session.Store
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(accounts *services.AccountService, sessions *session.Store) *DashboardHandler {
	return &DashboardHandler{
		accounts: accounts,
		sessions: sessions,
	}
}

// RegisterRoutes registers the dashboard route. The router is expected
// to carry the session guard.
func (h *DashboardHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/dashboard/", h.HandleDashboard)
}

// HandleDashboard shows the profile for the session's UID. A missing
// profile is replaced by an in-memory default, and store failures are
// reported without blocking the render.
func (h *DashboardHandler) HandleDashboard(c *fiber.Ctx) error {
	uid, _ := c.Locals(middleware.SessionUID).(string)
	email, _ := c.Locals(middleware.SessionEmail).(string)

	bind := fiber.Map{
		"Messages": popFlash(c, h.sessions),
	}

	profile, err := h.accounts.GetProfile(c.UserContext(), uid, email)
	if err != nil {
		log.Printf("Error loading profile for %s: %v", uid, err)
		bind["Error"] = "could not load your profile, showing defaults"
	}
	bind["Perfil"] = profile

	return c.Render("dashboard", bind)
}
