package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"tareas/internal/flash"
	"tareas/internal/identity"
	"tareas/internal/middleware"
	"tareas/internal/services"
)

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	accounts *services.AccountService
	sessions *session.Store
	validate *validator.Validate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *services.AccountService, sessions *session.Store) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		sessions: sessions,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the public authentication routes.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/registro/", h.HandleRegisterForm)
	router.Post("/registro/", h.HandleRegister)
	router.Get("/login/", h.HandleLoginForm)
	router.Post("/login/", h.HandleLogin)
	router.Get("/logout/", h.HandleLogout)
}

// RegisterRequest represents the registration form.
type RegisterRequest struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
}

// HandleRegisterForm renders the empty registration form.
func (h *AuthHandler) HandleRegisterForm(c *fiber.Ctx) error {
	return c.Render("registro", fiber.Map{})
}

// HandleRegister creates the account and its profile document.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing register form: %v", err)
		return c.Status(fiber.StatusBadRequest).Render("registro", fiber.Map{
			"Error": "invalid form submission",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).Render("registro", fiber.Map{
			"Errors": validationMessages(err),
			"Email":  req.Email,
		})
	}

	uid, err := h.accounts.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		log.Printf("Error registering %s: %v", req.Email, err)
		return c.Render("registro", fiber.Map{
			"Error": fmt.Sprintf("Error: %v", err),
			"Email": req.Email,
		})
	}

	return c.Render("registro", fiber.Map{
		"Mensaje": fmt.Sprintf("user registered successfully with UID: %s", uid),
	})
}

// LoginRequest represents the login form.
type LoginRequest struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

// HandleLoginForm renders the login form, or redirects straight to the
// dashboard when a session already exists.
func (h *AuthHandler) HandleLoginForm(c *fiber.Ctx) error {
	if h.authenticated(c) {
		return c.Redirect("/dashboard/")
	}
	return c.Render("login", fiber.Map{
		"Messages": popFlash(c, h.sessions),
	})
}

// HandleLogin signs the user in and populates the session. An already
// authenticated request is redirected without contacting the provider.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	if h.authenticated(c) {
		return c.Redirect("/dashboard/")
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing login form: %v", err)
		return c.Status(fiber.StatusBadRequest).Render("login", fiber.Map{
			"Error": "invalid form submission",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).Render("login", fiber.Map{
			"Errors": validationMessages(err),
			"Email":  req.Email,
		})
	}

	creds, err := h.accounts.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		log.Printf("Error during login for %s: %v", req.Email, err)
		message := err.Error()
		var idErr *identity.Error
		if errors.As(err, &idErr) {
			message = idErr.UserMessage()
		}
		return c.Status(fiber.StatusUnauthorized).Render("login", fiber.Map{
			"Error": message,
			"Email": req.Email,
		})
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		log.Printf("Failed to load session: %v", err)
		return c.Status(fiber.StatusInternalServerError).Render("login", fiber.Map{
			"Error": "could not start a session, try again",
		})
	}
	sess.Set(middleware.SessionUID, creds.UID)
	sess.Set(middleware.SessionEmail, creds.Email)
	sess.Set(middleware.SessionIDToken, creds.IDToken)
	if err := sess.Save(); err != nil {
		log.Printf("Failed to save session: %v", err)
		return c.Status(fiber.StatusInternalServerError).Render("login", fiber.Map{
			"Error": "could not start a session, try again",
		})
	}

	return c.Redirect("/dashboard/")
}

// HandleLogout clears the session. Safe to call without one.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Printf("Failed to destroy session: %v", err)
		}
	}
	addFlash(c, h.sessions, flash.LevelInfo, "you have signed out")
	return c.Redirect("/login/")
}

// authenticated reports whether the session already carries a UID.
func (h *AuthHandler) authenticated(c *fiber.Ctx) bool {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return false
	}
	uid, _ := sess.Get(middleware.SessionUID).(string)
	return uid != ""
}

// validationMessages flattens validator errors into per-field messages.
func validationMessages(err error) map[string]string {
	messages := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		messages["form"] = err.Error()
		return messages
	}
	for _, e := range validationErrors {
		messages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return messages
}
