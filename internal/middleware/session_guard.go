package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"tareas/internal/flash"
)

// Session field names shared between the guard and the handlers.
const (
	SessionUID     = "uid"
	SessionEmail   = "email"
	SessionIDToken = "id_token"
)

// AuthRequired is a Fiber middleware enforcing an authenticated session.
// Requests without a UID in the session are redirected to the login page
// and the wrapped handler never runs; authenticated requests pass
// through unchanged, with uid and email exposed via Locals.
func AuthRequired(sessions *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c)
		if err != nil {
			log.Printf("Failed to load session: %v", err)
			return c.Redirect("/login/")
		}

		uid, _ := sess.Get(SessionUID).(string)
		if uid == "" {
			log.Printf("Warning: unauthenticated request to %s", c.Path())
			flash.Add(sess, flash.LevelWarning, "you must sign in to continue")
			if err := sess.Save(); err != nil {
				log.Printf("Failed to save session: %v", err)
			}
			return c.Redirect("/login/")
		}

		email, _ := sess.Get(SessionEmail).(string)
		c.Locals(SessionUID, uid)
		c.Locals(SessionEmail, email)

		return c.Next()
	}
}
