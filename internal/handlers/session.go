package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"tareas/internal/flash"
)

// addFlash stores a one-shot notice for the next rendered page.
func addFlash(c *fiber.Ctx, sessions *session.Store, level, text string) {
	sess, err := sessions.Get(c)
	if err != nil {
		log.Printf("Failed to load session for flash message: %v", err)
		return
	}
	flash.Add(sess, level, text)
	if err := sess.Save(); err != nil {
		log.Printf("Failed to save session: %v", err)
	}
}

// popFlash drains the pending notices so they render exactly once.
func popFlash(c *fiber.Ctx, sessions *session.Store) []flash.Message {
	sess, err := sessions.Get(c)
	if err != nil {
		log.Printf("Failed to load session for flash messages: %v", err)
		return nil
	}
	msgs := flash.Pop(sess)
	if len(msgs) > 0 {
		if err := sess.Save(); err != nil {
			log.Printf("Failed to save session: %v", err)
		}
	}
	return msgs
}
