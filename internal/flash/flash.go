// Package flash carries one-shot notices across a redirect, stored in
// the browser session and consumed on the next render.
package flash

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2/middleware/session"
)

const sessionKey = "flash_messages"

// Message levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Message is a single user-facing notice.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Add appends a message to the session. The caller saves the session.
func Add(sess *session.Session, level, text string) {
	msgs := decode(sess)
	msgs = append(msgs, Message{Level: level, Text: text})
	if raw, err := json.Marshal(msgs); err == nil {
		sess.Set(sessionKey, string(raw))
	}
}

// Pop removes and returns all pending messages. The caller saves the
// session so the messages are shown exactly once.
func Pop(sess *session.Session) []Message {
	msgs := decode(sess)
	sess.Delete(sessionKey)
	return msgs
}

func decode(sess *session.Session) []Message {
	raw, ok := sess.Get(sessionKey).(string)
	if !ok || raw == "" {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil
	}
	return msgs
}
