package models

import "time"

// DefaultRole is assigned to every profile created at registration time.
const DefaultRole = "learner"

// Profile represents a user profile document stored in the "perfiles"
// collection, keyed by the identity provider's UID.
type Profile struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email" validate:"required,email"`
	Role         string    `json:"rol"`
	RegisteredAt time.Time `json:"fecha_registro"`
}

// ProfileFromFields rebuilds a Profile from a raw document read.
// Missing or mistyped fields are left at their zero value.
func ProfileFromFields(uid string, fields map[string]any) Profile {
	p := Profile{UID: uid}
	if v, ok := fields["email"].(string); ok {
		p.Email = v
	}
	if v, ok := fields["rol"].(string); ok {
		p.Role = v
	}
	if v, ok := fields["fecha_registro"].(time.Time); ok {
		p.RegisteredAt = v
	}
	return p
}
