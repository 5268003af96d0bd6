package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tareas/internal/identity"
	"tareas/internal/models"
	"tareas/internal/store"
)

// IdentityGateway is the sign-up/sign-in surface of the identity
// provider consumed by AccountService.
type IdentityGateway interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (identity.Credentials, error)
}

// EventPublisher publishes lifecycle events. A nil publisher disables
// eventing.
type EventPublisher interface {
	PublishEvent(event string, payload map[string]any) error
}

// AccountService handles registration, sign-in delegation and profile
// reads.
type AccountService struct {
	gateway IdentityGateway
	store   store.DocumentStore
	events  EventPublisher
}

// NewAccountService creates a new AccountService.
func NewAccountService(gateway IdentityGateway, docs store.DocumentStore, events EventPublisher) *AccountService {
	return &AccountService{
		gateway: gateway,
		store:   docs,
		events:  events,
	}
}

// Register creates an account at the identity provider and writes the
// matching profile document keyed by the new UID. There is no
// compensating account delete: if the profile write fails the account
// already exists and the error reports that state.
func (s *AccountService) Register(ctx context.Context, email, password string) (string, error) {
	uid, err := s.gateway.SignUp(ctx, email, password)
	if err != nil {
		return "", err
	}

	fields := store.Fields{
		"email":          email,
		"uid":            uid,
		"rol":            models.DefaultRole,
		"fecha_registro": store.ServerTimestamp,
	}
	if err := s.store.Set(ctx, store.CollectionProfiles, uid, fields); err != nil {
		log.Printf("Account %s created but profile write failed: %v", uid, err)
		return uid, fmt.Errorf("account created but profile could not be saved: %w", err)
	}

	publish(s.events, "user.registered", map[string]any{"uid": uid, "email": email})
	return uid, nil
}

// SignIn exchanges credentials for the account's session data.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (identity.Credentials, error) {
	return s.gateway.SignIn(ctx, email, password)
}

// GetProfile fetches the profile for a UID. A missing document yields an
// in-memory default (role "learner") built from session data, without
// persisting it. Other store failures also yield the default, alongside
// the error, so callers can render whatever is available and report.
func (s *AccountService) GetProfile(ctx context.Context, uid, email string) (models.Profile, error) {
	fallback := models.Profile{UID: uid, Email: email, Role: models.DefaultRole}

	fields, err := s.store.Get(ctx, store.CollectionProfiles, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("failed to load profile %s: %w", uid, err)
	}
	return models.ProfileFromFields(uid, fields), nil
}

// publish sends one event, tolerating a disabled publisher and logging
// failures instead of propagating them.
func publish(events EventPublisher, event string, payload map[string]any) {
	if events == nil {
		return
	}
	if err := events.PublishEvent(event, payload); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", event, err)
	}
}
