// Package actor provides a universal pattern for identifying and tracking
// the user/system performing actions across the service.
//
// This package is used for:
// - Audit stamps on records (create_by_id, update_by_id)
// - Audit logging (who performed an action)
package actor

import (
	"context"
	"fmt"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID int64 `json:"id"`

	// UserName is the actor's login name
	UserName string `json:"user_name"`

	// DisplayName is the actor's display name
	DisplayName string `json:"display_name"`

	// RoleCode is the actor's role (optional, for display purposes)
	RoleCode string `json:"role_code,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%d)", a.UserName, a.ID)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// MustFromContext retrieves the Actor from the context.
// Panics if no actor is present. Use only when actor is guaranteed to exist.
func MustFromContext(ctx context.Context) *Actor {
	actor := FromContext(ctx)
	if actor == nil {
		panic("actor not found in context")
	}
	return actor
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs, scheduled tasks, and system-initiated operations.
func SystemActor() *Actor {
	return &Actor{
		ID:          0,
		UserName:    "system",
		DisplayName: "System",
	}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == 0
}

// StampID returns the actor's ID for audit columns, falling back to the
// system actor when no actor is present.
func StampID(ctx context.Context) int64 {
	a := FromContext(ctx)
	if a == nil {
		return 0
	}
	return a.ID
}
