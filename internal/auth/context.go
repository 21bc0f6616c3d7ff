package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/appointments"
)

type ctxKey string

const actorKey ctxKey = "booking.actor"

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   uuid.UUID
	Role appointments.Role
}

// WithActor stores the actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.ID != uuid.Nil
}
