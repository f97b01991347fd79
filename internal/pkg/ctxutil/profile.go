package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type profileIDKey struct{}

// WithProfileID records the caller's profile, as asserted by the upstream gateway.
func WithProfileID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(Default(ctx), profileIDKey{}, id)
}

func ProfileID(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(profileIDKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
