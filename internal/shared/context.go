package shared

import "context"

type clockContextKey struct{}

type actorContextKey struct{}

// ContextWithClock stores the business clock in context.
func ContextWithClock(ctx context.Context, clock *BusinessClock) context.Context {
	return context.WithValue(ctx, clockContextKey{}, clock)
}

// ClockFromContext extracts the business clock from context.
func ClockFromContext(ctx context.Context) *BusinessClock {
	clock, _ := ctx.Value(clockContextKey{}).(*BusinessClock)
	return clock
}

// ClockOr returns the clock carried by ctx, or fallback when none is set.
func ClockOr(ctx context.Context, fallback *BusinessClock) *BusinessClock {
	if clock := ClockFromContext(ctx); clock != nil {
		return clock
	}
	return fallback
}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, userID)
}

// ActorFromContext extracts the acting user id, zero when anonymous.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
