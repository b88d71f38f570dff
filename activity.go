package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountRegistered      ActivityEventType = "account.registered"
	ActivityEventAccountStatusChanged   ActivityEventType = "account.status.changed"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventEmailVerified          ActivityEventType = "auth.email.verified"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "auth.password.reset"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for transitions not triggered by an account holder
var SystemActor = ActorRef{ID: "system", Type: "system"}

func accountActor(id string) ActorRef {
	return ActorRef{ID: id, Type: "account"}
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity publishes event, failures are logged and dropped
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		resolveLogger(logger).Warn("activity sink error", "event", event.EventType, "error", err)
	}
}
