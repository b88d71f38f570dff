// Package activitymap flattens identity activity events into records that
// audit logs and event buses can store without importing the identity types.
package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-identity"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel    = "identity"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Record is the flattened activity shape
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes Normalize
type Option func(*options)

type options struct {
	channel    string
	objectType string
	now        func() time.Time
}

// WithChannel sets the record channel
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the record object type
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithClock stamps events that carry no occurrence time
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel:    defaultChannel,
		objectType: defaultObjectType,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize converts event into a Record. The actor falls back to the
// account and then to "system".
func Normalize(event identity.ActivityEvent, opts ...Option) Record {
	o := buildOptions(opts)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Record{
		ActorID:    firstNonEmpty(event.Actor.ID, event.AccountID, defaultActorID),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.AccountID),
		Channel:    o.channel,
		Metadata:   metadataFor(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// Sink returns an ActivitySink that normalizes every event and hands the
// record to emit.
func Sink(emit func(ctx context.Context, record Record) error, opts ...Option) identity.ActivitySink {
	return identity.ActivitySinkFunc(func(ctx context.Context, event identity.ActivityEvent) error {
		return emit(ctx, Normalize(event, opts...))
	})
}

// LogSink writes each record to logger at info level
func LogSink(logger identity.Logger, opts ...Option) identity.ActivitySink {
	return Sink(func(_ context.Context, record Record) error {
		logger.Info("activity",
			"verb", record.Verb,
			"actor_id", record.ActorID,
			"object_type", record.ObjectType,
			"object_id", record.ObjectID,
			"channel", record.Channel,
			"metadata", record.Metadata,
		)
		return nil
	}, opts...)
}

func metadataFor(event identity.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+3)
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}
	if event.FromStatus != "" {
		metadata[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		metadata[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
