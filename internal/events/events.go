package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bakery-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is produced after a state transition has been committed.
type Event struct {
	ID         string              `json:"id"`
	Name       models.ActivityType `json:"name"`
	OccurredAt time.Time           `json:"occurred_at"`
	ActorID    *uint               `json:"actor_id,omitempty"`
	ActorName  string              `json:"actor_name,omitempty"`
	EntityType string              `json:"entity_type"`
	EntityID   uint                `json:"entity_id"`
	Summary    string              `json:"summary"`
	Payload    any                 `json:"payload,omitempty"`
}

func New(name models.ActivityType, entityType string, entityID uint, summary string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		OccurredAt: time.Now().UTC(),
		EntityType: entityType,
		EntityID:   entityID,
		Summary:    summary,
		Payload:    payload,
	}
}

func (e Event) WithActor(id *uint, name string) Event {
	e.ActorID = id
	e.ActorName = name
	return e
}

type Handler func(ctx context.Context, evt Event) error

// SubscriberError reports one failed subscriber. Bus.Publish joins them.
type SubscriberError struct {
	Subscriber string
	Event      models.ActivityType
	Err        error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Subscriber, e.Event, e.Err)
}

func (e *SubscriberError) Unwrap() error {
	return e.Err
}

type subscription struct {
	name string
	fn   Handler
}

// Bus dispatches events to subscribers in registration order. A failing or panicking
// subscriber does not stop the others.
type Bus struct {
	mu     sync.RWMutex
	byName map[models.ActivityType][]subscription
	all    []subscription
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		byName: make(map[models.ActivityType][]subscription),
		log:    log,
	}
}

func (b *Bus) Subscribe(name models.ActivityType, subscriber string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byName[name] = append(b.byName[name], subscription{name: subscriber, fn: fn})
}

func (b *Bus) SubscribeAll(subscriber string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, subscription{name: subscriber, fn: fn})
}

func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.byName[evt.Name])+len(b.all))
	subs = append(subs, b.byName[evt.Name]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := b.dispatch(ctx, s, evt); err != nil {
			b.log.Warn("event subscriber failed",
				zap.String("subscriber", s.name),
				zap.String("event", string(evt.Name)),
				zap.Uint("entity_id", evt.EntityID),
				zap.Error(err))
			errs = append(errs, &SubscriberError{Subscriber: s.name, Event: evt.Name, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) dispatch(ctx context.Context, s subscription, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.fn(ctx, evt)
}

// Warnings flattens a Publish error into messages suitable for an API response.
func Warnings(err error) []string {
	if err == nil {
		return nil
	}
	var out []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
