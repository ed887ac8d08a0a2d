package journal

import (
	"context"
	"errors"
	"time"

	"edutalks/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for journal events.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}

var ErrInvalidEvent = errors.New("journal: invalid event")

// Service records session lifecycle events. It implements calls.Journal.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("journal: repository not configured")
	}
	if e.Kind == "" || e.Status == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record converts a controller event and appends it.
func (s *Service) Record(ctx context.Context, ev calls.LifecycleEvent) error {
	return s.Append(ctx, Event{
		Kind:            ev.Kind,
		Generation:      ev.Generation,
		CallID:          ev.CallID,
		CalleeID:        ev.CalleeID,
		Status:          ev.Status,
		DurationSeconds: ev.DurationSeconds,
		Stars:           ev.Stars,
		Reason:          ev.Reason,
		Error:           ev.Error,
		CreatedAt:       ev.At,
	})
}

func (s *Service) List(ctx context.Context, q Query) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("journal: repository not configured")
	}
	return s.repo.List(ctx, q)
}
