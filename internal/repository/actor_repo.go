// internal/repository/actor_repo.go
package repository

import (
	"context"

	"wallet-engine/internal/domain"
)

// ActorRepository defines the interface for actor data operations.
type ActorRepository interface {
	// CreateActor adds a new actor using the provided DBExecutor.
	CreateActor(ctx context.Context, q DBExecutor, actor *domain.Actor) error
	// GetActorByID retrieves an actor by its ID.
	GetActorByID(ctx context.Context, q DBExecutor, id int64) (*domain.Actor, error)
	// GetActorByIdentifier resolves a phone number, merchant code or agent code.
	GetActorByIdentifier(ctx context.Context, q DBExecutor, identifier string) (*domain.Actor, error)
}
