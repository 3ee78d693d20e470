// internal/repository/postgres/actor_pg.go
package postgres

import (
	"context"
	"fmt"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"

	"github.com/jmoiron/sqlx"
)

const actorColumns = `id, phone_number, email, display_name, role, verification_level, pin_hash,
	merchant_code, agent_code, webhook_url, is_active, created_at, updated_at`

// ActorRepository implements repository.ActorRepository for PostgreSQL.
type ActorRepository struct{}

// NewActorRepository creates a new ActorRepository.
// The db parameter is not stored in the struct, but passed to methods.
func NewActorRepository(db *sqlx.DB) repository.ActorRepository {
	return &ActorRepository{}
}

// CreateActor inserts a new actor into the database using the provided DBExecutor.
func (r *ActorRepository) CreateActor(ctx context.Context, q repository.DBExecutor, actor *domain.Actor) error {
	query := `INSERT INTO actors (phone_number, email, display_name, role, verification_level, pin_hash,
                  merchant_code, agent_code, webhook_url, is_active, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		actor.PhoneNumber, actor.Email, actor.DisplayName, actor.Role, actor.VerificationLevel, actor.PinHash,
		actor.MerchantCode, actor.AgentCode, actor.WebhookURL, actor.IsActive, actor.CreatedAt, actor.UpdatedAt,
	).Scan(&actor.ID)
	if err != nil {
		return fmt.Errorf("failed to create actor: %w", mapError(err))
	}
	return nil
}

// GetActorByID retrieves an actor by its ID using the provided DBExecutor.
func (r *ActorRepository) GetActorByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Actor, error) {
	var actor domain.Actor
	query := `SELECT ` + actorColumns + ` FROM actors WHERE id = $1`
	if err := q.GetContext(ctx, &actor, query, id); err != nil {
		return nil, fmt.Errorf("failed to get actor by ID %d: %w", id, mapError(err))
	}
	return &actor, nil
}

// GetActorByIdentifier resolves a phone number, merchant code or agent code to an actor.
func (r *ActorRepository) GetActorByIdentifier(ctx context.Context, q repository.DBExecutor, identifier string) (*domain.Actor, error) {
	var actor domain.Actor
	query := `SELECT ` + actorColumns + ` FROM actors
              WHERE phone_number = $1 OR merchant_code = $1 OR agent_code = $1
              LIMIT 1`
	if err := q.GetContext(ctx, &actor, query, identifier); err != nil {
		return nil, fmt.Errorf("failed to get actor by identifier '%s': %w", identifier, mapError(err))
	}
	return &actor, nil
}
