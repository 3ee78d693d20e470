// internal/reference/generator.go
package reference

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"

	"github.com/google/uuid"
)

// MaxAttempts is how many candidates Generate tries before giving up.
const MaxAttempts = 5

var prefixes = map[domain.TransactionType]string{
	domain.TransactionTypeTransfer:   "TR",
	domain.TransactionTypeWithdrawal: "CO",
	domain.TransactionTypePayment:    "MP",
	domain.TransactionTypeDeposit:    "DP",
	domain.TransactionTypeCommission: "CM",
}

// Prefix returns the reference prefix for a transaction type.
func Prefix(txType domain.TransactionType) (string, error) {
	p, ok := prefixes[txType]
	if !ok {
		return "", fmt.Errorf("reference: unknown transaction type %q: %w", txType, util.ErrInvalidInput)
	}
	return p, nil
}

// ExistsChecker reports whether a reference has been used. repository.TransactionRepository satisfies it.
type ExistsChecker interface {
	ReferenceExists(ctx context.Context, q repository.DBExecutor, reference string) (bool, error)
}

// Generator produces references of the form PREFIX-xxxxxxxx.
type Generator struct {
	checker ExistsChecker
	random  func() uuid.UUID
	logger  *slog.Logger
}

// NewGenerator creates a Generator backed by random UUIDs.
func NewGenerator(checker ExistsChecker, logger *slog.Logger) *Generator {
	return &Generator{checker: checker, random: uuid.New, logger: logger}
}

// Generate returns a reference not yet present in the store visible through q.
// After MaxAttempts collisions it fails with util.ErrReferenceCollision.
func (g *Generator) Generate(ctx context.Context, q repository.DBExecutor, txType domain.TransactionType) (string, error) {
	prefix, err := Prefix(txType)
	if err != nil {
		return "", err
	}
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		id := g.random()
		candidate := prefix + "-" + hex.EncodeToString(id[:4])

		exists, err := g.checker.ReferenceExists(ctx, q, candidate)
		if err != nil {
			return "", fmt.Errorf("reference: failed to check %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		g.logger.Warn("Reference collision, retrying", "reference", candidate, "attempt", attempt)
	}
	g.logger.Error("Could not generate a unique reference", "type", txType, "attempts", MaxAttempts)
	return "", util.ErrReferenceCollision
}
