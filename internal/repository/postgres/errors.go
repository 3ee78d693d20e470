// internal/repository/postgres/errors.go
package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"wallet-engine/internal/util"
)

// PostgreSQL error codes the engine reacts to.
const (
	codeUniqueViolation  pq.ErrorCode = "23505"
	codeLockNotAvailable pq.ErrorCode = "55P03"
	codeDeadlockDetected pq.ErrorCode = "40P01"
	codeQueryCanceled    pq.ErrorCode = "57014"
)

// mapError translates driver errors into application errors. Unknown errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return util.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeQueryCanceled:
			return errors.Join(util.ErrLockTimeout, err)
		case codeUniqueViolation:
			return errors.Join(util.ErrDuplicateEntry, err)
		}
	}
	return err
}
