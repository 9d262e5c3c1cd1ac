// Package ticketkey allocates per-company ticket keys of the form "CODE-n".
// Numbering is strictly increasing per company and a number is never reused,
// even after soft deletes. Allocation must run inside the same transaction
// that inserts the ticket, under an exclusive lock on the company row.
package ticketkey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "helpdesk/internal/errors"
	"helpdesk/internal/models"
)

// Allocator hands out the next ticket key for a company. Implementations must
// serialize allocations per company while leaving other companies unblocked.
type Allocator interface {
	Allocate(ctx context.Context, tx *gorm.DB, companyID uint) (string, error)
}

// LockingAllocator locks the company row (SELECT ... FOR UPDATE) and scans
// the existing keys for the highest suffix. Concurrent allocations for the
// same company queue on the row lock; different companies proceed
// independently.
type LockingAllocator struct {
	lg *zap.SugaredLogger
}

func NewLockingAllocator(lg *zap.SugaredLogger) *LockingAllocator {
	return &LockingAllocator{lg: lg}
}

var _ Allocator = (*LockingAllocator)(nil)

func (a *LockingAllocator) Allocate(ctx context.Context, tx *gorm.DB, companyID uint) (string, error) {
	var company models.Company
	err := lockForUpdate(tx.WithContext(ctx)).First(&company, "id = ?", companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.NewNotFoundError("company not found")
	}
	if err != nil {
		if isLockWaitFailure(err) {
			return "", apperrors.NewConflictError("ticket key allocation contended", err.Error())
		}
		return "", fmt.Errorf("lock company %d: %w", companyID, err)
	}

	max, err := maxSequence(ctx, tx, company.ID, company.Code)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s-%d", company.Code, max+1)
	a.lg.Debugw("allocated ticket key", "company_id", company.ID, "key", key)
	return key, nil
}

// maxSequence scans every key ever issued under the company's prefix,
// including soft-deleted tickets, so rolled-back or deleted numbers are
// skipped rather than reissued.
func maxSequence(ctx context.Context, tx *gorm.DB, companyID uint, code string) (int, error) {
	var keys []string
	err := tx.WithContext(ctx).Unscoped().Model(&models.Ticket{}).
		Where("company_id = ? AND ticket_key LIKE ?", companyID, code+"-%").
		Pluck("ticket_key", &keys).Error
	if err != nil {
		return 0, fmt.Errorf("scan ticket keys for %q: %w", code, err)
	}
	max := 0
	for _, k := range keys {
		if n, ok := ParseSequence(code, k); ok && n > max {
			max = n
		}
	}
	return max, nil
}

// ParseSequence extracts the numeric suffix of a key under the given company
// code. Keys not matching "code-<digits>" are ignored.
func ParseSequence(code, key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, code+"-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// lockForUpdate applies SELECT ... FOR UPDATE on dialects that support it.
// SQLite, which backs the test suite, has single-writer semantics and rejects
// the clause.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// isLockWaitFailure recognizes lock-wait timeouts, deadlocks and
// serialization failures, all of which are safe to retry with a fresh
// transaction.
func isLockWaitFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01": // lock_not_available, serialization_failure, deadlock_detected
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}
