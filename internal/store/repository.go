/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the payout-service needs: the `userdata` payee documents, the
 * `payouts` append-only ledgers, registration markers, and payout
 * idempotency reservations. Defining an interface decouples the orchestration
 * logic from PostgreSQL and lets tests substitute the in-memory
 * implementation.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/payctf/payout-service/internal/domain"
)

var (
	ErrPayeeNotFound  = errors.New("payee not found")
	ErrMarkerNotFound = errors.New("registration marker not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payee record methods. SavePayee is an unconditional overwrite: the
	// record key is unique per payee and last write wins.
	GetPayee(ctx context.Context, key string) (*domain.PayeeRecord, error)
	SavePayee(ctx context.Context, key string, record *domain.PayeeRecord) error

	// Ledger methods. AppendPayout must be atomic: create-with-one-entry when
	// the ledger is absent, append otherwise, in a single round trip.
	AppendPayout(ctx context.Context, key string, result domain.PayoutResult) error
	GetPayoutHistory(ctx context.Context, key string) ([]domain.PayoutResult, error)

	// Registration marker methods, used by the orphan reconciliation job.
	CreateRegistrationMarker(ctx context.Context, key string) (string, error)
	CompleteRegistrationMarker(ctx context.Context, markerID, contactID, fundAccountID string) error
	FindStalePendingRegistrations(ctx context.Context, olderThan time.Duration) ([]domain.RegistrationMarker, error)

	// Payout idempotency methods. ReservePayoutKey returns false when the key
	// has already been used; ReleasePayoutKey frees a reservation after a
	// failed provider call so a retry with the same key can proceed.
	ReservePayoutKey(ctx context.Context, idempotencyKey string) (bool, error)
	ReleasePayoutKey(ctx context.Context, idempotencyKey string) error
}
