/**
 * @description
 * This file provides an in-memory implementation of the `Repository`
 * interface. It backs the test suites and is handy for running the gateway
 * locally without a database. Semantics mirror the Postgres implementation:
 * overwriting payee saves, atomic ledger appends, single-claim idempotency
 * reservations.
 *
 * @dependencies
 * - context, sync, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/payctf/payout-service/internal/domain"
)

// MemoryRepository is a concurrency-safe, map-backed Repository.
type MemoryRepository struct {
	mu           sync.Mutex
	payees       map[string]domain.PayeeRecord
	ledgers      map[string][]domain.PayoutResult
	markers      map[string]*domain.RegistrationMarker
	reservations map[string]struct{}
	nextMarkerID int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payees:       make(map[string]domain.PayeeRecord),
		ledgers:      make(map[string][]domain.PayoutResult),
		markers:      make(map[string]*domain.RegistrationMarker),
		reservations: make(map[string]struct{}),
	}
}

func (r *MemoryRepository) GetPayee(_ context.Context, key string) (*domain.PayeeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.payees[key]
	if !ok {
		return nil, ErrPayeeNotFound
	}
	return &record, nil
}

func (r *MemoryRepository) SavePayee(_ context.Context, key string, record *domain.PayeeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payees[key] = *record
	return nil
}

func (r *MemoryRepository) AppendPayout(_ context.Context, key string, result domain.PayoutResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := make(domain.PayoutResult, len(result))
	copy(entry, result)
	r.ledgers[key] = append(r.ledgers[key], entry)
	return nil
}

func (r *MemoryRepository) GetPayoutHistory(_ context.Context, key string) ([]domain.PayoutResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]domain.PayoutResult, len(r.ledgers[key]))
	copy(history, r.ledgers[key])
	return history, nil
}

func (r *MemoryRepository) CreateRegistrationMarker(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMarkerID++
	id := fmt.Sprintf("marker-%d", r.nextMarkerID)
	now := time.Now().UTC()
	r.markers[id] = &domain.RegistrationMarker{
		ID:        id,
		PayeeKey:  key,
		Status:    domain.RegistrationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (r *MemoryRepository) CompleteRegistrationMarker(_ context.Context, markerID, contactID, fundAccountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	marker, ok := r.markers[markerID]
	if !ok {
		return ErrMarkerNotFound
	}
	marker.Status = domain.RegistrationCompleted
	marker.ContactID = &contactID
	marker.FundAccountID = &fundAccountID
	marker.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) FindStalePendingRegistrations(_ context.Context, olderThan time.Duration) ([]domain.RegistrationMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var stale []domain.RegistrationMarker
	for _, marker := range r.markers {
		if marker.Status == domain.RegistrationPending && marker.CreatedAt.Before(cutoff) {
			stale = append(stale, *marker)
		}
	}
	return stale, nil
}

func (r *MemoryRepository) ReservePayoutKey(_ context.Context, idempotencyKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reservations[idempotencyKey]; exists {
		return false, nil
	}
	r.reservations[idempotencyKey] = struct{}{}
	return true, nil
}

func (r *MemoryRepository) ReleasePayoutKey(_ context.Context, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reservations, idempotencyKey)
	return nil
}
