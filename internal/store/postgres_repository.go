/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. Payee records and payout ledgers are stored as JSONB documents
 * keyed by the payee key, mirroring the document-store layout the gateway
 * persists to (`userdata` and `payouts`, one row per key).
 *
 * Expected schema:
 *
 *   CREATE TABLE userdata (
 *       payee_key  TEXT PRIMARY KEY,
 *       doc        JSONB NOT NULL,
 *       updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
 *   );
 *   CREATE TABLE payouts (
 *       payee_key  TEXT PRIMARY KEY,
 *       entries    JSONB NOT NULL DEFAULT '[]'::jsonb,
 *       updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
 *   );
 *   CREATE TABLE registration_markers (
 *       id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
 *       payee_key       TEXT NOT NULL,
 *       status          TEXT NOT NULL,
 *       contact_id      TEXT,
 *       fund_account_id TEXT,
 *       created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
 *       updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
 *   );
 *   CREATE TABLE payout_idempotency (
 *       idempotency_key TEXT PRIMARY KEY,
 *       created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
 *   );
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/payctf/payout-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetPayee loads the payee document stored under the given key.
func (r *PostgresRepository) GetPayee(ctx context.Context, key string) (*domain.PayeeRecord, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM userdata WHERE payee_key = $1`, key).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayeeNotFound
		}
		return nil, fmt.Errorf("failed to load payee %q: %w", key, err)
	}

	var record domain.PayeeRecord
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("failed to decode payee document %q: %w", key, err)
	}
	return &record, nil
}

// SavePayee writes the payee document, overwriting any existing record at the
// same key. Last write wins; there is no optimistic-concurrency check.
func (r *PostgresRepository) SavePayee(ctx context.Context, key string, record *domain.PayeeRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode payee document %q: %w", key, err)
	}

	query := `
		INSERT INTO userdata (payee_key, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (payee_key)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, key, doc); err != nil {
		return fmt.Errorf("failed to save payee %q: %w", key, err)
	}
	return nil
}

// AppendPayout appends one payout result to the ledger for the given key,
// creating the ledger row on first use. The upsert keeps the append a single
// atomic round trip, so concurrent payouts for the same key cannot lose
// entries.
func (r *PostgresRepository) AppendPayout(ctx context.Context, key string, result domain.PayoutResult) error {
	query := `
		INSERT INTO payouts (payee_key, entries, updated_at)
		VALUES ($1, jsonb_build_array($2::jsonb), NOW())
		ON CONFLICT (payee_key)
		DO UPDATE SET entries = payouts.entries || EXCLUDED.entries, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, key, []byte(result)); err != nil {
		return fmt.Errorf("failed to append payout for %q: %w", key, err)
	}
	return nil
}

// GetPayoutHistory returns the ordered payout entries recorded for a key. A
// key with no ledger yields an empty history, not an error.
func (r *PostgresRepository) GetPayoutHistory(ctx context.Context, key string) ([]domain.PayoutResult, error) {
	var entries []byte
	err := r.db.QueryRow(ctx, `SELECT entries FROM payouts WHERE payee_key = $1`, key).Scan(&entries)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load payout history for %q: %w", key, err)
	}

	var history []domain.PayoutResult
	if err := json.Unmarshal(entries, &history); err != nil {
		return nil, fmt.Errorf("failed to decode payout history for %q: %w", key, err)
	}
	return history, nil
}

// CreateRegistrationMarker records a pending registration attempt before any
// provider call is made.
func (r *PostgresRepository) CreateRegistrationMarker(ctx context.Context, key string) (string, error) {
	var id string
	query := `
		INSERT INTO registration_markers (payee_key, status)
		VALUES ($1, $2)
		RETURNING id
	`
	if err := r.db.QueryRow(ctx, query, key, domain.RegistrationPending).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to create registration marker for %q: %w", key, err)
	}
	return id, nil
}

// CompleteRegistrationMarker marks a registration attempt as completed and
// records the provider identifiers it produced.
func (r *PostgresRepository) CompleteRegistrationMarker(ctx context.Context, markerID, contactID, fundAccountID string) error {
	query := `
		UPDATE registration_markers
		SET status = $2, contact_id = $3, fund_account_id = $4, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, markerID, domain.RegistrationCompleted, contactID, fundAccountID)
	if err != nil {
		return fmt.Errorf("failed to complete registration marker %s: %w", markerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMarkerNotFound
	}
	return nil
}

// FindStalePendingRegistrations returns pending markers older than the given
// cutoff. These indicate registrations that may have created provider-side
// state without a matching local payee record.
func (r *PostgresRepository) FindStalePendingRegistrations(ctx context.Context, olderThan time.Duration) ([]domain.RegistrationMarker, error) {
	query := `
		SELECT id, payee_key, status, contact_id, fund_account_id, created_at, updated_at
		FROM registration_markers
		WHERE status = $1 AND created_at < NOW() - $2::interval
		ORDER BY created_at
	`
	interval := fmt.Sprintf("%d seconds", int64(olderThan.Seconds()))
	rows, err := r.db.Query(ctx, query, domain.RegistrationPending, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale registrations: %w", err)
	}
	defer rows.Close()

	var markers []domain.RegistrationMarker
	for rows.Next() {
		var m domain.RegistrationMarker
		if err := rows.Scan(&m.ID, &m.PayeeKey, &m.Status, &m.ContactID, &m.FundAccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration marker: %w", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// ReservePayoutKey claims an idempotency key. It returns false when the key
// was already claimed by an earlier payout.
func (r *PostgresRepository) ReservePayoutKey(ctx context.Context, idempotencyKey string) (bool, error) {
	query := `
		INSERT INTO payout_idempotency (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, idempotencyKey)
	if err != nil {
		return false, fmt.Errorf("failed to reserve payout key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleasePayoutKey frees a previously reserved idempotency key.
func (r *PostgresRepository) ReleasePayoutKey(ctx context.Context, idempotencyKey string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM payout_idempotency WHERE idempotency_key = $1`, idempotencyKey); err != nil {
		return fmt.Errorf("failed to release payout key: %w", err)
	}
	return nil
}
