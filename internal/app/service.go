/**
 * @description
 * This file contains the core orchestration logic for the payout-service.
 * The `Service` struct composes the Razorpay client, the exchange-rate
 * client, and the repository into the two end-to-end workflows: payee
 * registration and the fee-adjusted payout.
 *
 * Key features:
 * - Registration: provider contact -> VPA fund account -> local payee record,
 *   with a pending marker written up front so orphaned provider state is
 *   discoverable by the reconciliation job.
 * - Payout: adjust -> resolve payee -> issue -> append to ledger. Steps run
 *   strictly in order; a failed step aborts the rest and nothing already
 *   completed is rolled back.
 * - Publishes events to RabbitMQ for asynchronous consumers; publishing is
 *   best-effort and never fails a workflow.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For payout reference ids.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/razorpayclient, pkg/exchangerate, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/payctf/payout-service/internal/domain"
	"github.com/payctf/payout-service/internal/store"
	"github.com/payctf/payout-service/pkg/exchangerate"
	"github.com/payctf/payout-service/pkg/rabbitmq"
	"github.com/payctf/payout-service/pkg/razorpayclient"
)

// ErrDuplicatePayout is returned when an idempotency key has already been
// used for an earlier payout.
var ErrDuplicatePayout = errors.New("duplicate payout for idempotency key")

// ErrFundAccountMissing is returned when a resolved payee record carries no
// fund-account id, so no payout destination exists.
var ErrFundAccountMissing = errors.New("fund account ID not found for the user")

const (
	payoutCurrency = "INR"
	payoutMode     = "UPI"
	payoutPurpose  = "refund"

	// EventExchange is the topic exchange payout events are published to.
	EventExchange = "payctf.events"
)

// RateLimiter charges one payout attempt against the subject's bucket and
// decides whether it may proceed.
type RateLimiter interface {
	ConsumePayout(ctx context.Context, key string) (LimitDecision, error)
}

// Service provides the core orchestration logic for payouts.
type Service struct {
	repo               store.Repository
	razorpay           *razorpayclient.Client
	rates              *exchangerate.Client
	eventProducer      rabbitmq.Publisher
	debitAccountNumber string

	rateLimiter RateLimiter
}

// NewService creates a new payout service instance. The event producer may be
// nil when no broker is configured.
func NewService(repo store.Repository, razorpay *razorpayclient.Client, rates *exchangerate.Client, producer rabbitmq.Publisher, debitAccountNumber string) *Service {
	return &Service{
		repo:               repo,
		razorpay:           razorpay,
		rates:              rates,
		eventProducer:      producer,
		debitAccountNumber: debitAccountNumber,
	}
}

// SetPayoutRateLimiter enables distributed rate limiting on payout issuance.
func (s *Service) SetPayoutRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// ConsumePayoutRateLimit charges one payout attempt against the subject's
// bucket. Limiting is fail-open: a limiter error only logs.
func (s *Service) ConsumePayoutRateLimit(ctx context.Context, subject string) (retryAfterSeconds int, limited bool) {
	if s.rateLimiter == nil {
		return 0, false
	}

	decision, err := s.rateLimiter.ConsumePayout(ctx, subject)
	if err != nil {
		log.Printf("level=warn component=app op=rate_limit subject=%s msg=\"limiter unavailable; allowing request\" err=%v", subject, err)
		return 0, false
	}
	if decision.Allowed {
		return 0, false
	}

	retryAfter := int(decision.RetryAfter / time.Second)
	if decision.RetryAfter%time.Second != 0 {
		retryAfter++
	}
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter, true
}

// CreateContact creates a provider contact and returns its id.
func (s *Service) CreateContact(ctx context.Context, contact domain.ContactInfo) (string, error) {
	contactID, err := s.razorpay.CreateContact(ctx, contact)
	if err != nil {
		log.Printf("level=error component=app op=create_contact err=%v", err)
		return "", fmt.Errorf("failed to create contact: %w", err)
	}
	return contactID, nil
}

// CreateFundAccount creates a VPA fund account for an existing contact and
// returns its id.
func (s *Service) CreateFundAccount(ctx context.Context, contactID, vpaAddress string) (string, error) {
	fundAccountID, err := s.razorpay.CreateFundAccount(ctx, contactID, vpaAddress)
	if err != nil {
		log.Printf("level=error component=app op=create_fund_account contact_id=%s err=%v", contactID, err)
		return "", fmt.Errorf("failed to create fund account: %w", err)
	}
	return fundAccountID, nil
}

// RegisterPayee runs the registration workflow: create a provider contact,
// create a VPA fund account linked to it, then persist the payee record at
// the given address key. The record write is an unconditional overwrite.
// There is no compensation on partial failure: a registration that dies after
// the provider calls leaves remote state behind, flagged by its pending
// marker for the reconciliation job.
func (s *Service) RegisterPayee(ctx context.Context, contact domain.ContactInfo, vpaAddress, address string) (string, error) {
	markerID, err := s.repo.CreateRegistrationMarker(ctx, address)
	if err != nil {
		return "", fmt.Errorf("failed to record registration attempt: %w", err)
	}

	contactID, err := s.CreateContact(ctx, contact)
	if err != nil {
		return "", err
	}
	log.Printf("level=info component=app op=register key=%s msg=\"contact created\" contact_id=%s", address, contactID)

	fundAccountID, err := s.CreateFundAccount(ctx, contactID, vpaAddress)
	if err != nil {
		return "", err
	}
	log.Printf("level=info component=app op=register key=%s msg=\"fund account created\" fund_account_id=%s", address, fundAccountID)

	record := &domain.PayeeRecord{
		Name:          contact.Name,
		Email:         contact.Email,
		Phone:         contact.Contact,
		ContactID:     contactID,
		FundAccountID: fundAccountID,
		VPAAddress:    vpaAddress,
		Address:       address,
	}
	if err := s.repo.SavePayee(ctx, address, record); err != nil {
		log.Printf("level=error component=app op=register key=%s msg=\"payee record write failed; provider state orphaned\" contact_id=%s fund_account_id=%s err=%v", address, contactID, fundAccountID, err)
		return "", fmt.Errorf("failed to save payee record: %w", err)
	}

	if err := s.repo.CompleteRegistrationMarker(ctx, markerID, contactID, fundAccountID); err != nil {
		// The registration itself succeeded; a stale marker only causes a
		// spurious orphan report later.
		log.Printf("level=warn component=app op=register key=%s msg=\"marker completion failed\" marker_id=%s err=%v", address, markerID, err)
	}

	s.publishEvent(ctx, "payee.registered", map[string]string{
		"key":             address,
		"contact_id":      contactID,
		"fund_account_id": fundAccountID,
	})

	return fundAccountID, nil
}

// LookupPayee returns the payee record stored at the given key.
func (s *Service) LookupPayee(ctx context.Context, key string) (*domain.PayeeRecord, error) {
	return s.repo.GetPayee(ctx, key)
}

// PayoutHistory returns the ordered payout entries recorded for a key.
func (s *Service) PayoutHistory(ctx context.Context, key string) ([]domain.PayoutResult, error) {
	return s.repo.GetPayoutHistory(ctx, key)
}

// IssuePayout submits one payout for an already-adjusted amount in paise.
// The idempotency key is claimed locally before the provider call and
// forwarded to the provider; a key seen before fails with
// ErrDuplicatePayout instead of moving money twice.
func (s *Service) IssuePayout(ctx context.Context, fundAccountID string, amountPaise int64, idempotencyKey string, notes map[string]string) (domain.PayoutResult, error) {
	reserved, err := s.repo.ReservePayoutKey(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check payout idempotency: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicatePayout
	}

	req := razorpayclient.PayoutRequest{
		AccountNumber:     s.debitAccountNumber,
		FundAccountID:     fundAccountID,
		Amount:            amountPaise,
		Currency:          payoutCurrency,
		Mode:              payoutMode,
		Purpose:           payoutPurpose,
		QueueIfLowBalance: true,
		ReferenceID:       uuid.NewString(),
		Notes:             notes,
	}

	result, err := s.razorpay.CreatePayout(ctx, req, idempotencyKey)
	if err != nil {
		log.Printf("level=error component=app op=issue_payout fund_account_id=%s amount=%d err=%v", fundAccountID, amountPaise, err)
		// Free the key so the caller can retry the same logical payout.
		if releaseErr := s.repo.ReleasePayoutKey(ctx, idempotencyKey); releaseErr != nil {
			log.Printf("level=warn component=app op=issue_payout msg=\"failed to release idempotency key\" key=%s err=%v", idempotencyKey, releaseErr)
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	return result, nil
}

// RecordPayout appends a payout result to the payee's ledger.
func (s *Service) RecordPayout(ctx context.Context, key string, result domain.PayoutResult) error {
	if err := s.repo.AppendPayout(ctx, key, result); err != nil {
		log.Printf("level=error component=app op=record_payout key=%s err=%v", key, err)
		return fmt.Errorf("failed to record payout: %w", err)
	}
	return nil
}

// ProcessPayout runs the fee-adjusted payout workflow for an order:
//  1. Adjust the USD amount into fee-deducted paise.
//  2. Resolve the payee by the order's UPI id, registering one inline when
//     no record exists yet.
//  3. Issue the payout against the payee's fund account.
//  4. Append the provider's result to the payee's ledger.
//
// Any step's failure aborts the remaining steps; completed steps are not
// rolled back (a payout already issued stays issued even if the ledger
// append fails).
func (s *Service) ProcessPayout(ctx context.Context, order domain.PayoutOrder) (domain.PayoutResult, error) {
	adjusted, err := s.AdjustAmount(ctx, order.Amount)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app op=process_payout key=%s amount_usd=%f adjusted_paise=%d", order.UPIID, order.Amount, adjusted)

	payee, err := s.repo.GetPayee(ctx, order.UPIID)
	if errors.Is(err, store.ErrPayeeNotFound) {
		name := order.ContactName
		if name == "" {
			name = order.UPIName
		}
		contact := domain.ContactInfo{Name: name}
		fundAccountID, regErr := s.RegisterPayee(ctx, contact, order.UPIID, order.UPIID)
		if regErr != nil {
			return nil, regErr
		}
		payee = &domain.PayeeRecord{FundAccountID: fundAccountID}
	} else if err != nil {
		return nil, err
	}

	if payee.FundAccountID == "" {
		log.Printf("level=warn component=app op=process_payout key=%s msg=\"payee record has no fund account\"", order.UPIID)
		return nil, ErrFundAccountMissing
	}

	notes := map[string]string{}
	if order.AmountInCrypto != "" {
		notes["amt_in_crypto"] = order.AmountInCrypto
	}
	if order.CryptoCurrency != "" {
		notes["crypto_currency"] = order.CryptoCurrency
	}

	result, err := s.IssuePayout(ctx, payee.FundAccountID, adjusted, order.IdempotencyKey, notes)
	if err != nil {
		return nil, err
	}

	if err := s.RecordPayout(ctx, order.UPIID, result); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, "payout.recorded", map[string]interface{}{
		"key":            order.UPIID,
		"adjusted_paise": adjusted,
		"payout":         result,
	})

	return result, nil
}

// publishEvent emits a best-effort event; failures only log.
func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, EventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=app op=publish_event routing_key=%s err=%v", routingKey, err)
	}
}
