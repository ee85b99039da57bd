package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/payctf/payout-service/internal/domain"
	"github.com/payctf/payout-service/internal/store"
	"github.com/payctf/payout-service/pkg/exchangerate"
	"github.com/payctf/payout-service/pkg/razorpayclient"
)

// fakeRazorpay serves the three provider endpoints the gateway calls and
// records how many payouts were issued.
type fakeRazorpay struct {
	mux           *http.ServeMux
	payoutsIssued int
	failPayouts   bool
}

func newFakeRazorpay() *fakeRazorpay {
	f := &fakeRazorpay{mux: http.NewServeMux()}
	f.mux.HandleFunc("/v1/contacts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cont_test123","entity":"contact"}`))
	})
	f.mux.HandleFunc("/v1/fund_accounts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"fa_test123","entity":"fund_account"}`))
	})
	f.mux.HandleFunc("/v1/payouts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if f.failPayouts {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"code":"SERVER_ERROR","description":"provider unavailable"}}`))
			return
		}
		f.payoutsIssued++
		w.Write([]byte(`{"id":"pout_test123","entity":"payout","status":"queued"}`))
	})
	return f
}

func newRateServer(t *testing.T, conversionResult float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":            "success",
			"conversion_rate":   83.0,
			"conversion_result": conversionResult,
		})
	}))
}

func newTestService(t *testing.T, repo store.Repository, providerURL, rateURL string) *Service {
	t.Helper()
	razorpay := razorpayclient.NewClient(providerURL, "rzp_test_key", "rzp_test_secret")
	rates := exchangerate.NewClient(rateURL, "test-api-key")
	return NewService(repo, razorpay, rates, nil, "2323230000118276")
}

func TestRegisterPayeeStoresRecordAndOverwrites(t *testing.T) {
	provider := newFakeRazorpay()
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()
	rateSrv := newRateServer(t, 5000)
	defer rateSrv.Close()

	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, providerSrv.URL, rateSrv.URL)
	ctx := context.Background()

	contact := domain.ContactInfo{Name: "A", Email: "a@x.com", Contact: "123"}
	fundAccountID, err := svc.RegisterPayee(ctx, contact, "a@bank", "addr1")
	if err != nil {
		t.Fatalf("RegisterPayee returned error: %v", err)
	}
	if fundAccountID != "fa_test123" {
		t.Fatalf("expected fund account id fa_test123, got %q", fundAccountID)
	}

	payee, err := svc.LookupPayee(ctx, "addr1")
	if err != nil {
		t.Fatalf("LookupPayee returned error: %v", err)
	}
	if payee.Name != "A" || payee.VPAAddress != "a@bank" || payee.ContactID != "cont_test123" {
		t.Fatalf("unexpected payee record: %+v", payee)
	}

	// Re-registration with the same key overwrites the record in place.
	contact.Name = "B"
	if _, err := svc.RegisterPayee(ctx, contact, "b@bank", "addr1"); err != nil {
		t.Fatalf("re-registration returned error: %v", err)
	}
	payee, err = svc.LookupPayee(ctx, "addr1")
	if err != nil {
		t.Fatalf("LookupPayee after overwrite returned error: %v", err)
	}
	if payee.Name != "B" || payee.VPAAddress != "b@bank" {
		t.Fatalf("expected overwritten record, got %+v", payee)
	}
}

func TestLookupPayeeUnknownKey(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, "http://unused.invalid", "http://unused.invalid")

	if _, err := svc.LookupPayee(context.Background(), "unknown"); !errors.Is(err, store.ErrPayeeNotFound) {
		t.Fatalf("expected ErrPayeeNotFound, got %v", err)
	}
}

func TestProcessPayoutHappyPath(t *testing.T) {
	provider := newFakeRazorpay()
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()
	rateSrv := newRateServer(t, 5000)
	defer rateSrv.Close()

	repo := store.NewMemoryRepository()
	seedPayee(t, repo, "payee@upi")
	svc := newTestService(t, repo, providerSrv.URL, rateSrv.URL)
	ctx := context.Background()

	result, err := svc.ProcessPayout(ctx, domain.PayoutOrder{
		UPIID:          "payee@upi",
		Amount:         60,
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("ProcessPayout returned error: %v", err)
	}

	var payout struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &payout); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if payout.ID != "pout_test123" {
		t.Fatalf("expected provider payout id, got %q", payout.ID)
	}

	history, err := svc.PayoutHistory(ctx, "payee@upi")
	if err != nil {
		t.Fatalf("PayoutHistory returned error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(history))
	}
}

func TestProcessPayoutIssuerFailureLeavesLedgerUnchanged(t *testing.T) {
	provider := newFakeRazorpay()
	provider.failPayouts = true
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()
	rateSrv := newRateServer(t, 5000)
	defer rateSrv.Close()

	repo := store.NewMemoryRepository()
	seedPayee(t, repo, "payee@upi")
	svc := newTestService(t, repo, providerSrv.URL, rateSrv.URL)
	ctx := context.Background()

	if _, err := svc.ProcessPayout(ctx, domain.PayoutOrder{
		UPIID:          "payee@upi",
		Amount:         60,
		IdempotencyKey: "key-1",
	}); err == nil {
		t.Fatal("expected issuer failure to abort the workflow")
	}

	history, err := svc.PayoutHistory(ctx, "payee@upi")
	if err != nil {
		t.Fatalf("PayoutHistory returned error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty ledger after issuer failure, got %d entries", len(history))
	}

	// The failed attempt released its idempotency key, so a retry proceeds.
	provider.failPayouts = false
	if _, err := svc.ProcessPayout(ctx, domain.PayoutOrder{
		UPIID:          "payee@upi",
		Amount:         60,
		IdempotencyKey: "key-1",
	}); err != nil {
		t.Fatalf("retry after issuer failure returned error: %v", err)
	}
}

func TestProcessPayoutAdjusterFailureSkipsIssuer(t *testing.T) {
	provider := newFakeRazorpay()
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()
	// 100000 falls into the tier gap and must be rejected.
	rateSrv := newRateServer(t, 100000)
	defer rateSrv.Close()

	repo := store.NewMemoryRepository()
	seedPayee(t, repo, "payee@upi")
	svc := newTestService(t, repo, providerSrv.URL, rateSrv.URL)

	_, err := svc.ProcessPayout(context.Background(), domain.PayoutOrder{
		UPIID:          "payee@upi",
		Amount:         60,
		IdempotencyKey: "key-1",
	})
	if !errors.Is(err, ErrInvalidConversionResult) {
		t.Fatalf("expected ErrInvalidConversionResult, got %v", err)
	}
	if provider.payoutsIssued != 0 {
		t.Fatalf("expected no payout to be issued, got %d", provider.payoutsIssued)
	}
}

func TestProcessPayoutRegistersInlinePayee(t *testing.T) {
	provider := newFakeRazorpay()
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()
	rateSrv := newRateServer(t, 5000)
	defer rateSrv.Close()

	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, providerSrv.URL, rateSrv.URL)
	ctx := context.Background()

	if _, err := svc.ProcessPayout(ctx, domain.PayoutOrder{
		UPIID:          "new@upi",
		UPIName:        "New Payee",
		ContactName:    "New Payee",
		AmountInCrypto: "0.002",
		CryptoCurrency: "ETH",
		Amount:         60,
		IdempotencyKey: "key-1",
	}); err != nil {
		t.Fatalf("ProcessPayout returned error: %v", err)
	}

	payee, err := svc.LookupPayee(ctx, "new@upi")
	if err != nil {
		t.Fatalf("expected inline registration to store a payee record: %v", err)
	}
	if payee.FundAccountID != "fa_test123" {
		t.Fatalf("unexpected fund account id %q", payee.FundAccountID)
	}
}

func TestIssuePayoutRejectsDuplicateIdempotencyKey(t *testing.T) {
	provider := newFakeRazorpay()
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()

	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, providerSrv.URL, "http://unused.invalid")
	ctx := context.Background()

	if _, err := svc.IssuePayout(ctx, "fa_test123", 485000, "key-dup", nil); err != nil {
		t.Fatalf("first payout returned error: %v", err)
	}
	if _, err := svc.IssuePayout(ctx, "fa_test123", 485000, "key-dup", nil); !errors.Is(err, ErrDuplicatePayout) {
		t.Fatalf("expected ErrDuplicatePayout, got %v", err)
	}
	if provider.payoutsIssued != 1 {
		t.Fatalf("expected exactly one provider payout, got %d", provider.payoutsIssued)
	}
}

func TestRecordPayoutAppendsInOrderWithoutDeduplication(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, "http://unused.invalid", "http://unused.invalid")
	ctx := context.Background()

	entries := []string{
		`{"id":"pout_1"}`,
		`{"id":"pout_2"}`,
		`{"id":"pout_2"}`,
		`{"id":"pout_3"}`,
	}
	for _, entry := range entries {
		if err := svc.RecordPayout(ctx, "payee@upi", domain.PayoutResult(entry)); err != nil {
			t.Fatalf("RecordPayout returned error: %v", err)
		}
	}

	history, err := svc.PayoutHistory(ctx, "payee@upi")
	if err != nil {
		t.Fatalf("PayoutHistory returned error: %v", err)
	}
	if len(history) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(history))
	}
	for i, entry := range entries {
		if string(history[i]) != entry {
			t.Fatalf("entry %d out of order: expected %s, got %s", i, entry, history[i])
		}
	}
}

// stubLimiter returns a canned decision or error for every attempt and
// records the keys it was asked about.
type stubLimiter struct {
	decision LimitDecision
	err      error
	keys     []string
}

func (s *stubLimiter) ConsumePayout(_ context.Context, key string) (LimitDecision, error) {
	s.keys = append(s.keys, key)
	return s.decision, s.err
}

func TestConsumePayoutRateLimitWithoutLimiterAllows(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, "http://unused.invalid", "http://unused.invalid")

	if retryAfter, limited := svc.ConsumePayoutRateLimit(context.Background(), "fa_test123"); limited || retryAfter != 0 {
		t.Fatalf("expected unlimited service to allow, got limited=%v retryAfter=%d", limited, retryAfter)
	}
}

func TestConsumePayoutRateLimitFailsOpenOnLimiterError(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, "http://unused.invalid", "http://unused.invalid")
	limiter := &stubLimiter{err: errors.New("redis unavailable")}
	svc.SetPayoutRateLimiter(limiter)

	retryAfter, limited := svc.ConsumePayoutRateLimit(context.Background(), "fa_test123")
	if limited || retryAfter != 0 {
		t.Fatalf("expected limiter error to fail open, got limited=%v retryAfter=%d", limited, retryAfter)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "fa_test123" {
		t.Fatalf("expected limiter to be consulted for the subject, got %v", limiter.keys)
	}
}

func TestConsumePayoutRateLimitRoundsRetryAfterUp(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(t, repo, "http://unused.invalid", "http://unused.invalid")
	svc.SetPayoutRateLimiter(&stubLimiter{
		decision: LimitDecision{Allowed: false, RetryAfter: 2500 * time.Millisecond},
	})

	retryAfter, limited := svc.ConsumePayoutRateLimit(context.Background(), "fa_test123")
	if !limited {
		t.Fatal("expected the attempt to be limited")
	}
	if retryAfter != 3 {
		t.Fatalf("expected retry-after rounded up to 3s, got %d", retryAfter)
	}
}

func TestRedisPayoutRateLimiterAllowsWhenDisabled(t *testing.T) {
	tests := []struct {
		name    string
		limiter *RedisPayoutRateLimiter
	}{
		{name: "nil client", limiter: NewRedisPayoutRateLimiter(nil, "payctf:rate_limit", 5)},
		{name: "zero limit", limiter: NewRedisPayoutRateLimiter(nil, "payctf:rate_limit", 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := tc.limiter.ConsumePayout(context.Background(), "fa_test123")
			if err != nil {
				t.Fatalf("ConsumePayout returned error: %v", err)
			}
			if !decision.Allowed {
				t.Fatal("expected a disabled limiter to allow")
			}
		})
	}
}

func TestProcessPayoutRejectsPayeeWithoutFundAccount(t *testing.T) {
	provider := newFakeRazorpay()
	providerSrv := httptest.NewServer(provider.mux)
	defer providerSrv.Close()
	rateSrv := newRateServer(t, 5000)
	defer rateSrv.Close()

	repo := store.NewMemoryRepository()
	if err := repo.SavePayee(context.Background(), "broken@upi", &domain.PayeeRecord{
		Name:       "Broken",
		ContactID:  "cont_seed",
		VPAAddress: "broken@upi",
		Address:    "broken@upi",
	}); err != nil {
		t.Fatalf("failed to seed payee: %v", err)
	}
	svc := newTestService(t, repo, providerSrv.URL, rateSrv.URL)

	_, err := svc.ProcessPayout(context.Background(), domain.PayoutOrder{
		UPIID:          "broken@upi",
		Amount:         60,
		IdempotencyKey: "key-1",
	})
	if !errors.Is(err, ErrFundAccountMissing) {
		t.Fatalf("expected ErrFundAccountMissing, got %v", err)
	}
	if provider.payoutsIssued != 0 {
		t.Fatalf("expected no payout to be issued, got %d", provider.payoutsIssued)
	}
}

func seedPayee(t *testing.T, repo store.Repository, key string) {
	t.Helper()
	err := repo.SavePayee(context.Background(), key, &domain.PayeeRecord{
		Name:          "Seeded",
		ContactID:     "cont_seed",
		FundAccountID: "fa_test123",
		VPAAddress:    key,
		Address:       key,
	})
	if err != nil {
		t.Fatalf("failed to seed payee: %v", err)
	}
}
