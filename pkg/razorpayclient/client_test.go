package razorpayclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/payctf/payout-service/internal/domain"
)

func TestCreateContactSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cont_abc"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", "key-secret")
	contactID, err := client.CreateContact(context.Background(), domain.ContactInfo{Name: "A"})
	if err != nil {
		t.Fatalf("CreateContact returned error: %v", err)
	}
	if contactID != "cont_abc" {
		t.Fatalf("expected contact id cont_abc, got %q", contactID)
	}
	if gotUser != "key-id" || gotPass != "key-secret" {
		t.Fatalf("expected basic auth credentials, got %q/%q", gotUser, gotPass)
	}
}

func TestCreatePayoutForwardsIdempotencyKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Payout-Idempotency")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pout_abc","status":"queued"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", "key-secret")
	result, err := client.CreatePayout(context.Background(), PayoutRequest{
		AccountNumber:     "2323230000118276",
		FundAccountID:     "fa_abc",
		Amount:            485000,
		Currency:          "INR",
		Mode:              "UPI",
		Purpose:           "refund",
		QueueIfLowBalance: true,
	}, "idem-123")
	if err != nil {
		t.Fatalf("CreatePayout returned error: %v", err)
	}
	if gotKey != "idem-123" {
		t.Fatalf("expected idempotency header idem-123, got %q", gotKey)
	}
	if len(result) == 0 {
		t.Fatal("expected raw payout body")
	}
}

func TestNon2xxReturnsTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"invalid vpa"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", "key-secret")
	_, err := client.CreateFundAccount(context.Background(), "cont_abc", "bad@vpa")
	if err == nil {
		t.Fatal("expected an error for non-2xx response")
	}

	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ErrorResponse, got %T: %v", err, err)
	}
	if apiErr.Err.Code != "BAD_REQUEST_ERROR" {
		t.Fatalf("unexpected error code %q", apiErr.Err.Code)
	}
}
