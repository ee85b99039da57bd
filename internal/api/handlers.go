/**
 * @description
 * This file contains the HTTP handlers for the payout-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write the HTTP response. The response shapes and status codes are
 * fixed by existing clients: most failures collapse to a generic 500, with
 * 404 reserved for unknown payees and 400 for a missing amount.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/google/uuid: Default payout idempotency keys.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/payctf/payout-service/internal/app"
	"github.com/payctf/payout-service/internal/domain"
	"github.com/payctf/payout-service/internal/store"
)

// PayoutHandlers holds the application service that handlers will use.
type PayoutHandlers struct {
	service *app.Service
}

// NewPayoutHandlers creates a new instance of PayoutHandlers.
func NewPayoutHandlers(service *app.Service) *PayoutHandlers {
	return &PayoutHandlers{service: service}
}

func (h *PayoutHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *PayoutHandlers) writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to write response\" err=%v", err)
	}
}

// idempotencyKey returns the caller-supplied X-Idempotency-Key, or a fresh
// UUID when the caller did not send one.
func idempotencyKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key")); key != "" {
		return key
	}
	return uuid.NewString()
}

type checkUserRequest struct {
	Address string `json:"address"`
}

type checkUserResponse struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	VPAAddress string `json:"vpaAddress"`
	Email      string `json:"email"`
}

// CheckUserHandler looks up a registered payee by address key.
func (h *PayoutHandlers) CheckUserHandler(w http.ResponseWriter, r *http.Request) {
	var req checkUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=check_user outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payee, err := h.service.LookupPayee(r.Context(), req.Address)
	if err != nil {
		if errors.Is(err, store.ErrPayeeNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.Printf("level=error component=api endpoint=check_user key=%s err=%v", req.Address, err)
		http.Error(w, "Error checking user", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, checkUserResponse{
		Address:    payee.Address,
		Name:       payee.Name,
		Phone:      payee.Phone,
		VPAAddress: payee.VPAAddress,
		Email:      payee.Email,
	})
}

type payoutHistoryRequest struct {
	Address string `json:"address"`
}

// PayoutHistoryHandler returns the ordered payout entries recorded for an
// address key. A key with no ledger yields an empty list.
func (h *PayoutHandlers) PayoutHistoryHandler(w http.ResponseWriter, r *http.Request) {
	var req payoutHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=payout_history outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	history, err := h.service.PayoutHistory(r.Context(), req.Address)
	if err != nil {
		log.Printf("level=error component=api endpoint=payout_history key=%s err=%v", req.Address, err)
		http.Error(w, "Error fetching payout history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []domain.PayoutResult{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payouts": history})
}

// CreateContactHandler creates a provider contact from the posted contact fields.
func (h *PayoutHandlers) CreateContactHandler(w http.ResponseWriter, r *http.Request) {
	var contact domain.ContactInfo
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		log.Printf("level=warn component=api endpoint=create_contact outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	contactID, err := h.service.CreateContact(r.Context(), contact)
	if err != nil {
		http.Error(w, "Error creating contact", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"contact_id": contactID})
}

type createFundAccountRequest struct {
	ContactID  string `json:"contact_id"`
	VPAAddress string `json:"vpaAddress"`
	VPA        struct {
		Address string `json:"address"`
	} `json:"vpa"`
}

// CreateFundAccountHandler creates a VPA fund account for an existing contact.
func (h *PayoutHandlers) CreateFundAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createFundAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_fund_account outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	vpaAddress := req.VPAAddress
	if vpaAddress == "" {
		vpaAddress = req.VPA.Address
	}

	accountID, err := h.service.CreateFundAccount(r.Context(), req.ContactID, vpaAddress)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Failed to create fund account",
			"error":   err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Fund account created successfully",
		"id":      accountID,
	})
}

type startProcessRequest struct {
	ContactData domain.ContactInfo `json:"contactData"`
	VPAAddress  string             `json:"vpaAddress"`
	Address     string             `json:"address"`
}

// StartProcessHandler runs the full registration workflow and responds with
// the new fund-account id.
func (h *PayoutHandlers) StartProcessHandler(w http.ResponseWriter, r *http.Request) {
	var req startProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=start_process outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fundAccountID, err := h.service.RegisterPayee(r.Context(), req.ContactData, req.VPAAddress, req.Address)
	if err != nil {
		http.Error(w, "Error in the process", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, fundAccountID)
}

type createPayoutRequest struct {
	FundAccountID  string `json:"fund_account_id"`
	AdjustedAmount int64  `json:"adjustedAmount"`
}

// CreatePayoutHandler issues one payout for an already-adjusted amount and
// responds with the provider's payout object.
func (h *PayoutHandlers) CreatePayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req createPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_payout outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if retryAfter, limited := h.service.ConsumePayoutRateLimit(r.Context(), req.FundAccountID); limited {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "Too many payout requests", http.StatusTooManyRequests)
		return
	}

	result, err := h.service.IssuePayout(r.Context(), req.FundAccountID, req.AdjustedAmount, idempotencyKey(r), nil)
	if err != nil {
		if errors.Is(err, app.ErrDuplicatePayout) {
			http.Error(w, "Payout already processed for this idempotency key", http.StatusConflict)
			return
		}
		http.Error(w, "Error creating payout", http.StatusInternalServerError)
		return
	}

	h.writeRaw(w, http.StatusOK, result)
}

type adjustAmountRequest struct {
	Amount float64 `json:"amount"`
}

// AdjustAmountHandler converts a USD amount and applies the tiered fee.
// Like the clients it serves, it reads a JSON body despite being a GET.
func (h *PayoutHandlers) AdjustAmountHandler(w http.ResponseWriter, r *http.Request) {
	var req adjustAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=adjust_amount outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	adjusted, err := h.service.AdjustAmount(r.Context(), req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=adjust_amount outcome=failed err=%v", err)
		http.Error(w, "Error adjusting amount with exchange rate", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"adjustedAmount": adjusted})
}

// ExchangeRateHandler converts a USD amount at the live rate without any fee.
func (h *PayoutHandlers) ExchangeRateHandler(w http.ResponseWriter, r *http.Request) {
	amountParam := r.URL.Query().Get("amount")
	if amountParam == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Amount is required"})
		return
	}

	amount, err := strconv.ParseFloat(amountParam, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Amount must be a number"})
		return
	}

	converted, err := h.service.ConvertAmount(r.Context(), amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=exchange_rate outcome=failed err=%v", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch exchange rate"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]float64{"exchangeRate": converted})
}

// StartPayctfHandler runs the fee-adjusted payout workflow end to end and
// responds with the provider's payout object.
func (h *PayoutHandlers) StartPayctfHandler(w http.ResponseWriter, r *http.Request) {
	var order domain.PayoutOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		log.Printf("level=warn component=api endpoint=start_payctf outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	order.IdempotencyKey = idempotencyKey(r)

	if retryAfter, limited := h.service.ConsumePayoutRateLimit(r.Context(), order.UPIID); limited {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "Too many payout requests", http.StatusTooManyRequests)
		return
	}

	result, err := h.service.ProcessPayout(r.Context(), order)
	if err != nil {
		log.Printf("level=warn component=api endpoint=start_payctf outcome=failed key=%s err=%v", order.UPIID, err)
		if errors.Is(err, app.ErrDuplicatePayout) {
			http.Error(w, "Payout already processed for this idempotency key", http.StatusConflict)
			return
		}
		http.Error(w, "Error in the process", http.StatusInternalServerError)
		return
	}

	h.writeRaw(w, http.StatusOK, result)
}
