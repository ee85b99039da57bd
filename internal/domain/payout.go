/**
 * @description
 * This file defines the domain models for payout requests flowing through the
 * gateway. The provider's payout response is treated as an opaque JSON
 * document end to end: it is returned to the caller verbatim and appended to
 * the payee's ledger verbatim.
 *
 * @dependencies
 * - encoding/json: Standard Go library.
 */

package domain

import "encoding/json"

// PayoutResult is the opaque payout object returned by Razorpay. The gateway
// never inspects its fields.
type PayoutResult = json.RawMessage

// PayoutOrder is the input to the fee-adjusted payout workflow. UPIID doubles
// as the payee record key, so an order can settle against a previously
// registered payee or register one inline on first use.
type PayoutOrder struct {
	UPIID          string  `json:"upiID"`
	UPIName        string  `json:"upiName"`
	ContactName    string  `json:"contactName"`
	AmountInCrypto string  `json:"amtinCrypto"`
	CryptoCurrency string  `json:"cryptoCurrency"`
	Amount         float64 `json:"amount"`

	// IdempotencyKey is supplied by the caller via the X-Idempotency-Key
	// header; the handler fills in a fresh UUID when it is absent.
	IdempotencyKey string `json:"-"`
}
