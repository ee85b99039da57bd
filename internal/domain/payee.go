/**
 * @description
 * This file defines the domain models for registered payees. A payee is an
 * external recipient identity created on Razorpay (a contact plus a VPA fund
 * account) together with the locally persisted record that maps a free-form
 * address key to those provider identifiers.
 *
 * @dependencies
 * - time: Standard Go library.
 */

package domain

import "time"

// ContactInfo carries the fields Razorpay requires to create a contact.
// The JSON tags match the provider's contact payload, so the struct can be
// forwarded as-is.
type ContactInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// PayeeRecord is the document persisted under the `userdata` collection,
// keyed by the payee's address. Re-registration overwrites the whole record.
type PayeeRecord struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	ContactID     string `json:"razorpay_contact_id"`
	FundAccountID string `json:"razorpay_fund_account_id"`
	VPAAddress    string `json:"vpaAddress"`
	Address       string `json:"address"`
}

// Registration marker statuses. A marker is written before any provider call
// is made, so a registration that dies between the provider and the local
// write leaves a pending marker behind for the reconciliation job to find.
const (
	RegistrationPending   = "pending"
	RegistrationCompleted = "completed"
)

// RegistrationMarker tracks one registration attempt across its provider-side
// and store-side phases.
type RegistrationMarker struct {
	ID            string
	PayeeKey      string
	Status        string
	ContactID     *string
	FundAccountID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
