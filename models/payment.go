package models

import "time"

type PaymentMethod string

const (
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodWallet      PaymentMethod = "wallet"
)

// ParsePaymentMethod maps a route segment to a known method.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentMethodMobileMoney, PaymentMethodCard, PaymentMethodWallet:
		return PaymentMethod(s), true
	}
	return "", false
}

// PaymentSession stores the request we sent to the provider and the raw
// response we got back, one live row per (order, provider). The stored
// account reference is what later status checks are keyed on.
type PaymentSession struct {
	ID               int       `json:"id"`
	OrderID          string    `json:"order_id"`
	Provider         string    `json:"provider"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Narrative        string    `json:"narrative"`
	AccountReference string    `json:"account_reference"`
	PhoneNumber      string    `json:"phone_number,omitempty"`
	Email            string    `json:"email,omitempty"`
	RawResponse      string    `json:"raw_response"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PaymentLog rows are append-only; one per attempt, never updated.
type PaymentLog struct {
	ID            int       `json:"id"`
	OrderID       string    `json:"order_id"`
	Provider      string    `json:"provider"`
	Tag           string    `json:"tag"`
	TransactionID string    `json:"transaction_id,omitempty"`
	RawResponse   string    `json:"raw_response"`
	CreatedAt     time.Time `json:"created_at"`
}

type InitiatePaymentRequest struct {
	OrderID     string `json:"order_id" binding:"required"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

type InitiatePaymentData struct {
	OrderID       string  `json:"order_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transaction_id,omitempty"`
	PaymentURL    string  `json:"payment_url,omitempty"`
}

type PaymentStatusData struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id,omitempty"`
}
