package models

import "time"

type OrderStatus string

const (
	// OrderStatusPendingPayment is the checkout-complete state; payment
	// may only be initiated from here or from PaymentPending (retry).
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaymentPending means a charge has been initiated at the
	// provider and we are waiting for it to settle.
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPaymentFailed  OrderStatus = "payment_failed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Payable reports whether a payment attempt may be initiated for an
// order in this status. Retries while a push prompt is outstanding are
// allowed; everything past settlement is not.
func (s OrderStatus) Payable() bool {
	return s == OrderStatusPendingPayment || s == OrderStatusPaymentPending
}

// Cancellable reports whether the customer may still cancel. Once an
// order is confirmed it moves to fulfillment and cancellation becomes
// an admin concern.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaymentPending, OrderStatusPaymentFailed:
		return true
	}
	return false
}

type Order struct {
	ID            string      `json:"id"`
	UserID        int         `json:"user_id"`
	ItemTotal     float64     `json:"item_total"`
	Discount      float64     `json:"discount"`
	FinalTotal    float64     `json:"final_total"`
	Status        OrderStatus `json:"status"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID        int     `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID int     `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

type CheckoutItem struct {
	ProductID int `json:"product_id" binding:"required"`
	Quantity  int `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	Items []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

type OrderResponse struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

type OrderEvent struct {
	OrderID       string      `json:"order_id"`
	UserID        int         `json:"user_id"`
	Status        OrderStatus `json:"status"`
	FinalTotal    float64     `json:"final_total"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	EventType     string      `json:"event_type"` // order_created, payment_initiated, payment_confirmed, payment_failed
}
