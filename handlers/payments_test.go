package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiidfreak/Triomar-Spares-sub000/config"
	"github.com/kiidfreak/Triomar-Spares-sub000/gateway"
	"github.com/kiidfreak/Triomar-Spares-sub000/middleware"
	"github.com/kiidfreak/Triomar-Spares-sub000/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakeGateway substitutes the hosted provider in tests and records the
// requests it receives.
type fakeGateway struct {
	initiateFunc func(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	sessionFunc  func(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	statusFunc   func(ctx context.Context, ref string) (*gateway.StatusResult, error)

	chargeCalls   int
	lastCharge    gateway.ChargeRequest
	lastStatusRef string
}

func (f *fakeGateway) InitiateMobileMoneyCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	f.chargeCalls++
	f.lastCharge = req
	if f.initiateFunc != nil {
		return f.initiateFunc(ctx, req)
	}
	return &gateway.ChargeResult{InvoiceID: "INV-1", RawResponse: json.RawMessage(`{"invoice":{"invoice_id":"INV-1"}}`)}, nil
}

func (f *fakeGateway) CreateHostedCardSession(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	f.chargeCalls++
	f.lastCharge = req
	if f.sessionFunc != nil {
		return f.sessionFunc(ctx, req)
	}
	return &gateway.ChargeResult{InvoiceID: "SES-1", PaymentURL: "https://pay.example/ses-1", RawResponse: json.RawMessage(`{"id":"SES-1","url":"https://pay.example/ses-1"}`)}, nil
}

func (f *fakeGateway) CreateHostedWalletSession(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	return f.CreateHostedCardSession(ctx, req)
}

func (f *fakeGateway) CheckStatus(ctx context.Context, ref string) (*gateway.StatusResult, error) {
	f.lastStatusRef = ref
	if f.statusFunc != nil {
		return f.statusFunc(ctx, ref)
	}
	return &gateway.StatusResult{Outcome: gateway.OutcomePending, RawTag: "PENDING"}, nil
}

func setupPaymentTest(t *testing.T) (*PaymentHandler, sqlmock.Sqlmock, *fakeGateway, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	gw := &fakeGateway{}
	cfg := &config.Config{
		Currency:          "KES",
		MobileMoneyMinAmt: 10,
		BusinessName:      "Triomar Spares",
		BaseURL:           "http://localhost:8080",
	}
	handler := NewPaymentHandler(db, gw, nil, cfg, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, 1)
		c.Next()
	})
	router.POST("/payments/:method", handler.InitiatePayment)
	router.GET("/payments/:method", handler.CheckPaymentStatus)

	return handler, mock, gw, router
}

func orderRows(id string, userID int, finalTotal float64, status models.OrderStatus, method, txnID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "item_total", "discount", "final_total", "status", "payment_method", "transaction_id", "created_at", "updated_at"}).
		AddRow(id, userID, finalTotal, 0, finalTotal, status, method, txnID, time.Now(), time.Now())
}

const selectOrderQuery = "SELECT id, user_id, item_total, discount, final_total, status, payment_method, transaction_id, created_at, updated_at FROM orders WHERE id = \\$1 AND user_id = \\$2"

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInitiatePayment_MobileMoney_HappyPath(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_sessions").
		WithArgs("ORD-1", "mobile_money", 500.0, "KES", sqlmock.AnyArg(), "ORD-1", "254712345678", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_logs").
		WithArgs("ORD-1", "mobile_money", "initiated", "INV-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("payment_pending", "mobile_money", "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := postJSON(router, "/payments/mobile_money", models.InitiatePaymentRequest{
		OrderID:     "ORD-1",
		PhoneNumber: "0712345678",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// The gateway must see the normalized phone and the order's stored
	// amount, never anything client-supplied.
	if gw.lastCharge.PhoneNumber != "254712345678" {
		t.Errorf("Expected normalized phone 254712345678, got %q", gw.lastCharge.PhoneNumber)
	}
	if gw.lastCharge.Amount != 500 {
		t.Errorf("Expected charge amount 500, got %v", gw.lastCharge.Amount)
	}
	if gw.lastCharge.AccountReference != "ORD-1" {
		t.Errorf("Expected account reference ORD-1, got %q", gw.lastCharge.AccountReference)
	}

	var resp struct {
		Success bool                       `json:"success"`
		Data    models.InitiatePaymentData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.Data.Status != "payment_pending" || resp.Data.TransactionID != "INV-1" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestInitiatePayment_AmountTamperingIgnored(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE orders SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// An amount field in the body is not part of the request schema and
	// must have no effect on the charge.
	w := postJSON(router, "/payments/mobile_money", map[string]interface{}{
		"order_id":     "ORD-1",
		"phone_number": "0712345678",
		"amount":       1,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if gw.lastCharge.Amount != 500 {
		t.Errorf("Expected charge amount 500 from order record, got %v", gw.lastCharge.Amount)
	}
}

func TestInitiatePayment_OrderNotPayable(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusConfirmed, "mobile_money", "MPESA1"))

	w := postJSON(router, "/payments/mobile_money", models.InitiatePaymentRequest{
		OrderID:     "ORD-1",
		PhoneNumber: "0712345678",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if gw.chargeCalls != 0 {
		t.Errorf("Gateway must not be called for a non-payable order")
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.Status != "confirmed" {
		t.Errorf("Expected current status in response, got %q", resp.Data.Status)
	}

	// No session upsert, log append or status update may happen.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database writes: %v", err)
	}
}

func TestInitiatePayment_SubMinimumAmount(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 5, models.OrderStatusPendingPayment, "", ""))

	w := postJSON(router, "/payments/mobile_money", models.InitiatePaymentRequest{
		OrderID:     "ORD-1",
		PhoneNumber: "0712345678",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if gw.chargeCalls != 0 {
		t.Errorf("Gateway must not be called for a sub-minimum amount")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database writes: %v", err)
	}
}

func TestInitiatePayment_MalformedPhone(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))

	w := postJSON(router, "/payments/mobile_money", models.InitiatePaymentRequest{
		OrderID:     "ORD-1",
		PhoneNumber: "not-a-phone",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if gw.chargeCalls != 0 {
		t.Errorf("Gateway must not be called with an invalid phone")
	}
}

func TestInitiatePayment_WrongOwner(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	// Scoped query returns no rows for another customer's order.
	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-2", 1).
		WillReturnError(sql.ErrNoRows)

	w := postJSON(router, "/payments/mobile_money", models.InitiatePaymentRequest{
		OrderID:     "ORD-2",
		PhoneNumber: "0712345678",
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if gw.chargeCalls != 0 {
		t.Errorf("Gateway must not be called for a foreign order")
	}
}

func TestInitiatePayment_GatewayFailure(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))

	gw.initiateFunc = func(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
		return nil, fmt.Errorf("connection reset by peer")
	}

	w := postJSON(router, "/payments/mobile_money", models.InitiatePaymentRequest{
		OrderID:     "ORD-1",
		PhoneNumber: "0712345678",
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("Expected failure envelope with non-empty error, got %+v", resp)
	}

	// The order row must be left untouched so the customer can retry.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database writes after gateway failure: %v", err)
	}
}

func TestInitiatePayment_Card_ReturnsPaymentURL(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("payment_pending", "card", "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := postJSON(router, "/payments/card", models.InitiatePaymentRequest{
		OrderID: "ORD-1",
		Name:    "Jane Doe",
		Email:   "jane@example.com",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if gw.lastCharge.Name != "Jane Doe" || gw.lastCharge.Email != "jane@example.com" {
		t.Errorf("Unexpected payer details: %+v", gw.lastCharge)
	}

	var resp struct {
		Data models.InitiatePaymentData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.PaymentURL == "" {
		t.Errorf("Expected a redirect payment_url for card payments")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestInitiatePayment_Card_DefaultsPayerFromCustomer(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))

	mock.ExpectQuery("SELECT name, email FROM users WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name", "email"}).AddRow("Stored Name", "stored@example.com"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payment_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE orders SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := postJSON(router, "/payments/card", models.InitiatePaymentRequest{OrderID: "ORD-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if gw.lastCharge.Name != "Stored Name" || gw.lastCharge.Email != "stored@example.com" {
		t.Errorf("Expected payer defaulted from customer record, got %+v", gw.lastCharge)
	}
}

func TestInitiatePayment_UnknownMethod(t *testing.T) {
	handler, _, _, router := setupPaymentTest(t)
	defer handler.db.Close()

	w := postJSON(router, "/payments/bitcoin", models.InitiatePaymentRequest{OrderID: "ORD-1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCheckPaymentStatus_CompletedMapsToConfirmed(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPaymentPending, "mobile_money", ""))

	mock.ExpectQuery("SELECT account_reference FROM payment_sessions").
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows([]string{"account_reference"}).AddRow("ORD-1"))

	gw.statusFunc = func(ctx context.Context, ref string) (*gateway.StatusResult, error) {
		return &gateway.StatusResult{Outcome: gateway.OutcomeConfirmed, RawTag: "completed", TransactionID: "MPESA123"}, nil
	}

	mock.ExpectExec("UPDATE orders SET status = \\$1, transaction_id = \\$2").
		WithArgs("confirmed", "MPESA123", "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodGet, "/payments/mobile_money?order_id=ORD-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// Round-trip: the stored account reference is what reaches the
	// provider.
	if gw.lastStatusRef != "ORD-1" {
		t.Errorf("Expected stored account reference ORD-1, got %q", gw.lastStatusRef)
	}

	var resp struct {
		Data models.PaymentStatusData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.Status != "confirmed" || resp.Data.TransactionID != "MPESA123" {
		t.Errorf("Unexpected status payload: %+v", resp.Data)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCheckPaymentStatus_FailedMapsToPaymentFailed(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPaymentPending, "mobile_money", ""))

	mock.ExpectQuery("SELECT account_reference FROM payment_sessions").
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows([]string{"account_reference"}).AddRow("ORD-1"))

	gw.statusFunc = func(ctx context.Context, ref string) (*gateway.StatusResult, error) {
		return &gateway.StatusResult{Outcome: gateway.OutcomeFailed, RawTag: "FAILED"}, nil
	}

	mock.ExpectExec("UPDATE orders SET status = \\$1").
		WithArgs("payment_failed", "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodGet, "/payments/mobile_money?order_id=ORD-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCheckPaymentStatus_Idempotent(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	gw.statusFunc = func(ctx context.Context, ref string) (*gateway.StatusResult, error) {
		return &gateway.StatusResult{Outcome: gateway.OutcomeConfirmed, RawTag: "COMPLETE", TransactionID: "MPESA123"}, nil
	}

	var bodies []string
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(selectOrderQuery).
			WithArgs("ORD-1", 1).
			WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusConfirmed, "mobile_money", "MPESA123"))
		mock.ExpectQuery("SELECT account_reference FROM payment_sessions").
			WithArgs("ORD-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_reference"}).AddRow("ORD-1"))
		// No UPDATE expected: the mapped status equals the current one.

		req := httptest.NewRequest(http.MethodGet, "/payments/mobile_money?order_id=ORD-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		bodies = append(bodies, w.Body.String())
	}

	if bodies[0] != bodies[1] {
		t.Errorf("Repeated status checks returned different payloads:\n%s\n%s", bodies[0], bodies[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database writes on idempotent check: %v", err)
	}
}

func TestCheckPaymentStatus_UnknownTagLeavesStatus(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPaymentPending, "mobile_money", ""))
	mock.ExpectQuery("SELECT account_reference FROM payment_sessions").
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows([]string{"account_reference"}).AddRow("ORD-1"))

	gw.statusFunc = func(ctx context.Context, ref string) (*gateway.StatusResult, error) {
		return &gateway.StatusResult{Outcome: gateway.OutcomeUnknown, RawTag: "WEIRD-STATE"}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/payments/mobile_money?order_id=ORD-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp struct {
		Data models.PaymentStatusData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.Status != "payment_pending" {
		t.Errorf("Unknown provider tag must not change the order status, got %q", resp.Data.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unexpected database writes on unknown tag: %v", err)
	}
}

func TestCheckPaymentStatus_WrongOwner(t *testing.T) {
	handler, mock, _, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-B", 1).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/payments/mobile_money?order_id=ORD-B", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("ORD-B")) {
		t.Errorf("Not-found response must not leak order data: %s", w.Body.String())
	}
}

func TestCheckPaymentStatus_NoSessionReturnsCurrentStatus(t *testing.T) {
	handler, mock, gw, router := setupPaymentTest(t)
	defer handler.db.Close()

	mock.ExpectQuery(selectOrderQuery).
		WithArgs("ORD-1", 1).
		WillReturnRows(orderRows("ORD-1", 1, 500, models.OrderStatusPendingPayment, "", ""))
	mock.ExpectQuery("SELECT account_reference FROM payment_sessions").
		WithArgs("ORD-1").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/payments/mobile_money?order_id=ORD-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if gw.lastStatusRef != "" {
		t.Errorf("Gateway must not be queried without a session")
	}

	var resp struct {
		Data models.PaymentStatusData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.Status != "pending_payment" {
		t.Errorf("Expected stored status, got %q", resp.Data.Status)
	}
}
