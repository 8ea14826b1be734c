package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/kiidfreak/Triomar-Spares-sub000/config"
	"github.com/kiidfreak/Triomar-Spares-sub000/gateway"
	"github.com/kiidfreak/Triomar-Spares-sub000/kafka"
	"github.com/kiidfreak/Triomar-Spares-sub000/middleware"
	"github.com/kiidfreak/Triomar-Spares-sub000/models"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	db       *sql.DB
	gateway  gateway.PaymentGateway
	producer sarama.SyncProducer
	cfg      *config.Config
	logger   *zap.Logger
}

func NewPaymentHandler(
	db *sql.DB,
	gw gateway.PaymentGateway,
	producer sarama.SyncProducer,
	cfg *config.Config,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		db:       db,
		gateway:  gw,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
	}
}

// inputError marks validation failures that should surface as 400s
// without any state mutation.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

// paymentFlow carries the method-specific parts of the otherwise
// identical initiate flow: request validation/building and the gateway
// call to make.
type paymentFlow struct {
	buildCharge func(h *PaymentHandler, c *gin.Context, order *models.Order, req *models.InitiatePaymentRequest) (gateway.ChargeRequest, error)
	charge      func(ctx context.Context, gw gateway.PaymentGateway, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
}

func buildMobileMoneyCharge(h *PaymentHandler, _ *gin.Context, order *models.Order, req *models.InitiatePaymentRequest) (gateway.ChargeRequest, error) {
	phone, err := gateway.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return gateway.ChargeRequest{}, &inputError{msg: err.Error()}
	}
	if order.FinalTotal < h.cfg.MobileMoneyMinAmt {
		return gateway.ChargeRequest{}, &inputError{
			msg: fmt.Sprintf("order amount %.2f is below the mobile money minimum of %.2f", order.FinalTotal, h.cfg.MobileMoneyMinAmt),
		}
	}
	return gateway.ChargeRequest{
		Amount:           order.FinalTotal,
		Currency:         h.cfg.Currency,
		Narrative:        fmt.Sprintf("%s order %s", h.cfg.BusinessName, order.ID),
		AccountReference: order.ID,
		PhoneNumber:      phone,
	}, nil
}

func (h *PaymentHandler) buildHostedCharge(c *gin.Context, order *models.Order, req *models.InitiatePaymentRequest) (gateway.ChargeRequest, error) {
	name := req.Name
	email := req.Email
	if name == "" || email == "" {
		// Default payer details from the stored customer record.
		var storedName, storedEmail string
		err := h.db.QueryRowContext(c.Request.Context(),
			"SELECT name, email FROM users WHERE id = $1", order.UserID,
		).Scan(&storedName, &storedEmail)
		if err != nil {
			return gateway.ChargeRequest{}, fmt.Errorf("failed to load customer details: %w", err)
		}
		if name == "" {
			name = storedName
		}
		if email == "" {
			email = storedEmail
		}
	}
	if name == "" || email == "" {
		return gateway.ChargeRequest{}, &inputError{msg: "payer name and email are required"}
	}
	return gateway.ChargeRequest{
		Amount:           order.FinalTotal,
		Currency:         h.cfg.Currency,
		Narrative:        fmt.Sprintf("%s order %s", h.cfg.BusinessName, order.ID),
		AccountReference: order.ID,
		Name:             name,
		Email:            email,
		RedirectURL:      fmt.Sprintf("%s/orders/%s", h.cfg.BaseURL, order.ID),
	}, nil
}

func (h *PaymentHandler) flowFor(method models.PaymentMethod) paymentFlow {
	switch method {
	case models.PaymentMethodMobileMoney:
		return paymentFlow{
			buildCharge: buildMobileMoneyCharge,
			charge: func(ctx context.Context, gw gateway.PaymentGateway, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
				return gw.InitiateMobileMoneyCharge(ctx, req)
			},
		}
	case models.PaymentMethodWallet:
		return paymentFlow{
			buildCharge: func(h *PaymentHandler, c *gin.Context, order *models.Order, req *models.InitiatePaymentRequest) (gateway.ChargeRequest, error) {
				return h.buildHostedCharge(c, order, req)
			},
			charge: func(ctx context.Context, gw gateway.PaymentGateway, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
				return gw.CreateHostedWalletSession(ctx, req)
			},
		}
	default: // card
		return paymentFlow{
			buildCharge: func(h *PaymentHandler, c *gin.Context, order *models.Order, req *models.InitiatePaymentRequest) (gateway.ChargeRequest, error) {
				return h.buildHostedCharge(c, order, req)
			},
			charge: func(ctx context.Context, gw gateway.PaymentGateway, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
				return gw.CreateHostedCardSession(ctx, req)
			},
		}
	}
}

func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "InitiatePayment")
	defer span.End()

	method, ok := models.ParsePaymentMethod(c.Param("method"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unknown payment method"})
		return
	}

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	userID := c.GetInt(middleware.ContextUserID)
	span.SetAttributes(
		attribute.String("payment.method", string(method)),
		attribute.String("order.id", req.OrderID),
		attribute.Int("user.id", userID),
	)

	order, err := h.findOrder(ctx, req.OrderID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to load order", zap.String("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	if !order.Status.Payable() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("order is not payable in status %q", order.Status),
			"data":    gin.H{"order_id": order.ID, "status": string(order.Status)},
		})
		return
	}

	flow := h.flowFor(method)

	// The charge amount always comes from the order's stored final
	// total; a client-supplied amount never reaches the gateway.
	chargeReq, err := flow.buildCharge(h, c, order, &req)
	if err != nil {
		var ie *inputError
		if errors.As(err, &ie) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ie.msg})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to build charge request", zap.String("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	result, err := flow.charge(ctx, h.gateway, chargeReq)
	if err != nil {
		span.RecordError(err)
		middleware.RecordPaymentInitiated(string(method), "gateway_error")
		h.logger.Error("Gateway call failed",
			zap.String("order_id", order.ID),
			zap.String("method", string(method)),
			zap.Error(err))
		// Order status is left untouched so the customer can retry.
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := h.recordInitiation(ctx, order, method, chargeReq, result); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to persist payment initiation", zap.String("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	middleware.RecordPaymentInitiated(string(method), "ok")
	h.publishEvent(ctx, models.OrderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        models.OrderStatusPaymentPending,
		FinalTotal:    order.FinalTotal,
		PaymentMethod: string(method),
		TransactionID: result.InvoiceID,
		EventType:     "payment_initiated",
	})

	h.logger.Info("Payment initiated",
		zap.String("order_id", order.ID),
		zap.String("method", string(method)),
		zap.String("invoice_id", result.InvoiceID))

	data := models.InitiatePaymentData{
		OrderID:       order.ID,
		Amount:        order.FinalTotal,
		Currency:      h.cfg.Currency,
		Status:        string(models.OrderStatusPaymentPending),
		TransactionID: result.InvoiceID,
		PaymentURL:    result.PaymentURL,
	}

	message := "Payment initiated"
	if method == models.PaymentMethodMobileMoney {
		message = "Payment prompt sent; authorize it on your phone"
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "data": data})
}

// recordInitiation performs the session upsert, log append and order
// status flip in one transaction so a crash can't leave the order
// inconsistent with its session.
func (h *PaymentHandler) recordInitiation(
	ctx context.Context,
	order *models.Order,
	method models.PaymentMethod,
	chargeReq gateway.ChargeRequest,
	result *gateway.ChargeResult,
) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_sessions (order_id, provider, amount, currency, narrative, account_reference, phone_number, email, raw_response)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (order_id, provider) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			narrative = EXCLUDED.narrative,
			account_reference = EXCLUDED.account_reference,
			phone_number = EXCLUDED.phone_number,
			email = EXCLUDED.email,
			raw_response = EXCLUDED.raw_response,
			updated_at = CURRENT_TIMESTAMP`,
		order.ID, string(method), chargeReq.Amount, chargeReq.Currency, chargeReq.Narrative,
		chargeReq.AccountReference, chargeReq.PhoneNumber, chargeReq.Email, string(result.RawResponse),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payment session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO payment_logs (order_id, provider, tag, transaction_id, raw_response) VALUES ($1, $2, $3, $4, $5)",
		order.ID, string(method), "initiated", result.InvoiceID, string(result.RawResponse),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment log: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_method = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3",
		models.OrderStatusPaymentPending, string(method), order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return tx.Commit()
}

func (h *PaymentHandler) CheckPaymentStatus(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "CheckPaymentStatus")
	defer span.End()

	if _, ok := models.ParsePaymentMethod(c.Param("method")); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unknown payment method"})
		return
	}

	orderID := c.Query("order_id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "order_id is required"})
		return
	}

	userID := c.GetInt(middleware.ContextUserID)
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int("user.id", userID))

	order, err := h.findOrder(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to load order", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	var accountRef string
	err = h.db.QueryRowContext(ctx,
		"SELECT account_reference FROM payment_sessions WHERE order_id = $1 ORDER BY updated_at DESC LIMIT 1",
		order.ID,
	).Scan(&accountRef)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		h.logger.Error("Failed to load payment session", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	if accountRef != "" {
		status, err := h.gateway.CheckStatus(ctx, accountRef)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Gateway status check failed", zap.String("order_id", orderID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		span.SetAttributes(attribute.String("payment.outcome", string(status.Outcome)))

		mapped := order.Status
		switch status.Outcome {
		case gateway.OutcomeConfirmed:
			mapped = models.OrderStatusConfirmed
		case gateway.OutcomeFailed:
			mapped = models.OrderStatusPaymentFailed
		case gateway.OutcomeUnknown:
			// Treated as transient: keep polling, but make the odd tag
			// visible instead of swallowing it.
			h.logger.Warn("Unrecognized provider status tag",
				zap.String("order_id", orderID),
				zap.String("raw_tag", status.RawTag))
		}

		if mapped != order.Status {
			if err := h.applySettlement(ctx, order, mapped, status.TransactionID); err != nil {
				span.RecordError(err)
				h.logger.Error("Failed to update order from settlement", zap.String("order_id", orderID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
				return
			}
			order.Status = mapped
			if status.TransactionID != "" {
				order.TransactionID = status.TransactionID
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": models.PaymentStatusData{
		OrderID:       order.ID,
		Status:        string(order.Status),
		PaymentMethod: order.PaymentMethod,
		TransactionID: order.TransactionID,
	}})
}

func (h *PaymentHandler) applySettlement(ctx context.Context, order *models.Order, status models.OrderStatus, transactionID string) error {
	if transactionID != "" {
		_, err := h.db.ExecContext(ctx,
			"UPDATE orders SET status = $1, transaction_id = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3",
			status, transactionID, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
	} else {
		_, err := h.db.ExecContext(ctx,
			"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
			status, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
	}

	middleware.RecordPaymentSettled(order.PaymentMethod, string(status))

	eventType := "payment_confirmed"
	if status == models.OrderStatusPaymentFailed {
		eventType = "payment_failed"
	}
	h.publishEvent(ctx, models.OrderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        status,
		FinalTotal:    order.FinalTotal,
		PaymentMethod: order.PaymentMethod,
		TransactionID: transactionID,
		EventType:     eventType,
	})

	return nil
}

func (h *PaymentHandler) findOrder(ctx context.Context, orderID string, userID int) (*models.Order, error) {
	var order models.Order
	var paymentMethod, transactionID sql.NullString
	err := h.db.QueryRowContext(ctx,
		"SELECT id, user_id, item_total, discount, final_total, status, payment_method, transaction_id, created_at, updated_at FROM orders WHERE id = $1 AND user_id = $2",
		orderID, userID,
	).Scan(&order.ID, &order.UserID, &order.ItemTotal, &order.Discount, &order.FinalTotal,
		&order.Status, &paymentMethod, &transactionID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	order.PaymentMethod = paymentMethod.String
	order.TransactionID = transactionID.String
	return &order, nil
}

// publishEvent emits a best-effort domain event; failures are logged
// and never fail the request.
func (h *PaymentHandler) publishEvent(ctx context.Context, event models.OrderEvent) {
	if h.producer == nil {
		return
	}
	if err := kafka.PublishOrderEvent(ctx, h.producer, h.cfg.KafkaTopic, event, h.logger); err != nil {
		h.logger.Error("Failed to publish order event", zap.String("order_id", event.OrderID), zap.Error(err))
	}
}
