package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/kiidfreak/Triomar-Spares-sub000/config"
	"github.com/kiidfreak/Triomar-Spares-sub000/kafka"
	"github.com/kiidfreak/Triomar-Spares-sub000/middleware"
	"github.com/kiidfreak/Triomar-Spares-sub000/models"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderHandler struct {
	db       *sql.DB
	producer sarama.SyncProducer
	cfg      *config.Config
	logger   *zap.Logger
}

func NewOrderHandler(db *sql.DB, producer sarama.SyncProducer, cfg *config.Config, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		db:       db,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Checkout creates an order from the customer's cart. Prices come from
// the catalog, not from the request, so totals cannot be tampered with.
func (h *OrderHandler) Checkout(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "Checkout")
	defer span.End()

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	userID := c.GetInt(middleware.ContextUserID)
	span.SetAttributes(attribute.Int("user.id", userID), attribute.Int("items", len(req.Items)))

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	defer tx.Rollback()

	orderID := uuid.New().String()
	items := make([]models.OrderItem, 0, len(req.Items))
	var itemTotal float64

	for _, item := range req.Items {
		var name string
		var price float64
		var stock int
		err := tx.QueryRowContext(ctx,
			"SELECT name, price, stock FROM products WHERE id = $1", item.ProductID,
		).Scan(&name, &price, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("product %d not found", item.ProductID)})
				return
			}
			span.RecordError(err)
			h.logger.Error("Failed to load product", zap.Int("product_id", item.ProductID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
		if stock < item.Quantity {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   fmt.Sprintf("insufficient stock for product %d", item.ProductID),
				"data":    gin.H{"product_id": item.ProductID, "stock": stock},
			})
			return
		}

		subtotal := price * float64(item.Quantity)
		itemTotal += subtotal
		items = append(items, models.OrderItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Name:      name,
			UnitPrice: price,
			Quantity:  item.Quantity,
			Subtotal:  subtotal,
		})
	}

	finalTotal := itemTotal

	var order models.Order
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, user_id, item_total, discount, final_total, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, user_id, item_total, discount, final_total, status, created_at, updated_at`,
		orderID, userID, itemTotal, 0, finalTotal, models.OrderStatusPendingPayment,
	).Scan(&order.ID, &order.UserID, &order.ItemTotal, &order.Discount, &order.FinalTotal,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	for i := range items {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO order_items (order_id, product_id, name, unit_price, quantity, subtotal) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			items[i].OrderID, items[i].ProductID, items[i].Name, items[i].UnitPrice, items[i].Quantity, items[i].Subtotal,
		).Scan(&items[i].ID)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to create order item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.String("order.id", order.ID))

	if h.producer != nil {
		event := models.OrderEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			Status:     order.Status,
			FinalTotal: order.FinalTotal,
			EventType:  "order_created",
		}
		if err := kafka.PublishOrderEvent(ctx, h.producer, h.cfg.KafkaTopic, event, h.logger); err != nil {
			h.logger.Error("Failed to publish order_created event", zap.Error(err))
		}
	}

	h.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int("user_id", userID),
		zap.Float64("final_total", order.FinalTotal))

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": models.OrderResponse{Order: order, Items: items}})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	orderID := c.Param("id")
	userID := c.GetInt(middleware.ContextUserID)
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := h.loadOrder(c, orderID, userID)
	if err != nil {
		return
	}

	rows, err := h.db.QueryContext(ctx,
		"SELECT id, order_id, product_id, name, unit_price, quantity, subtotal FROM order_items WHERE order_id = $1",
		orderID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load order items", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &item.Subtotal); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan order item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": models.OrderResponse{Order: *order, Items: items}})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "ListOrders")
	defer span.End()

	userID := c.GetInt(middleware.ContextUserID)

	rows, err := h.db.QueryContext(ctx,
		"SELECT id, user_id, item_total, discount, final_total, status, payment_method, transaction_id, created_at, updated_at FROM orders WHERE user_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to list orders", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		var order models.Order
		var paymentMethod, transactionID sql.NullString
		if err := rows.Scan(&order.ID, &order.UserID, &order.ItemTotal, &order.Discount, &order.FinalTotal,
			&order.Status, &paymentMethod, &transactionID, &order.CreatedAt, &order.UpdatedAt); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
		order.PaymentMethod = paymentMethod.String
		order.TransactionID = transactionID.String
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": orders})
}

// CancelOrder flips the status; order rows are never deleted.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "CancelOrder")
	defer span.End()

	orderID := c.Param("id")
	userID := c.GetInt(middleware.ContextUserID)
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := h.loadOrder(c, orderID, userID)
	if err != nil {
		return
	}

	if !order.Status.Cancellable() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("order cannot be cancelled in status %q", order.Status),
			"data":    gin.H{"order_id": order.ID, "status": string(order.Status)},
		})
		return
	}

	_, err = h.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		models.OrderStatusCancelled, orderID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to cancel order", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	h.logger.Info("Order cancelled", zap.String("order_id", orderID))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"order_id": orderID, "status": string(models.OrderStatusCancelled)}})
}

// loadOrder fetches an order scoped to the authenticated customer and
// writes the error response itself on failure.
func (h *OrderHandler) loadOrder(c *gin.Context, orderID string, userID int) (*models.Order, error) {
	var order models.Order
	var paymentMethod, transactionID sql.NullString
	err := h.db.QueryRowContext(c.Request.Context(),
		"SELECT id, user_id, item_total, discount, final_total, status, payment_method, transaction_id, created_at, updated_at FROM orders WHERE id = $1 AND user_id = $2",
		orderID, userID,
	).Scan(&order.ID, &order.UserID, &order.ItemTotal, &order.Discount, &order.FinalTotal,
		&order.Status, &paymentMethod, &transactionID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Order not found"})
			return nil, err
		}
		h.logger.Error("Failed to load order", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return nil, err
	}
	order.PaymentMethod = paymentMethod.String
	order.TransactionID = transactionID.String
	return &order, nil
}
