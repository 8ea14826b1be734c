package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kiidfreak/Triomar-Spares-sub000/cache"
	"github.com/kiidfreak/Triomar-Spares-sub000/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// fulfillmentTransitions are the admin-driven status advances after a
// payment is confirmed.
var fulfillmentTransitions = map[models.OrderStatus]models.OrderStatus{
	models.OrderStatusConfirmed:  models.OrderStatusProcessing,
	models.OrderStatusProcessing: models.OrderStatusShipped,
	models.OrderStatusShipped:    models.OrderStatusDelivered,
}

type AdminHandler struct {
	db     *sql.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewAdminHandler(db *sql.DB, rdb *redis.Client, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		db:     db,
		rdb:    rdb,
		logger: logger,
	}
}

func (h *AdminHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "AdminCreateProduct")
	defer span.End()

	var req models.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	var p models.Product
	err := h.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, category, brand, part_number, price, stock, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, name, description, category, brand, part_number, price, stock, image_url, created_at, updated_at`,
		req.Name, req.Description, req.Category, req.Brand, req.PartNumber, req.Price, req.Stock, req.ImageURL,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.PartNumber,
		&p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	h.logger.Info("Product created", zap.Int("product_id", p.ID), zap.String("name", p.Name))
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": p})
}

func (h *AdminHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "AdminUpdateProduct")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid product ID"})
		return
	}
	span.SetAttributes(attribute.Int("product.id", id))

	var req models.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	var p models.Product
	err = h.db.QueryRowContext(ctx,
		`UPDATE products SET name = $1, description = $2, category = $3, brand = $4, part_number = $5,
			price = $6, stock = $7, image_url = $8, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $9
		 RETURNING id, name, description, category, brand, part_number, price, stock, image_url, created_at, updated_at`,
		req.Name, req.Description, req.Category, req.Brand, req.PartNumber, req.Price, req.Stock, req.ImageURL, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.PartNumber,
		&p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to update product", zap.Int("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	h.invalidateProductCache(c, strconv.Itoa(id))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": p})
}

func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "AdminDeleteProduct")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid product ID"})
		return
	}

	result, err := h.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to delete product", zap.Int("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Product not found"})
		return
	}

	h.invalidateProductCache(c, strconv.Itoa(id))
	h.logger.Info("Product deleted", zap.Int("product_id", id))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AdminHandler) ListAllOrders(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "AdminListOrders")
	defer span.End()

	query := "SELECT id, user_id, item_total, discount, final_total, status, payment_method, transaction_id, created_at, updated_at FROM orders"
	args := []interface{}{}
	if status := c.Query("status"); status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to list orders", zap.Error(err))
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

// AdvanceOrderStatus moves an order one step along the fulfillment
// chain: confirmed -> processing -> shipped -> delivered.
func (h *AdminHandler) AdvanceOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "AdminAdvanceOrderStatus")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order.id", orderID))

	var current models.OrderStatus
	err := h.db.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = $1", orderID).Scan(&current)
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

	next, ok := fulfillmentTransitions[current]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("order in status %q cannot be advanced", current),
			"data":    gin.H{"order_id": orderID, "status": string(current)},
		})
		return
	}

	_, err = h.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		next, orderID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to advance order", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	h.logger.Info("Order status advanced",
		zap.String("order_id", orderID),
		zap.String("from", string(current)),
		zap.String("to", string(next)))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"order_id": orderID, "status": string(next)}})
}

// GetPaymentLogs returns the append-only audit trail for an order.
func (h *AdminHandler) GetPaymentLogs(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "AdminGetPaymentLogs")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order.id", orderID))

	rows, err := h.db.QueryContext(ctx,
		"SELECT id, order_id, provider, tag, transaction_id, raw_response, created_at FROM payment_logs WHERE order_id = $1 ORDER BY created_at",
		orderID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load payment logs", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	defer rows.Close()

	logs := make([]models.PaymentLog, 0)
	for rows.Next() {
		var l models.PaymentLog
		var txnID, raw sql.NullString
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Provider, &l.Tag, &txnID, &raw, &l.CreatedAt); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
		l.TransactionID = txnID.String
		l.RawResponse = raw.String
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": logs})
}

func (h *AdminHandler) invalidateProductCache(c *gin.Context, id string) {
	if h.rdb == nil {
		return
	}
	if err := cache.DeleteProduct(c.Request.Context(), h.rdb, id); err != nil {
		h.logger.Warn("Failed to invalidate product cache", zap.String("product_id", id), zap.Error(err))
	}
}
