package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kiidfreak/Triomar-Spares-sub000/cache"
	"github.com/kiidfreak/Triomar-Spares-sub000/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

type ProductHandler struct {
	db     *sql.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewProductHandler(db *sql.DB, rdb *redis.Client, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		db:     db,
		rdb:    rdb,
		logger: logger,
	}
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "ListProducts")
	defer span.End()

	query := "SELECT id, name, description, category, brand, part_number, price, stock, image_url, created_at, updated_at FROM products"
	args := []interface{}{}
	if category := c.Query("category"); category != "" {
		query += " WHERE category = $1"
		args = append(args, category)
		span.SetAttributes(attribute.String("category", category))
	}
	query += " ORDER BY name"

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to list products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.PartNumber,
			&p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": products})
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	// Try cache first
	if h.rdb != nil {
		if data, err := cache.GetProduct(ctx, h.rdb, id); err == nil {
			var p models.Product
			if err := json.Unmarshal(data, &p); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				c.JSON(http.StatusOK, gin.H{"success": true, "data": p})
				return
			}
		}
	}

	var p models.Product
	err := h.db.QueryRowContext(ctx,
		"SELECT id, name, description, category, brand, part_number, price, stock, image_url, created_at, updated_at FROM products WHERE id = $1",
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand, &p.PartNumber,
		&p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to get product", zap.String("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	if h.rdb != nil {
		if err := cache.SetProduct(ctx, h.rdb, id, p, productCacheTTL); err != nil {
			h.logger.Warn("Failed to cache product", zap.String("product_id", id), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": p})
}
