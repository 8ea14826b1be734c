package database

import (
	"database/sql"
	"fmt"

	"github.com/kiidfreak/Triomar-Spares-sub000/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}

func createTables(db *sql.DB) error {
	createTableQueries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			phone VARCHAR(32),
			role VARCHAR(32) NOT NULL DEFAULT 'customer',
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			category VARCHAR(128) NOT NULL,
			brand VARCHAR(128),
			part_number VARCHAR(128),
			price DECIMAL(10, 2) NOT NULL,
			stock INTEGER NOT NULL DEFAULT 0,
			image_url TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			item_total DECIMAL(10, 2) NOT NULL,
			discount DECIMAL(10, 2) NOT NULL DEFAULT 0,
			final_total DECIMAL(10, 2) NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending_payment',
			payment_method VARCHAR(32),
			transaction_id VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL REFERENCES orders(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			name VARCHAR(255) NOT NULL,
			unit_price DECIMAL(10, 2) NOT NULL,
			quantity INTEGER NOT NULL,
			subtotal DECIMAL(10, 2) NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS payment_sessions (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL REFERENCES orders(id),
			provider VARCHAR(64) NOT NULL,
			amount DECIMAL(10, 2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			narrative TEXT,
			account_reference VARCHAR(128) NOT NULL,
			phone_number VARCHAR(32),
			email VARCHAR(255),
			raw_response TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (order_id, provider)
		);`,
		`CREATE TABLE IF NOT EXISTS payment_logs (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL REFERENCES orders(id),
			provider VARCHAR(64) NOT NULL,
			tag VARCHAR(64) NOT NULL,
			transaction_id VARCHAR(255),
			raw_response TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range createTableQueries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
