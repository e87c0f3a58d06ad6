package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"market-escrow-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLMarketRepository implements MarketRepository using MySQL.
// Row locking (SELECT ... FOR UPDATE) replaces the single-writer mutex
// the SQLite backend relies on.
type MySQLMarketRepository struct {
	db *sql.DB
}

// NewMySQLMarketRepository connects to MySQL using the given DSN.
func NewMySQLMarketRepository(dsn string) (*MySQLMarketRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMarketTablesMySQL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[MySQLMarketRepository] Initialized")
	return &MySQLMarketRepository{db: db}, nil
}

func createMarketTablesMySQL(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			role VARCHAR(16) NOT NULL DEFAULT 'buyer',
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			code VARCHAR(16) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price_cents BIGINT NOT NULL DEFAULT 0,
			capacity BIGINT NOT NULL DEFAULT 0,
			confirm_minutes BIGINT NOT NULL DEFAULT 30,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			seller_id BIGINT NOT NULL,
			category_code VARCHAR(16) NOT NULL,
			file_path VARCHAR(512) NOT NULL,
			original_name VARCHAR(255) NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			used TINYINT(1) NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			INDEX idx_inventory_available (category_code, used, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_uploads (
			user_id BIGINT PRIMARY KEY,
			category_code VARCHAR(16) NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			buyer_id BIGINT NOT NULL,
			category_code VARCHAR(16) NOT NULL,
			price_cents BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at BIGINT NOT NULL,
			seller_id BIGINT NULL,
			delivered_at BIGINT NULL,
			confirm_after BIGINT NULL,
			INDEX idx_orders_due (status, confirm_after)
		)`,
		`CREATE TABLE IF NOT EXISTS balances (
			user_id BIGINT PRIMARY KEY,
			cents BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS payouts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'requested',
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *MySQLMarketRepository) UpsertUser(ctx context.Context, userID int64, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO users (id, role, created_at) VALUES (?, ?, UNIX_TIMESTAMP())`,
		userID, role)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *MySQLMarketRepository) SetRole(ctx context.Context, userID int64, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, role, created_at) VALUES (?, ?, UNIX_TIMESTAMP())
		 ON DUPLICATE KEY UPDATE role=VALUES(role)`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return nil
}

func (r *MySQLMarketRepository) GetRole(ctx context.Context, userID int64) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=?`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return model.RoleBuyer, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (r *MySQLMarketRepository) UpsertCategory(ctx context.Context, c model.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (code, name, price_cents, capacity, confirm_minutes, created_at)
		 VALUES (?, ?, ?, ?, ?, UNIX_TIMESTAMP())
		 ON DUPLICATE KEY UPDATE
			name=VALUES(name),
			price_cents=VALUES(price_cents),
			capacity=VALUES(capacity),
			confirm_minutes=VALUES(confirm_minutes)`,
		c.Code, c.Name, c.PriceCents, c.Capacity, c.ConfirmMinutes)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func (r *MySQLMarketRepository) GetCategory(ctx context.Context, code string) (*model.Category, error) {
	return scanCategory(r.db.QueryRowContext(ctx,
		`SELECT code, name, price_cents, capacity, confirm_minutes, created_at
		 FROM categories WHERE code=?`, code))
}

func (r *MySQLMarketRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, name, price_cents, capacity, confirm_minutes, created_at
		 FROM categories ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.Code, &c.Name, &c.PriceCents, &c.Capacity, &c.ConfirmMinutes, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *MySQLMarketRepository) updateCategoryField(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows for no-op updates too; verify
		// the category actually exists before reporting not found.
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE code=?`, args[len(args)-1]).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (r *MySQLMarketRepository) SetCategoryPrice(ctx context.Context, code string, priceCents int64) error {
	return r.updateCategoryField(ctx, `UPDATE categories SET price_cents=? WHERE code=?`, priceCents, code)
}

func (r *MySQLMarketRepository) SetCategoryCapacity(ctx context.Context, code string, capacity int64) error {
	return r.updateCategoryField(ctx, `UPDATE categories SET capacity=? WHERE code=?`, capacity, code)
}

func (r *MySQLMarketRepository) SetCategoryConfirmMinutes(ctx context.Context, code string, minutes int64) error {
	return r.updateCategoryField(ctx, `UPDATE categories SET confirm_minutes=? WHERE code=?`, minutes, code)
}

func (r *MySQLMarketRepository) AddInventoryItem(ctx context.Context, item model.InventoryItem) (int64, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE code=?`, item.CategoryCode).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check category: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO inventory (seller_id, category_code, file_path, original_name, file_size, used, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, UNIX_TIMESTAMP())`,
		item.SellerID, item.CategoryCode, item.FilePath, item.OriginalName, item.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to add inventory item: %w", err)
	}
	return res.LastInsertId()
}

func (r *MySQLMarketRepository) ListAvailableInventory(ctx context.Context, code string) ([]model.InventoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seller_id, category_code, file_path, original_name, file_size, used, created_at
		 FROM inventory WHERE category_code=? AND used=0
		 ORDER BY created_at ASC, id ASC`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var out []model.InventoryItem
	for rows.Next() {
		var it model.InventoryItem
		if err := rows.Scan(&it.ID, &it.SellerID, &it.CategoryCode, &it.FilePath, &it.OriginalName, &it.FileSize, &it.Used, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *MySQLMarketRepository) CountAvailableInventory(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory WHERE category_code=? AND used=0`, code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count inventory: %w", err)
	}
	return n, nil
}

func (r *MySQLMarketRepository) SetPendingUpload(ctx context.Context, userID int64, code string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_uploads (user_id, category_code, created_at) VALUES (?, ?, UNIX_TIMESTAMP())
		 ON DUPLICATE KEY UPDATE category_code=VALUES(category_code), created_at=VALUES(created_at)`,
		userID, code)
	if err != nil {
		return fmt.Errorf("failed to set pending upload: %w", err)
	}
	return nil
}

func (r *MySQLMarketRepository) PopPendingUpload(ctx context.Context, userID int64) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var code string
	err = tx.QueryRowContext(ctx,
		`SELECT category_code FROM pending_uploads WHERE user_id=? FOR UPDATE`, userID).Scan(&code)
	if err == sql.ErrNoRows {
		return "", tx.Commit()
	}
	if err != nil {
		return "", fmt.Errorf("failed to read pending upload: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_uploads WHERE user_id=?`, userID); err != nil {
		return "", fmt.Errorf("failed to clear pending upload: %w", err)
	}
	return code, tx.Commit()
}

func (r *MySQLMarketRepository) CreateOrder(ctx context.Context, buyerID int64, code string, priceCents int64) (int64, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE code=?`, code).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check category: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (buyer_id, category_code, price_cents, status, created_at)
		 VALUES (?, ?, ?, 'pending', UNIX_TIMESTAMP())`, buyerID, code, priceCents)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	return res.LastInsertId()
}

func (r *MySQLMarketRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=?`, orderID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (r *MySQLMarketRepository) ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *MySQLMarketRepository) DeliverOrder(ctx context.Context, orderID int64, now int64, transfer func(item model.InventoryItem) error) (*model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=? FOR UPDATE`, orderID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order.Status != model.OrderPending {
		return nil, ErrOrderNotPending
	}

	var confirmMinutes int64
	err = tx.QueryRowContext(ctx,
		`SELECT confirm_minutes FROM categories WHERE code=?`, order.CategoryCode).Scan(&confirmMinutes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	var item model.InventoryItem
	err = tx.QueryRowContext(ctx,
		`SELECT id, seller_id, category_code, file_path, original_name, file_size, used, created_at
		 FROM inventory WHERE category_code=? AND used=0
		 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`, order.CategoryCode).
		Scan(&item.ID, &item.SellerID, &item.CategoryCode, &item.FilePath, &item.OriginalName, &item.FileSize, &item.Used, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOutOfStock
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select inventory item: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE inventory SET used=1 WHERE id=? AND used=0`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim inventory item: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, ErrOutOfStock
	}

	confirmAfter := now + confirmMinutes*60
	res, err = tx.ExecContext(ctx,
		`UPDATE orders SET status='delivered', seller_id=?, delivered_at=?, confirm_after=?
		 WHERE id=? AND status='pending'`,
		item.SellerID, now, confirmAfter, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, ErrOrderNotPending
	}

	if err := transfer(item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delivery: %w", err)
	}

	order.Status = model.OrderDelivered
	order.SellerID = &item.SellerID
	order.DeliveredAt = &now
	order.ConfirmAfter = &confirmAfter
	return order, nil
}

func (r *MySQLMarketRepository) ListDueOrders(ctx context.Context, now int64) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status='delivered' AND confirm_after IS NOT NULL AND confirm_after <= ?
		 ORDER BY id ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *MySQLMarketRepository) ReleaseOrder(ctx context.Context, orderID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=? FOR UPDATE`, orderID).Scan)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get order: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status='released' WHERE id=? AND status='delivered'`, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to release order: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return false, tx.Commit()
	}

	if order.SellerID != nil && order.PriceCents > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, cents) VALUES (?, ?)
			 ON DUPLICATE KEY UPDATE cents=cents + VALUES(cents)`,
			*order.SellerID, order.PriceCents)
		if err != nil {
			return false, fmt.Errorf("failed to credit seller: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit release: %w", err)
	}
	return true, nil
}

func (r *MySQLMarketRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `SELECT cents FROM balances WHERE user_id=?`, userID).Scan(&cents)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return cents, nil
}

func (r *MySQLMarketRepository) CreatePayoutRequest(ctx context.Context, userID, amountCents int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payouts (user_id, amount_cents, status, created_at)
		 VALUES (?, ?, 'requested', UNIX_TIMESTAMP())`, userID, amountCents)
	if err != nil {
		return 0, fmt.Errorf("failed to create payout request: %w", err)
	}
	return res.LastInsertId()
}

func (r *MySQLMarketRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	counts := map[string]string{
		"categories":      `SELECT COUNT(*) FROM categories`,
		"inventory_total": `SELECT COUNT(*) FROM inventory`,
		"inventory_free":  `SELECT COUNT(*) FROM inventory WHERE used=0`,
		"orders_pending":  `SELECT COUNT(*) FROM orders WHERE status='pending'`,
		"orders_escrow":   `SELECT COUNT(*) FROM orders WHERE status='delivered'`,
		"orders_released": `SELECT COUNT(*) FROM orders WHERE status='released'`,
	}
	for key, q := range counts {
		var n int64
		if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, err
		}
		stats[key] = n
	}

	var escrowed sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT SUM(price_cents) FROM orders WHERE status='delivered'`).Scan(&escrowed); err == nil && escrowed.Valid {
		stats["escrowed_cents"] = escrowed.Int64
	}

	return stats, nil
}

func (r *MySQLMarketRepository) Close() error {
	return r.db.Close()
}

// Ensure MySQLMarketRepository implements MarketRepository
var _ MarketRepository = (*MySQLMarketRepository)(nil)
