package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	"market-escrow-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteMarketRepository implements MarketRepository using SQLite.
// WAL mode, single writer connection.
type SQLiteMarketRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteMarketRepository opens (and if needed creates) the market
// database at dbPath (e.g. "./data/market.db").
func NewSQLiteMarketRepository(dbPath string) (*SQLiteMarketRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createMarketTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteMarketRepository] Initialized with database: %s", dbPath)
	return &SQLiteMarketRepository{db: db}, nil
}

func createMarketTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'buyer',
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS categories (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price_cents INTEGER NOT NULL DEFAULT 0,
		capacity INTEGER NOT NULL DEFAULT 0,
		confirm_minutes INTEGER NOT NULL DEFAULT 30,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seller_id INTEGER NOT NULL,
		category_code TEXT NOT NULL,
		file_path TEXT NOT NULL,
		original_name TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		used INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_available ON inventory(category_code, used, created_at);
	CREATE TABLE IF NOT EXISTS pending_uploads (
		user_id INTEGER PRIMARY KEY,
		category_code TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		buyer_id INTEGER NOT NULL,
		category_code TEXT NOT NULL,
		price_cents INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		seller_id INTEGER,
		delivered_at INTEGER,
		confirm_after INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_orders_due ON orders(status, confirm_after);
	CREATE TABLE IF NOT EXISTS balances (
		user_id INTEGER PRIMARY KEY,
		cents INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS payouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		amount_cents INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'requested',
		created_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(query)
	return err
}

// UpsertUser creates the user on first interaction, keeping the existing
// role if the row already exists.
func (r *SQLiteMarketRepository) UpsertUser(ctx context.Context, userID int64, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, role, created_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT(id) DO NOTHING`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// SetRole sets the user's role, creating the user if needed.
func (r *SQLiteMarketRepository) SetRole(ctx context.Context, userID int64, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, role, created_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT(id) DO UPDATE SET role=excluded.role`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return nil
}

// GetRole returns the user's role, defaulting to buyer for unknown users.
func (r *SQLiteMarketRepository) GetRole(ctx context.Context, userID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

// UpsertCategory inserts or fully replaces a category.
func (r *SQLiteMarketRepository) UpsertCategory(ctx context.Context, c model.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (code, name, price_cents, capacity, confirm_minutes, created_at)
		 VALUES (?, ?, ?, ?, ?, unixepoch())
		 ON CONFLICT(code) DO UPDATE SET
			name=excluded.name,
			price_cents=excluded.price_cents,
			capacity=excluded.capacity,
			confirm_minutes=excluded.confirm_minutes`,
		c.Code, c.Name, c.PriceCents, c.Capacity, c.ConfirmMinutes)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func (r *SQLiteMarketRepository) GetCategory(ctx context.Context, code string) (*model.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return scanCategory(r.db.QueryRowContext(ctx,
		`SELECT code, name, price_cents, capacity, confirm_minutes, created_at
		 FROM categories WHERE code=?`, code))
}

func scanCategory(row *sql.Row) (*model.Category, error) {
	var c model.Category
	err := row.Scan(&c.Code, &c.Name, &c.PriceCents, &c.Capacity, &c.ConfirmMinutes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (r *SQLiteMarketRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *SQLiteMarketRepository) updateCategoryField(ctx context.Context, query string, args ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteMarketRepository) SetCategoryPrice(ctx context.Context, code string, priceCents int64) error {
	return r.updateCategoryField(ctx, `UPDATE categories SET price_cents=? WHERE code=?`, priceCents, code)
}

func (r *SQLiteMarketRepository) SetCategoryCapacity(ctx context.Context, code string, capacity int64) error {
	return r.updateCategoryField(ctx, `UPDATE categories SET capacity=? WHERE code=?`, capacity, code)
}

func (r *SQLiteMarketRepository) SetCategoryConfirmMinutes(ctx context.Context, code string, minutes int64) error {
	return r.updateCategoryField(ctx, `UPDATE categories SET confirm_minutes=? WHERE code=?`, minutes, code)
}

// AddInventoryItem stores an uploaded item as unused stock. Fails with
// ErrNotFound if the category does not exist.
func (r *SQLiteMarketRepository) AddInventoryItem(ctx context.Context, item model.InventoryItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
		 VALUES (?, ?, ?, ?, ?, 0, unixepoch())`,
		item.SellerID, item.CategoryCode, item.FilePath, item.OriginalName, item.FileSize)
	if err != nil {
		return 0, fmt.Errorf("failed to add inventory item: %w", err)
	}
	return res.LastInsertId()
}

// ListAvailableInventory returns unused items for the category, oldest
// first (FIFO stock rotation).
func (r *SQLiteMarketRepository) ListAvailableInventory(ctx context.Context, code string) ([]model.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *SQLiteMarketRepository) CountAvailableInventory(ctx context.Context, code string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory WHERE category_code=? AND used=0`, code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count inventory: %w", err)
	}
	return n, nil
}

func (r *SQLiteMarketRepository) SetPendingUpload(ctx context.Context, userID int64, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_uploads (user_id, category_code, created_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT(user_id) DO UPDATE SET category_code=excluded.category_code, created_at=excluded.created_at`,
		userID, code)
	if err != nil {
		return fmt.Errorf("failed to set pending upload: %w", err)
	}
	return nil
}

func (r *SQLiteMarketRepository) PopPendingUpload(ctx context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var code string
	err = tx.QueryRowContext(ctx, `SELECT category_code FROM pending_uploads WHERE user_id=?`, userID).Scan(&code)
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

func (r *SQLiteMarketRepository) CreateOrder(ctx context.Context, buyerID int64, code string, priceCents int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
		 VALUES (?, ?, ?, 'pending', unixepoch())`, buyerID, code, priceCents)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	return res.LastInsertId()
}

const orderColumns = `id, buyer_id, category_code, price_cents, status, created_at, seller_id, delivered_at, confirm_after`

func scanOrder(scan func(dest ...interface{}) error) (*model.Order, error) {
	var o model.Order
	var sellerID, deliveredAt, confirmAfter sql.NullInt64
	err := scan(&o.ID, &o.BuyerID, &o.CategoryCode, &o.PriceCents, &o.Status, &o.CreatedAt, &sellerID, &deliveredAt, &confirmAfter)
	if err != nil {
		return nil, err
	}
	if sellerID.Valid {
		o.SellerID = &sellerID.Int64
	}
	if deliveredAt.Valid {
		o.DeliveredAt = &deliveredAt.Int64
	}
	if confirmAfter.Valid {
		o.ConfirmAfter = &confirmAfter.Int64
	}
	return &o, nil
}

func (r *SQLiteMarketRepository) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *SQLiteMarketRepository) ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// DeliverOrder runs the whole delivery as one transaction: claim the
// oldest unused item (conditional on used=0), run the buyer transfer,
// then flip the order to delivered (conditional on status='pending').
// Any failure rolls back everything, leaving the order pending and the
// item unused.
func (r *SQLiteMarketRepository) DeliverOrder(ctx context.Context, orderID int64, now int64, transfer func(item model.InventoryItem) error) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=?`, orderID).Scan)
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
		 ORDER BY created_at ASC, id ASC LIMIT 1`, order.CategoryCode).
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

	// Transfer runs inside the transaction so a failed send leaves the
	// system as if delivery never started.
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

func (r *SQLiteMarketRepository) ListDueOrders(ctx context.Context, now int64) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

// ReleaseOrder flips one delivered order to released and credits the
// seller the order's captured price in the same transaction. The
// conditional status update makes the release at-most-once even when
// sweep passes overlap.
func (r *SQLiteMarketRepository) ReleaseOrder(ctx context.Context, orderID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=?`, orderID).Scan)
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
		// Already released (or never delivered). Nothing to credit.
		return false, tx.Commit()
	}

	if order.SellerID != nil && order.PriceCents > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO balances (user_id, cents) VALUES (?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET cents=balances.cents + excluded.cents`,
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

func (r *SQLiteMarketRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

func (r *SQLiteMarketRepository) CreatePayoutRequest(ctx context.Context, userID, amountCents int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payouts (user_id, amount_cents, status, created_at)
		 VALUES (?, ?, 'requested', unixepoch())`, userID, amountCents)
	if err != nil {
		return 0, fmt.Errorf("failed to create payout request: %w", err)
	}
	return res.LastInsertId()
}

// Stats returns store statistics for the admin surface.
func (r *SQLiteMarketRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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

// Close closes the database connection.
func (r *SQLiteMarketRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteMarketRepository implements MarketRepository
var _ MarketRepository = (*SQLiteMarketRepository)(nil)
