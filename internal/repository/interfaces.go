package repository

import (
	"context"
	"errors"

	"market-escrow-api/internal/model"
)

// Sentinel errors shared by all backends. Services translate these to
// API errors at the handler boundary.
var (
	// ErrNotFound means the requested user, category or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOutOfStock means no unused inventory item exists for the category.
	ErrOutOfStock = errors.New("out of stock")

	// ErrOrderNotPending means the order is not in the state the transition needs.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrTransferFailed wraps a failed buyer file transfer during delivery.
	// The delivery transaction is rolled back when it occurs.
	ErrTransferFailed = errors.New("file transfer failed")
)

// MarketRepository defines the market store contract. Every call re-reads
// current state; callers must not cache mutable records across calls.
//
// DeliverOrder and ReleaseOrder are the atomicity boundaries of the escrow
// lifecycle: each runs its reads, conditional writes and (for delivery)
// the buyer file transfer as one transaction.
type MarketRepository interface {
	// Users
	UpsertUser(ctx context.Context, userID int64, role string) error
	SetRole(ctx context.Context, userID int64, role string) error
	GetRole(ctx context.Context, userID int64) (string, error)

	// Categories
	UpsertCategory(ctx context.Context, c model.Category) error
	GetCategory(ctx context.Context, code string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	SetCategoryPrice(ctx context.Context, code string, priceCents int64) error
	SetCategoryCapacity(ctx context.Context, code string, capacity int64) error
	SetCategoryConfirmMinutes(ctx context.Context, code string, minutes int64) error

	// Inventory
	AddInventoryItem(ctx context.Context, item model.InventoryItem) (int64, error)
	ListAvailableInventory(ctx context.Context, code string) ([]model.InventoryItem, error)
	CountAvailableInventory(ctx context.Context, code string) (int64, error)

	// Pending uploads
	SetPendingUpload(ctx context.Context, userID int64, code string) error
	// PopPendingUpload returns the pending category code for the user and
	// clears the slot. Returns "" when no intent was recorded.
	PopPendingUpload(ctx context.Context, userID int64) (string, error)

	// Orders
	CreateOrder(ctx context.Context, buyerID int64, code string, priceCents int64) (int64, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	ListRecentOrders(ctx context.Context, limit int) ([]model.Order, error)

	// DeliverOrder atomically claims the oldest unused item for the order's
	// category, runs transfer with it, and moves the order to delivered with
	// seller_id, delivered_at=now and confirm_after=now+confirm window.
	// If transfer returns an error the whole transaction is rolled back and
	// the error is returned wrapped in ErrTransferFailed.
	DeliverOrder(ctx context.Context, orderID int64, now int64, transfer func(item model.InventoryItem) error) (*model.Order, error)

	// ListDueOrders returns delivered orders with confirm_after <= now.
	ListDueOrders(ctx context.Context, now int64) ([]model.Order, error)

	// ReleaseOrder flips a delivered order to released and credits the
	// seller the order's captured price, both in one transaction. Returns
	// false without error when the order was already released.
	ReleaseOrder(ctx context.Context, orderID int64) (bool, error)

	// Balances and payouts
	GetBalance(ctx context.Context, userID int64) (int64, error)
	CreatePayoutRequest(ctx context.Context, userID, amountCents int64) (int64, error)

	// Stats returns store statistics for the admin surface.
	Stats(ctx context.Context) (map[string]interface{}, error)

	Close() error
}
