package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"market-escrow-api/internal/model"
)

func newTestRepo(t *testing.T) *SQLiteMarketRepository {
	t.Helper()
	dir := t.TempDir()
	repo, err := NewSQLiteMarketRepository(filepath.Join(dir, "market.db"))
	if err != nil {
		t.Fatalf("failed to open test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func addCategory(t *testing.T, repo *SQLiteMarketRepository, code string, priceCents, confirmMinutes int64) {
	t.Helper()
	err := repo.UpsertCategory(context.Background(), model.Category{
		Code:           code,
		Name:           code + " test",
		PriceCents:     priceCents,
		Capacity:       10,
		ConfirmMinutes: confirmMinutes,
	})
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
}

func addItem(t *testing.T, repo *SQLiteMarketRepository, sellerID int64, code, name string) int64 {
	t.Helper()
	id, err := repo.AddInventoryItem(context.Background(), model.InventoryItem{
		SellerID:     sellerID,
		CategoryCode: code,
		FilePath:     "/tmp/" + name,
		OriginalName: name,
		FileSize:     42,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	return id
}

func noopTransfer(model.InventoryItem) error { return nil }

func TestRoleDefaultsToBuyer(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	role, err := repo.GetRole(ctx, 999)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if role != model.RoleBuyer {
		t.Fatalf("expected buyer for unknown user, got %q", role)
	}

	if err := repo.SetRole(ctx, 999, model.RoleSeller); err != nil {
		t.Fatalf("set role: %v", err)
	}
	role, _ = repo.GetRole(ctx, 999)
	if role != model.RoleSeller {
		t.Fatalf("expected seller, got %q", role)
	}

	// UpsertUser must not overwrite an existing role.
	if err := repo.UpsertUser(ctx, 999, model.RoleBuyer); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	role, _ = repo.GetRole(ctx, 999)
	if role != model.RoleSeller {
		t.Fatalf("upsert overwrote role, got %q", role)
	}
}

func TestAddItemUnknownCategory(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.AddInventoryItem(context.Background(), model.InventoryItem{
		SellerID:     1,
		CategoryCode: "NOPE",
		FilePath:     "/tmp/x.pdf",
		OriginalName: "x.pdf",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAvailableFIFOAndUsedFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)

	first := addItem(t, repo, 10, "BD", "first.pdf")
	addItem(t, repo, 11, "BD", "second.pdf")

	items, err := repo.ListAvailableInventory(ctx, "BD")
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != first {
		t.Fatalf("expected oldest item first, got id %d", items[0].ID)
	}

	// Deliver one order; the claimed (oldest) item must disappear.
	orderID, err := repo.CreateOrder(ctx, 20, "BD", 500)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := repo.DeliverOrder(ctx, orderID, 1000, noopTransfer); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	items, _ = repo.ListAvailableInventory(ctx, "BD")
	if len(items) != 1 {
		t.Fatalf("expected 1 unused item, got %d", len(items))
	}
	for _, it := range items {
		if it.Used {
			t.Fatalf("ListAvailableInventory returned a used item: %+v", it)
		}
	}
	if items[0].ID == first {
		t.Fatalf("oldest item should have been claimed")
	}
}

func TestDeliverOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "file1.pdf")

	orderID, err := repo.CreateOrder(ctx, 20, "BD", 500)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	now := int64(100000)
	order, err := repo.DeliverOrder(ctx, orderID, now, noopTransfer)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if order.Status != model.OrderDelivered {
		t.Fatalf("expected delivered, got %q", order.Status)
	}
	if order.SellerID == nil || *order.SellerID != 10 {
		t.Fatalf("seller_id not set: %+v", order)
	}
	if order.DeliveredAt == nil || *order.DeliveredAt != now {
		t.Fatalf("delivered_at not set: %+v", order)
	}
	if order.ConfirmAfter == nil || *order.ConfirmAfter != now+30*60 {
		t.Fatalf("confirm_after expected %d, got %+v", now+30*60, order.ConfirmAfter)
	}

	// Second delivery attempt must fail: order is no longer pending.
	if _, err := repo.DeliverOrder(ctx, orderID, now+1, noopTransfer); !errors.Is(err, ErrOrderNotPending) {
		t.Fatalf("expected ErrOrderNotPending, got %v", err)
	}
}

func TestDeliverOrderNoStock(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)

	// Order forced in with no stock: delivery must fail and leave it pending.
	orderID, err := repo.CreateOrder(ctx, 20, "BD", 500)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := repo.DeliverOrder(ctx, orderID, 1000, noopTransfer); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	order, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != model.OrderPending {
		t.Fatalf("order must stay pending, got %q", order.Status)
	}
}

func TestDeliverOrderTransferFailureRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "file1.pdf")

	orderID, err := repo.CreateOrder(ctx, 20, "BD", 500)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	sendErr := errors.New("buyer unreachable")
	_, err = repo.DeliverOrder(ctx, orderID, 1000, func(model.InventoryItem) error { return sendErr })
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// Order still pending, item still unused.
	order, _ := repo.GetOrder(ctx, orderID)
	if order.Status != model.OrderPending {
		t.Fatalf("order must stay pending after failed transfer, got %q", order.Status)
	}
	if order.SellerID != nil || order.DeliveredAt != nil || order.ConfirmAfter != nil {
		t.Fatalf("delivery fields must stay null after failed transfer: %+v", order)
	}
	n, _ := repo.CountAvailableInventory(ctx, "BD")
	if n != 1 {
		t.Fatalf("item must stay unused after failed transfer, available=%d", n)
	}
}

func TestItemClaimedAtMostOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "only.pdf")

	o1, _ := repo.CreateOrder(ctx, 20, "BD", 500)
	o2, _ := repo.CreateOrder(ctx, 21, "BD", 500)

	if _, err := repo.DeliverOrder(ctx, o1, 1000, noopTransfer); err != nil {
		t.Fatalf("first deliver: %v", err)
	}
	// Only one item existed; the second order cannot claim it again.
	if _, err := repo.DeliverOrder(ctx, o2, 1001, noopTransfer); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for second order, got %v", err)
	}
}

func TestReleaseOrderCreditsOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "file1.pdf")

	orderID, _ := repo.CreateOrder(ctx, 20, "BD", 500)
	if _, err := repo.DeliverOrder(ctx, orderID, 1000, noopTransfer); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	released, err := repo.ReleaseOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released {
		t.Fatalf("expected release to happen")
	}

	balance, _ := repo.GetBalance(ctx, 10)
	if balance != 500 {
		t.Fatalf("expected seller balance 500, got %d", balance)
	}

	// Releasing again is a no-op: no double credit, no status change.
	released, err = repo.ReleaseOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released {
		t.Fatalf("expected second release to be a no-op")
	}
	balance, _ = repo.GetBalance(ctx, 10)
	if balance != 500 {
		t.Fatalf("double credit: balance %d", balance)
	}

	order, _ := repo.GetOrder(ctx, orderID)
	if order.Status != model.OrderReleased {
		t.Fatalf("expected released, got %q", order.Status)
	}
}

func TestReleaseUsesCapturedPrice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "file1.pdf")

	orderID, _ := repo.CreateOrder(ctx, 20, "BD", 500)
	if _, err := repo.DeliverOrder(ctx, orderID, 1000, noopTransfer); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	// Price hike after delivery must not change what the seller gets.
	if err := repo.SetCategoryPrice(ctx, "BD", 9900); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, err := repo.ReleaseOrder(ctx, orderID); err != nil {
		t.Fatalf("release: %v", err)
	}

	balance, _ := repo.GetBalance(ctx, 10)
	if balance != 500 {
		t.Fatalf("expected captured price 500, got %d", balance)
	}
}

func TestListDueOrders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "a.pdf")
	addItem(t, repo, 10, "BD", "b.pdf")

	o1, _ := repo.CreateOrder(ctx, 20, "BD", 500)
	o2, _ := repo.CreateOrder(ctx, 21, "BD", 500)

	now := int64(100000)
	if _, err := repo.DeliverOrder(ctx, o1, now, noopTransfer); err != nil {
		t.Fatalf("deliver o1: %v", err)
	}
	if _, err := repo.DeliverOrder(ctx, o2, now+600, noopTransfer); err != nil {
		t.Fatalf("deliver o2: %v", err)
	}

	// confirm_after for o1 is now+1800; only o1 is due at now+1801.
	due, err := repo.ListDueOrders(ctx, now+1801)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != o1 {
		t.Fatalf("expected exactly order %d due, got %+v", o1, due)
	}

	// Before the deadline nothing is due.
	due, _ = repo.ListDueOrders(ctx, now+1700)
	if len(due) != 0 {
		t.Fatalf("expected no due orders at +1700s, got %d", len(due))
	}
}

func TestPendingUploadSlot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addCategory(t, repo, "IN", 300, 30)

	if err := repo.SetPendingUpload(ctx, 5, "BD"); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	// A newer intent replaces the slot.
	if err := repo.SetPendingUpload(ctx, 5, "IN"); err != nil {
		t.Fatalf("replace pending: %v", err)
	}

	code, err := repo.PopPendingUpload(ctx, 5)
	if err != nil {
		t.Fatalf("pop pending: %v", err)
	}
	if code != "IN" {
		t.Fatalf("expected IN, got %q", code)
	}

	// Slot consumed.
	code, err = repo.PopPendingUpload(ctx, 5)
	if err != nil {
		t.Fatalf("pop empty: %v", err)
	}
	if code != "" {
		t.Fatalf("expected empty slot, got %q", code)
	}
}

func TestCategoryUpdates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)

	if err := repo.SetCategoryPrice(ctx, "BD", 700); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := repo.SetCategoryConfirmMinutes(ctx, "BD", 60); err != nil {
		t.Fatalf("set confirm: %v", err)
	}
	c, err := repo.GetCategory(ctx, "BD")
	if err != nil {
		t.Fatalf("get category: %v", err)
	}
	if c.PriceCents != 700 || c.ConfirmMinutes != 60 {
		t.Fatalf("updates not applied: %+v", c)
	}

	if err := repo.SetCategoryPrice(ctx, "MISSING", 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPayoutRequestDoesNotDeduct(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	addCategory(t, repo, "BD", 500, 30)
	addItem(t, repo, 10, "BD", "file1.pdf")

	orderID, _ := repo.CreateOrder(ctx, 20, "BD", 500)
	repo.DeliverOrder(ctx, orderID, 1000, noopTransfer)
	repo.ReleaseOrder(ctx, orderID)

	if _, err := repo.CreatePayoutRequest(ctx, 10, 300); err != nil {
		t.Fatalf("payout request: %v", err)
	}
	balance, _ := repo.GetBalance(ctx, 10)
	if balance != 500 {
		t.Fatalf("payout request must not deduct, balance %d", balance)
	}
}
