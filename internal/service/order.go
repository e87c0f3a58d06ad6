package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"market-escrow-api/internal/model"
	"market-escrow-api/internal/notify"
	"market-escrow-api/internal/repository"
)

// OrderService drives the escrow order lifecycle: buy, deliver, and the
// read side for admins.
type OrderService struct {
	repo      repository.MarketRepository
	deliverer notify.FileDeliverer
	notifier  notify.Notifier
	adminIDs  []int64
	now       func() int64
}

// NewOrderService creates a new order service. adminIDs receive a
// best-effort notification for every new order.
func NewOrderService(repo repository.MarketRepository, deliverer notify.FileDeliverer, notifier notify.Notifier, adminIDs []int64) *OrderService {
	if repo == nil {
		return nil
	}
	return &OrderService{
		repo:      repo,
		deliverer: deliverer,
		notifier:  notifier,
		adminIDs:  adminIDs,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *OrderService) SetClock(now func() int64) {
	s.now = now
}

// PlaceOrder creates a pending order for the buyer. The category must
// exist and have unused stock; the price the buyer was quoted is captured
// on the order and later price edits do not change it.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID int64, code string) (*model.Order, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if err := s.repo.UpsertUser(ctx, buyerID, model.RoleBuyer); err != nil {
		return nil, err
	}

	category, err := s.repo.GetCategory(ctx, code)
	if err != nil {
		return nil, err
	}

	available, err := s.repo.CountAvailableInventory(ctx, code)
	if err != nil {
		return nil, err
	}
	if available == 0 {
		return nil, repository.ErrOutOfStock
	}

	orderID, err := s.repo.CreateOrder(ctx, buyerID, code, category.PriceCents)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		text := fmt.Sprintf("New order #%d: %s, buyer %d. Deliver when payment confirmed.", orderID, code, buyerID)
		for _, adminID := range s.adminIDs {
			if err := s.notifier.Notify(ctx, adminID, text); err != nil {
				log.Printf("[OrderService] admin notify failed for %d: %v", adminID, err)
			}
		}
	}

	return s.repo.GetOrder(ctx, orderID)
}

// Deliver moves a pending order to delivered: the oldest unused item for
// its category is claimed, the file is transmitted to the buyer, and
// seller_id/delivered_at/confirm_after are set, all as one atomic unit.
// A failed transfer leaves the order pending and the item unused.
func (s *OrderService) Deliver(ctx context.Context, orderID int64) (*model.Order, error) {
	// Buyer id is immutable, so it is safe to read it ahead of the
	// delivery transaction. The transfer callback must not touch the
	// repository: it runs inside that transaction.
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	buyerID := order.BuyerID

	now := s.now()
	return s.repo.DeliverOrder(ctx, orderID, now, func(item model.InventoryItem) error {
		if s.deliverer == nil {
			return fmt.Errorf("no file deliverer configured")
		}
		return s.deliverer.SendFile(ctx, buyerID, item.FilePath, item.OriginalName)
	})
}

// GetOrder returns one order by id.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ListRecent returns up to limit most recent orders, newest first.
func (s *OrderService) ListRecent(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListRecentOrders(ctx, limit)
}
