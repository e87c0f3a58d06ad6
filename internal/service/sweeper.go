package service

import (
	"context"
	"log"
	"sync"
	"time"

	"market-escrow-api/internal/notify"
	"market-escrow-api/internal/repository"
)

// SweeperConfig holds configuration for the escrow sweeper.
type SweeperConfig struct {
	// Interval is how often delivered orders are scanned for release.
	// Default: 30 seconds.
	Interval time.Duration
}

// DefaultSweeperConfig returns default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: 30 * time.Second}
}

// EscrowSweeper periodically releases delivered orders whose confirmation
// window has passed: each release credits the seller and flips the order
// to released in one store transaction, then notifies the seller
// best-effort.
type EscrowSweeper struct {
	repo      repository.MarketRepository
	notifier  notify.Notifier
	config    SweeperConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	now       func() int64
}

// NewEscrowSweeper creates a new escrow sweeper.
func NewEscrowSweeper(repo repository.MarketRepository, notifier notify.Notifier, config SweeperConfig) *EscrowSweeper {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	return &EscrowSweeper{
		repo:     repo,
		notifier: notifier,
		config:   config,
		stopCh:   make(chan struct{}),
		now:      func() int64 { return time.Now().Unix() },
	}
}

// Start begins the sweep loop. Safe to call once; repeated calls are
// ignored.
func (s *EscrowSweeper) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Printf("[EscrowSweeper] Started - Interval: %v", s.config.Interval)
	go s.run()
}

func (s *EscrowSweeper) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runSweep()
		case <-s.stopCh:
			log.Printf("[EscrowSweeper] Stopped")
			return
		}
	}
}

func (s *EscrowSweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	released, err := s.RunSweepOnce(ctx, s.now())
	if err != nil {
		log.Printf("[EscrowSweeper] Sweep error: %v", err)
		return
	}
	if len(released) > 0 {
		log.Printf("[EscrowSweeper] Released %d order(s): %v", len(released), released)
	}
}

// RunSweepOnce releases every delivered order with confirm_after <= now
// and returns the ids it released. Orders already released by an earlier
// or overlapping pass are skipped; a failure on one order does not stop
// the rest of the pass.
func (s *EscrowSweeper) RunSweepOnce(ctx context.Context, now int64) ([]int64, error) {
	due, err := s.repo.ListDueOrders(ctx, now)
	if err != nil {
		return nil, err
	}

	var released []int64
	for _, order := range due {
		ok, err := s.repo.ReleaseOrder(ctx, order.ID)
		if err != nil {
			log.Printf("[EscrowSweeper] Failed to release order %d: %v", order.ID, err)
			continue
		}
		if !ok {
			continue
		}
		released = append(released, order.ID)

		// Notification is best-effort; the release stands regardless.
		if s.notifier != nil && order.SellerID != nil {
			text := "Order released. Your balance has been credited."
			if err := s.notifier.Notify(ctx, *order.SellerID, text); err != nil {
				log.Printf("[EscrowSweeper] Seller notify failed for order %d: %v", order.ID, err)
			}
		}
	}
	return released, nil
}

// Stop stops the sweep loop. An in-flight pass may finish its current
// order; partial state is impossible because each release is one
// transaction.
func (s *EscrowSweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
