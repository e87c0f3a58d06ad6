package service

import (
	"context"
	"testing"

	"market-escrow-api/internal/model"
)

// Full escrow scenario: category BD at 500 cents with a 30 minute
// confirmation window; the sweep before the deadline is a no-op, the
// sweep after it credits the seller and releases the order.
func TestSweepReleasesDueOrders(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "BD", 500, 30)
	seedItem(t, repo, 10, "BD", "file1.pdf")

	orders := NewOrderService(repo, &stubDeliverer{}, nil, nil)
	now := int64(100000)
	orders.SetClock(func() int64 { return now })

	order, err := orders.PlaceOrder(ctx, 20, "BD")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if _, err := orders.Deliver(ctx, order.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	notifier := &stubNotifier{}
	sweeper := NewEscrowSweeper(repo, notifier, DefaultSweeperConfig())

	// 1700s after delivery: window (1800s) not yet over.
	released, err := sweeper.RunSweepOnce(ctx, now+1700)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("nothing should be due at +1700s, got %v", released)
	}
	if balance, _ := repo.GetBalance(ctx, 10); balance != 0 {
		t.Fatalf("no credit before deadline, got %d", balance)
	}

	// 1801s after delivery: due.
	released, err = sweeper.RunSweepOnce(ctx, now+1801)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(released) != 1 || released[0] != order.ID {
		t.Fatalf("expected release of order %d, got %v", order.ID, released)
	}

	after, _ := repo.GetOrder(ctx, order.ID)
	if after.Status != model.OrderReleased {
		t.Fatalf("expected released, got %q", after.Status)
	}
	if balance, _ := repo.GetBalance(ctx, 10); balance != 500 {
		t.Fatalf("expected seller balance 500, got %d", balance)
	}
	if notifier.notes[10] != 1 {
		t.Fatalf("expected one seller notification, got %d", notifier.notes[10])
	}
}

// Repeated sweeps at or after the deadline must not double-release or
// double-credit.
func TestSweepIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "BD", 500, 30)
	seedItem(t, repo, 10, "BD", "file1.pdf")

	orders := NewOrderService(repo, &stubDeliverer{}, nil, nil)
	now := int64(100000)
	orders.SetClock(func() int64 { return now })

	order, _ := orders.PlaceOrder(ctx, 20, "BD")
	if _, err := orders.Deliver(ctx, order.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	sweeper := NewEscrowSweeper(repo, nil, DefaultSweeperConfig())
	for i := 0; i < 3; i++ {
		if _, err := sweeper.RunSweepOnce(ctx, now+1801); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}

	if balance, _ := repo.GetBalance(ctx, 10); balance != 500 {
		t.Fatalf("expected single credit of 500, got %d", balance)
	}
}

// N releases of the same category credit exactly N times the captured
// price.
func TestSweepAdditiveCredits(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "BD", 500, 30)
	seedItem(t, repo, 10, "BD", "a.pdf")
	seedItem(t, repo, 10, "BD", "b.pdf")
	seedItem(t, repo, 10, "BD", "c.pdf")

	orders := NewOrderService(repo, &stubDeliverer{}, nil, nil)
	now := int64(100000)
	orders.SetClock(func() int64 { return now })

	for buyer := int64(20); buyer < 23; buyer++ {
		order, err := orders.PlaceOrder(ctx, buyer, "BD")
		if err != nil {
			t.Fatalf("place order for %d: %v", buyer, err)
		}
		if _, err := orders.Deliver(ctx, order.ID); err != nil {
			t.Fatalf("deliver for %d: %v", buyer, err)
		}
	}

	sweeper := NewEscrowSweeper(repo, nil, DefaultSweeperConfig())
	released, err := sweeper.RunSweepOnce(ctx, now+1801)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(released) != 3 {
		t.Fatalf("expected 3 releases, got %v", released)
	}
	if balance, _ := repo.GetBalance(ctx, 10); balance != 1500 {
		t.Fatalf("expected 3x500=1500, got %d", balance)
	}
}

// A failing seller notification must not block the release or the credit.
func TestSweepNotifyFailureDoesNotBlockRelease(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "BD", 500, 30)
	seedItem(t, repo, 10, "BD", "file1.pdf")

	orders := NewOrderService(repo, &stubDeliverer{}, nil, nil)
	now := int64(100000)
	orders.SetClock(func() int64 { return now })

	order, _ := orders.PlaceOrder(ctx, 20, "BD")
	if _, err := orders.Deliver(ctx, order.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	sweeper := NewEscrowSweeper(repo, &stubNotifier{fail: true}, DefaultSweeperConfig())
	released, err := sweeper.RunSweepOnce(ctx, now+1801)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("release must stand despite notify failure, got %v", released)
	}
	if balance, _ := repo.GetBalance(ctx, 10); balance != 500 {
		t.Fatalf("expected credit 500, got %d", balance)
	}
}

func TestSweeperStartStop(t *testing.T) {
	repo := newTestRepo(t)
	sweeper := NewEscrowSweeper(repo, nil, DefaultSweeperConfig())
	sweeper.Start()
	sweeper.Start() // second start is a no-op
	sweeper.Stop()
	sweeper.Stop() // second stop is a no-op
}
