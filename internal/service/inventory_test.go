package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"market-escrow-api/internal/repository"
)

func TestUploadFlow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "BD", 500, 30)

	svc := NewInventoryService(repo, t.TempDir())

	// A buyer cannot declare an upload intent.
	if err := svc.SetUploadIntent(ctx, 5, "BD"); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}

	if err := svc.BecomeSeller(ctx, 5); err != nil {
		t.Fatalf("become seller: %v", err)
	}
	if err := svc.SetUploadIntent(ctx, 5, "bd"); err != nil {
		t.Fatalf("set intent: %v", err)
	}

	item, err := svc.SubmitFile(ctx, 5, "report.pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("submit file: %v", err)
	}
	if item.CategoryCode != "BD" {
		t.Fatalf("expected category BD, got %q", item.CategoryCode)
	}
	if item.OriginalName != "report.pdf" {
		t.Fatalf("original name lost: %q", item.OriginalName)
	}
	if item.FileSize != int64(len("pdf bytes")) {
		t.Fatalf("wrong size: %d", item.FileSize)
	}
	if _, err := os.Stat(item.FilePath); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	available, _ := repo.CountAvailableInventory(ctx, "BD")
	if available != 1 {
		t.Fatalf("expected 1 unused item, got %d", available)
	}
}

func TestSubmitFileWithoutIntent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewInventoryService(repo, t.TempDir())

	if err := svc.BecomeSeller(ctx, 5); err != nil {
		t.Fatalf("become seller: %v", err)
	}
	_, err := svc.SubmitFile(ctx, 5, "report.pdf", strings.NewReader("x"))
	if !errors.Is(err, ErrNoUploadIntent) {
		t.Fatalf("expected ErrNoUploadIntent, got %v", err)
	}
}

func TestSubmitFileRejectedName(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "BD", 500, 30)
	svc := NewInventoryService(repo, t.TempDir())

	svc.BecomeSeller(ctx, 5)
	if err := svc.SetUploadIntent(ctx, 5, "BD"); err != nil {
		t.Fatalf("set intent: %v", err)
	}

	_, err := svc.SubmitFile(ctx, 5, "creds.session", strings.NewReader("x"))
	if !errors.Is(err, ErrFilenameRejected) {
		t.Fatalf("expected ErrFilenameRejected, got %v", err)
	}

	// The intent slot was consumed by the rejected attempt.
	_, err = svc.SubmitFile(ctx, 5, "report.pdf", strings.NewReader("x"))
	if !errors.Is(err, ErrNoUploadIntent) {
		t.Fatalf("expected ErrNoUploadIntent after consumed slot, got %v", err)
	}
}

func TestSetUploadIntentUnknownCategory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := NewInventoryService(repo, t.TempDir())

	svc.BecomeSeller(ctx, 5)
	if err := svc.SetUploadIntent(ctx, 5, "XX"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithdrawalChecks(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)

	// Buyers cannot withdraw.
	if _, err := ledger.RequestWithdrawal(ctx, 7, 100); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}

	if err := repo.SetRole(ctx, 7, "seller"); err != nil {
		t.Fatalf("set role: %v", err)
	}

	if _, err := ledger.RequestWithdrawal(ctx, 7, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	// Balance is zero; any positive amount exceeds it.
	if _, err := ledger.RequestWithdrawal(ctx, 7, 100); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
