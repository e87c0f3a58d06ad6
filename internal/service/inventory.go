package service

import (
	"context"
	"io"
	"strings"

	"market-escrow-api/internal/model"
	"market-escrow-api/internal/repository"
	"market-escrow-api/pkg/upload"
)

// InventoryService handles the seller side: role switch, upload intents
// and file submissions into unused stock.
type InventoryService struct {
	repo       repository.MarketRepository
	storageDir string
}

// NewInventoryService creates a new inventory service. storageDir is
// where accepted files are stored under generated names.
func NewInventoryService(repo repository.MarketRepository, storageDir string) *InventoryService {
	if repo == nil {
		return nil
	}
	return &InventoryService{repo: repo, storageDir: storageDir}
}

// BecomeSeller switches the user's role to seller, creating the user if
// this is their first interaction.
func (s *InventoryService) BecomeSeller(ctx context.Context, userID int64) error {
	return s.repo.SetRole(ctx, userID, model.RoleSeller)
}

// SetUploadIntent records which category the seller's next file belongs
// to. One slot per user; a new intent replaces the previous one.
func (s *InventoryService) SetUploadIntent(ctx context.Context, userID int64, code string) error {
	role, err := s.repo.GetRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != model.RoleSeller {
		return ErrNotSeller
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := s.repo.GetCategory(ctx, code); err != nil {
		return err
	}
	return s.repo.SetPendingUpload(ctx, userID, code)
}

// SubmitFile consumes the seller's pending upload intent, vets the
// filename, stores the file and adds it as unused inventory. The intent
// is consumed whether or not the filename passes, matching the one-shot
// slot semantics.
func (s *InventoryService) SubmitFile(ctx context.Context, userID int64, originalName string, src io.Reader) (*model.InventoryItem, error) {
	role, err := s.repo.GetRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleSeller {
		return nil, ErrNotSeller
	}

	code, err := s.repo.PopPendingUpload(ctx, userID)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrNoUploadIntent
	}

	if !upload.IsFilenameAllowed(originalName) {
		return nil, ErrFilenameRejected
	}

	path, size, err := upload.Save(src, s.storageDir, originalName)
	if err != nil {
		return nil, err
	}

	item := model.InventoryItem{
		SellerID:     userID,
		CategoryCode: code,
		FilePath:     path,
		OriginalName: originalName,
		FileSize:     size,
	}
	id, err := s.repo.AddInventoryItem(ctx, item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	return &item, nil
}

// ListAvailable returns unused stock for a category, oldest first.
func (s *InventoryService) ListAvailable(ctx context.Context, code string) ([]model.InventoryItem, error) {
	return s.repo.ListAvailableInventory(ctx, strings.ToUpper(code))
}
