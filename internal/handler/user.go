package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"market-escrow-api/internal/service"
	"market-escrow-api/pkg/apierror"
	"market-escrow-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// maxUploadBytes caps multipart parsing for seller file submissions.
const maxUploadBytes = 64 << 20

// UserHandler handles the buyer/seller-facing HTTP surface: role switch,
// uploads, purchases, balance and withdrawals.
type UserHandler struct {
	inventoryService *service.InventoryService
	orderService     *service.OrderService
	ledgerService    *service.LedgerService
	catalogService   *service.CatalogService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(
	inventoryService *service.InventoryService,
	orderService *service.OrderService,
	ledgerService *service.LedgerService,
	catalogService *service.CatalogService,
) *UserHandler {
	return &UserHandler{
		inventoryService: inventoryService,
		orderService:     orderService,
		ledgerService:    ledgerService,
		catalogService:   catalogService,
	}
}

func userIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "user_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.BadRequest("user_id must be a positive integer")
	}
	return id, nil
}

// BecomeSeller handles POST /api/v1/users/{user_id}/seller
func (h *UserHandler) BecomeSeller(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := h.inventoryService.BecomeSeller(r.Context(), userID); err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, map[string]interface{}{"user_id": userID, "role": "seller"})
}

// UploadIntentRequest is the body for declaring an upload category.
type UploadIntentRequest struct {
	CategoryCode string `json:"category_code"`
}

// SetUploadIntent handles POST /api/v1/users/{user_id}/uploads/intent
func (h *UserHandler) SetUploadIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req UploadIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()
	if req.CategoryCode == "" {
		response.Error(w, apierror.BadRequest("category_code is required"))
		return
	}

	if err := h.inventoryService.SetUploadIntent(r.Context(), userID, req.CategoryCode); err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, map[string]interface{}{"user_id": userID, "category_code": req.CategoryCode})
}

// SubmitFile handles POST /api/v1/users/{user_id}/uploads (multipart).
// The pending upload intent decides which category the file lands in.
func (h *UserHandler) SubmitFile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.Error(w, apierror.BadRequest("invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, apierror.BadRequest("file field is required"))
		return
	}
	defer file.Close()

	item, err := h.inventoryService.SubmitFile(r.Context(), userID, header.Filename, file)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.Created(w, item)
}

// Shop handles GET /api/v1/shop
func (h *UserHandler) Shop(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalogService.ListShop(r.Context())
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, entries)
}

// BuyRequest is the body for placing an order.
type BuyRequest struct {
	CategoryCode string `json:"category_code"`
}

// Buy handles POST /api/v1/users/{user_id}/orders
func (h *UserHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()
	if req.CategoryCode == "" {
		response.Error(w, apierror.BadRequest("category_code is required"))
		return
	}

	order, err := h.orderService.PlaceOrder(r.Context(), userID, req.CategoryCode)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.Created(w, order)
}

// Balance handles GET /api/v1/users/{user_id}/balance
func (h *UserHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	cents, err := h.ledgerService.Balance(r.Context(), userID)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, map[string]interface{}{"user_id": userID, "cents": cents})
}

// WithdrawRequest is the body for a payout request.
type WithdrawRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// RequestWithdrawal handles POST /api/v1/users/{user_id}/withdrawals
func (h *UserHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	id, err := h.ledgerService.RequestWithdrawal(r.Context(), userID, req.AmountCents)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.Created(w, map[string]interface{}{
		"payout_request_id": id,
		"user_id":           userID,
		"amount_cents":      req.AmountCents,
		"status":            "requested",
	})
}
