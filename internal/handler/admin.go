package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"market-escrow-api/internal/model"
	"market-escrow-api/internal/repository"
	"market-escrow-api/internal/service"
	"market-escrow-api/pkg/apierror"
	"market-escrow-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AdminHandler handles the operator HTTP surface: categories, delivery,
// recent orders and store stats.
type AdminHandler struct {
	catalogService *service.CatalogService
	orderService   *service.OrderService
	repo           repository.MarketRepository
	dbType         string
	startTime      time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	catalogService *service.CatalogService,
	orderService *service.OrderService,
	repo repository.MarketRepository,
	dbType string,
) *AdminHandler {
	return &AdminHandler{
		catalogService: catalogService,
		orderService:   orderService,
		repo:           repo,
		dbType:         dbType,
		startTime:      time.Now(),
	}
}

// CategoryRequest is the body for creating/replacing a category.
type CategoryRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	Capacity       int64  `json:"capacity"`
	ConfirmMinutes int64  `json:"confirm_minutes"`
}

// UpsertCategory handles POST /api/v1/admin/categories
func (h *AdminHandler) UpsertCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.Code == "" || req.Name == "" {
		response.Error(w, apierror.BadRequest("code and name are required"))
		return
	}
	if req.PriceCents < 0 || req.Capacity < 0 || req.ConfirmMinutes < 0 {
		response.Error(w, apierror.BadRequest("price_cents, capacity and confirm_minutes must not be negative"))
		return
	}

	c, err := h.catalogService.UpsertCategory(r.Context(), model.Category{
		Code:           req.Code,
		Name:           req.Name,
		PriceCents:     req.PriceCents,
		Capacity:       req.Capacity,
		ConfirmMinutes: req.ConfirmMinutes,
	})
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.Created(w, c)
}

// CategoryPatchRequest carries the optional fields an admin may update.
type CategoryPatchRequest struct {
	PriceCents     *int64 `json:"price_cents,omitempty"`
	Capacity       *int64 `json:"capacity,omitempty"`
	ConfirmMinutes *int64 `json:"confirm_minutes,omitempty"`
}

// PatchCategory handles PATCH /api/v1/admin/categories/{code}
func (h *AdminHandler) PatchCategory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		response.Error(w, apierror.BadRequest("code is required"))
		return
	}

	var req CategoryPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.PriceCents == nil && req.Capacity == nil && req.ConfirmMinutes == nil {
		response.Error(w, apierror.BadRequest("nothing to update"))
		return
	}

	ctx := r.Context()
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			response.Error(w, apierror.BadRequest("price_cents must not be negative"))
			return
		}
		if err := h.catalogService.SetPrice(ctx, code, *req.PriceCents); err != nil {
			response.Error(w, mapError(err))
			return
		}
	}
	if req.Capacity != nil {
		if *req.Capacity < 0 {
			response.Error(w, apierror.BadRequest("capacity must not be negative"))
			return
		}
		if err := h.catalogService.SetCapacity(ctx, code, *req.Capacity); err != nil {
			response.Error(w, mapError(err))
			return
		}
	}
	if req.ConfirmMinutes != nil {
		if *req.ConfirmMinutes <= 0 {
			response.Error(w, apierror.BadRequest("confirm_minutes must be positive"))
			return
		}
		if err := h.catalogService.SetConfirmMinutes(ctx, code, *req.ConfirmMinutes); err != nil {
			response.Error(w, mapError(err))
			return
		}
	}

	c, err := h.catalogService.GetCategory(ctx, code)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, c)
}

// ListCategories handles GET /api/v1/admin/categories
func (h *AdminHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalogService.ListCategories(r.Context())
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, categories)
}

// Deliver handles POST /api/v1/admin/orders/{order_id}/deliver
func (h *AdminHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		response.Error(w, apierror.BadRequest("order_id must be a positive integer"))
		return
	}

	order, err := h.orderService.Deliver(r.Context(), orderID)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, order)
}

// ListOrders handles GET /api/v1/admin/orders?limit=20
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(w, apierror.BadRequest("limit must be an integer"))
			return
		}
		limit = n
	}

	orders, err := h.orderService.ListRecent(r.Context(), limit)
	if err != nil {
		response.Error(w, mapError(err))
		return
	}
	response.OK(w, orders)
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":   float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":     float64(memStats.Sys) / 1024 / 1024,
		"num_gc":     memStats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}

	if h.repo != nil {
		storeStats, err := h.repo.Stats(r.Context())
		if err == nil {
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{"error": err.Error()}
		}
	}

	response.OK(w, stats)
}
