package model

// User roles.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Order statuses. Transitions are strictly pending -> delivered -> released.
const (
	OrderPending   = "pending"
	OrderDelivered = "delivered"
	OrderReleased  = "released"
)

// User is a marketplace participant. Created on first interaction,
// never deleted. Role can switch from buyer to seller.
type User struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

// Category is a priced grouping of interchangeable digital items.
// Capacity is a soft display figure, not a stock cap.
type Category struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	Capacity       int64  `json:"capacity"`
	ConfirmMinutes int64  `json:"confirm_minutes"`
	CreatedAt      int64  `json:"created_at"`
}

// InventoryItem is one uploaded digital item. Used flips to true exactly
// once, at delivery, and never reverts.
type InventoryItem struct {
	ID           int64  `json:"id"`
	SellerID     int64  `json:"seller_id"`
	CategoryCode string `json:"category_code"`
	FilePath     string `json:"file_path"`
	OriginalName string `json:"original_name"`
	FileSize     int64  `json:"file_size"`
	Used         bool   `json:"used"`
	CreatedAt    int64  `json:"created_at"`
}

// PendingUpload is the single-slot marker recording which category a
// seller's next uploaded file belongs to.
type PendingUpload struct {
	UserID       int64  `json:"user_id"`
	CategoryCode string `json:"category_code"`
	CreatedAt    int64  `json:"created_at"`
}

// Order tracks one purchase through the escrow lifecycle.
// PriceCents is captured at creation; later category price edits do not
// change what the seller is credited. SellerID, DeliveredAt and
// ConfirmAfter are all nil until delivery and are set together.
type Order struct {
	ID           int64  `json:"id"`
	BuyerID      int64  `json:"buyer_id"`
	CategoryCode string `json:"category_code"`
	PriceCents   int64  `json:"price_cents"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	SellerID     *int64 `json:"seller_id,omitempty"`
	DeliveredAt  *int64 `json:"delivered_at,omitempty"`
	ConfirmAfter *int64 `json:"confirm_after,omitempty"`
}

// PayoutRequest is advisory bookkeeping for a manual payout; it never
// deducts balance.
type PayoutRequest struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
}
