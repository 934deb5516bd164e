package http

import (
	"time"

	"mail-market/internal/domain"
	"mail-market/internal/storage"
)

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

type PurchaseResponse struct {
	ID        int64    `json:"id"`
	ItemType  string   `json:"item_type"`
	Quantity  int      `json:"quantity"`
	UnitPrice string   `json:"unit_price"`
	TotalCost string   `json:"total_cost"`
	Items     []string `json:"items"`
	CreatedAt string   `json:"created_at"`
}

type DepositResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
	URL          string  `json:"url,omitempty"`
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Balance:   u.Balance.StringFixed(2),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func purchaseToResponse(p domain.Purchase) PurchaseResponse {
	items := p.Items
	if items == nil {
		items = []string{}
	}
	return PurchaseResponse{
		ID:        p.ID,
		ItemType:  p.ItemType,
		Quantity:  p.Quantity,
		UnitPrice: p.UnitPrice.StringFixed(2),
		TotalCost: p.TotalCost.StringFixed(2),
		Items:     items,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func depositToResponse(d domain.Deposit) DepositResponse {
	return DepositResponse{
		ID:        d.ID,
		UserID:    d.UserID,
		Username:  d.Username,
		Amount:    d.Amount.StringFixed(2),
		Reference: d.Reference,
		Method:    d.Method,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.Format(time.RFC3339),
	}
}

func depositsToResponse(deposits []domain.Deposit) []DepositResponse {
	resp := make([]DepositResponse, len(deposits))
	for i := range deposits {
		resp[i] = depositToResponse(deposits[i])
	}
	return resp
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
