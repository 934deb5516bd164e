package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-market/internal/alert"
	"mail-market/internal/domain"
	"mail-market/internal/events"
	"mail-market/internal/inventory"
	"mail-market/internal/metrics"
	"mail-market/internal/repository"
	"mail-market/internal/storage"
)

const (
	maxPurchaseQuantity = 1000
	defaultHistoryLimit = 100
)

// PriceList maps lower-cased item types to unit prices. It is never mutated
// after construction.
type PriceList map[string]decimal.Decimal

func (p PriceList) Lookup(itemType string) (decimal.Decimal, bool) {
	price, ok := p[strings.ToLower(strings.TrimSpace(itemType))]
	return price, ok
}

type PurchaseRequest struct {
	UserID   int64
	ItemType string
	Quantity int
}

type PurchaseResult struct {
	NewBalance decimal.Decimal
	Tokens     []string
	Purchase   *domain.Purchase
}

type PriceEntry struct {
	ItemType  string          `json:"item_type"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PurchaseService is the only path that spends a user's balance.
type PurchaseService interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	Quote(itemType string, quantity int) (unit, total decimal.Decimal, err error)
	Prices() []PriceEntry
	Stock(ctx context.Context, itemType string) (int, error)
	PurchaseHistory(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error)
}

// PurchaseDeps groups the collaborators of the purchase coordinator. Events
// and Archive are optional.
type PurchaseDeps struct {
	Users     repository.UserRepository
	Purchases repository.PurchaseRepository
	Inventory inventory.Provider
	Prices    PriceList
	Alerts    alert.Sink
	Events    events.Publisher
	Archive   storage.Archive
	Logger    logrus.FieldLogger
}

type purchaseService struct {
	users     repository.UserRepository
	purchases repository.PurchaseRepository
	inventory inventory.Provider
	prices    PriceList
	alerts    alert.Sink
	events    events.Publisher
	archive   storage.Archive
	log       logrus.FieldLogger
	locks     *keyLock
	now       func() time.Time
}

func NewPurchaseService(deps PurchaseDeps) PurchaseService {
	prices := make(PriceList, len(deps.Prices))
	for k, v := range deps.Prices {
		prices[strings.ToLower(k)] = v
	}
	log := deps.Logger
	if log == nil {
		log = logrus.New()
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = alert.NewNotifier(log, deps.Events, deps.Archive)
	}
	return &purchaseService{
		users:     deps.Users,
		purchases: deps.Purchases,
		inventory: deps.Inventory,
		prices:    prices,
		alerts:    alerts,
		events:    deps.Events,
		archive:   deps.Archive,
		log:       log.WithField("component", "purchase"),
		locks:     newKeyLock(),
		now:       time.Now,
	}
}

func (s *purchaseService) Quote(itemType string, quantity int) (decimal.Decimal, decimal.Decimal, error) {
	if strings.TrimSpace(itemType) == "" {
		return decimal.Zero, decimal.Zero, invalidf("item type is required")
	}
	unit, ok := s.prices.Lookup(itemType)
	if !ok {
		return decimal.Zero, decimal.Zero, invalidf("unknown item type %q", itemType)
	}
	if quantity <= 0 {
		return decimal.Zero, decimal.Zero, invalidf("quantity must be a positive integer")
	}
	if quantity > maxPurchaseQuantity {
		return decimal.Zero, decimal.Zero, invalidf("quantity must not exceed %d", maxPurchaseQuantity)
	}
	return unit, unit.Mul(decimal.NewFromInt(int64(quantity))), nil
}

func (s *purchaseService) Prices() []PriceEntry {
	out := make([]PriceEntry, 0, len(s.prices))
	for itemType, price := range s.prices {
		out = append(out, PriceEntry{ItemType: itemType, UnitPrice: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemType < out[j].ItemType })
	return out
}

func (s *purchaseService) Stock(ctx context.Context, itemType string) (int, error) {
	itemType = strings.TrimSpace(itemType)
	if _, ok := s.prices.Lookup(itemType); !ok {
		return 0, invalidf("unknown item type %q", itemType)
	}
	return s.inventory.CheckStock(ctx, itemType), nil
}

func (s *purchaseService) PurchaseHistory(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	purchases, err := s.purchases.ListByUser(ctx, userID, limit)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "operation": "purchase_history"}).Error("list purchases")
		return nil, ErrStorageFailure
	}
	return purchases, nil
}

func (s *purchaseService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	itemType := strings.TrimSpace(req.ItemType)
	unit, total, err := s.Quote(itemType, req.Quantity)
	if err != nil {
		metrics.RecordPurchase("unknown", "invalid", 0)
		return nil, err
	}
	priceKey := strings.ToLower(itemType)

	log := s.log.WithFields(logrus.Fields{
		"user_id":   req.UserID,
		"item_type": itemType,
		"quantity":  req.Quantity,
		"amount":    total.String(),
	})

	unlock := s.locks.Lock(req.UserID)
	defer unlock()

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		mapped := storageError(err)
		if errors.Is(mapped, ErrStorageFailure) {
			log.WithError(err).WithField("operation", "load_user").Error("purchase aborted")
		}
		metrics.RecordPurchase(priceKey, "error", 0)
		return nil, mapped
	}
	if user.Balance.LessThan(total) {
		metrics.RecordPurchase(priceKey, "insufficient_funds", 0)
		return nil, fmt.Errorf("%w: balance %s is below cost %s", ErrInsufficientFunds, user.Balance.StringFixed(2), total.StringFixed(2))
	}

	if available := s.inventory.CheckStock(ctx, itemType); available < req.Quantity {
		metrics.RecordPurchase(priceKey, "out_of_stock", 0)
		return nil, fmt.Errorf("%w: %d available", ErrOutOfStock, available)
	}

	tokens, err := s.inventory.Allocate(ctx, itemType, req.Quantity)
	if err != nil {
		log.WithError(err).Warn("allocation failed, nothing charged")
		metrics.RecordPurchase(priceKey, "allocation_failed", 0)
		return nil, ErrAllocationFailed
	}
	if len(tokens) != req.Quantity {
		log.WithField("received", len(tokens)).Error("provider returned wrong item count")
		metrics.RecordPurchase(priceKey, "allocation_failed", 0)
		return nil, ErrAllocationFailed
	}

	purchase := &domain.Purchase{
		UserID:    req.UserID,
		ItemType:  itemType,
		Quantity:  req.Quantity,
		UnitPrice: unit,
		TotalCost: total,
		Items:     tokens,
		CreatedAt: s.now().UTC(),
	}

	// items are consumed upstream from here on, a dropped client must not
	// abandon the commit
	commitCtx := context.WithoutCancel(ctx)
	newBalance, err := s.purchases.Commit(commitCtx, purchase)
	if err != nil {
		s.alerts.AllocationOrphaned(commitCtx, alert.OrphanedAllocation{
			UserID:    req.UserID,
			ItemType:  itemType,
			Quantity:  req.Quantity,
			TotalCost: total,
			Items:     tokens,
			Cause:     err,
		})
		metrics.RecordPurchase(priceKey, "commit_failed", 0)
		mapped := storageError(err)
		if errors.Is(mapped, ErrInsufficientFunds) {
			return nil, fmt.Errorf("%w: balance changed during purchase", ErrInsufficientFunds)
		}
		return nil, mapped
	}

	metrics.RecordPurchase(priceKey, "success", len(tokens))
	log.WithFields(logrus.Fields{"purchase_id": purchase.ID, "balance": newBalance.String()}).Info("purchase completed")
	s.afterCommit(commitCtx, purchase, newBalance, log)

	return &PurchaseResult{NewBalance: newBalance, Tokens: tokens, Purchase: purchase}, nil
}

// afterCommit publishes and archives the purchase. Failures are logged only.
func (s *purchaseService) afterCommit(ctx context.Context, p *domain.Purchase, balance decimal.Decimal, log logrus.FieldLogger) {
	if s.events != nil {
		evt := events.PurchaseCompleted{
			PurchaseID: p.ID,
			UserID:     p.UserID,
			ItemType:   p.ItemType,
			Quantity:   p.Quantity,
			TotalCost:  p.TotalCost.String(),
			Balance:    balance.String(),
			Timestamp:  p.CreatedAt,
		}
		if err := s.events.Publish(ctx, events.RoutingPurchaseCompleted, evt); err != nil {
			log.WithError(err).Warn("publish purchase event")
		}
	}
	if s.archive != nil {
		key := fmt.Sprintf("%s%d/%d.json", storage.ReceiptPrefix, p.UserID, p.ID)
		if err := s.archive.PutJSON(ctx, key, p); err != nil {
			log.WithError(err).Warn("archive purchase receipt")
		}
	}
}
