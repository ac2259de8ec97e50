package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kiranabazaar/api/internal/domain"
	pfirestore "github.com/kiranabazaar/api/internal/platform/firestore"
	"github.com/kiranabazaar/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders. Line snapshots and the price breakdown are
// written once at insert and never mutated; only status fields change later.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection),
	}, nil
}

// Insert creates the order document. Inserting an existing id fails with a
// conflict so retried placements cannot silently overwrite pricing evidence.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.orders.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, orderDocumentFrom(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads a stored order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdateStatus transitions the order status and stamps the lifecycle timestamps.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time, reason string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	at = at.UTC()

	ref, err := r.orders.Doc(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	var updated orderDocument
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		doc.Status = string(status)
		doc.UpdatedAt = at
		switch status {
		case domain.OrderStatusPaid:
			doc.PaidAt = &at
		case domain.OrderStatusCanceled:
			doc.CanceledAt = &at
		}
		if trimmed := strings.TrimSpace(reason); trimmed != "" {
			doc.StatusReason = trimmed
		}

		updated = doc
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated.toDomain(id), nil
}

// ListByUser returns the user's most recent orders.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", uid).
			OrderBy("createdAt", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

type orderDocument struct {
	UserID       string               `firestore:"userId,omitempty"`
	CartRef      string               `firestore:"cartRef,omitempty"`
	Status       string               `firestore:"status"`
	StatusReason string               `firestore:"statusReason,omitempty"`
	Currency     string               `firestore:"currency"`
	Lines        []orderLineDocument  `firestore:"lines"`
	Breakdown    breakdownDocument    `firestore:"breakdown"`
	Shipping     shippingDocument     `firestore:"shipping"`
	Address      *addressDocument     `firestore:"address,omitempty"`
	Payment      *paymentDocument     `firestore:"payment,omitempty"`
	GuestContact string               `firestore:"guestContact,omitempty"`
	CreatedAt    time.Time            `firestore:"createdAt"`
	UpdatedAt    time.Time            `firestore:"updatedAt"`
	PaidAt       *time.Time           `firestore:"paidAt,omitempty"`
	CanceledAt   *time.Time           `firestore:"canceledAt,omitempty"`
}

type orderLineDocument struct {
	SKU         string      `firestore:"sku"`
	ProductID   string      `firestore:"productId"`
	Name        string      `firestore:"name"`
	UnitPrice   int64       `firestore:"unitPrice"`
	Quantity    int         `firestore:"quantity"`
	Tax         taxDocument `firestore:"tax"`
	TaxableBase int64       `firestore:"taxableBase"`
	TaxAmount   int64       `firestore:"taxAmount"`
}

type shippingDocument struct {
	FreeThreshold int64 `firestore:"freeThreshold"`
	FlatFee       int64 `firestore:"flatFee"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type paymentDocument struct {
	Provider  string    `firestore:"provider"`
	GatewayID string    `firestore:"gatewayId"`
	Amount    int64     `firestore:"amount"`
	Currency  string    `firestore:"currency"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func orderDocumentFrom(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:       order.UserID,
		CartRef:      order.CartRef,
		Status:       string(order.Status),
		Currency:     order.Currency,
		Lines:        make([]orderLineDocument, 0, len(order.Lines)),
		Breakdown:    *breakdownDocumentFrom(&order.Breakdown),
		Shipping:     shippingDocument{FreeThreshold: order.Shipping.FreeThreshold, FlatFee: order.Shipping.FlatFee},
		GuestContact: order.GuestContact,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		PaidAt:       order.PaidAt,
		CanceledAt:   order.CanceledAt,
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			SKU:         line.SKU,
			ProductID:   line.ProductID,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Tax:         taxDocumentFrom(line.Tax),
			TaxableBase: line.TaxableBase,
			TaxAmount:   line.TaxAmount,
		})
	}
	if order.Address != nil {
		doc.Address = &addressDocument{
			Recipient:  order.Address.Recipient,
			Line1:      order.Address.Line1,
			Line2:      order.Address.Line2,
			City:       order.Address.City,
			State:      order.Address.State,
			PostalCode: order.Address.PostalCode,
			Country:    order.Address.Country,
			Phone:      order.Address.Phone,
		}
	}
	if order.Payment != nil {
		doc.Payment = &paymentDocument{
			Provider:  order.Payment.Provider,
			GatewayID: order.Payment.GatewayID,
			Amount:    order.Payment.Amount,
			Currency:  order.Payment.Currency,
			Status:    order.Payment.Status,
			CreatedAt: order.Payment.CreatedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:           id,
		UserID:       d.UserID,
		CartRef:      d.CartRef,
		Status:       domain.OrderStatus(d.Status),
		Currency:     d.Currency,
		Lines:        make([]domain.OrderLineSnapshot, 0, len(d.Lines)),
		Breakdown:    *(&d.Breakdown).toDomain(),
		Shipping:     domain.ShippingPolicy{FreeThreshold: d.Shipping.FreeThreshold, FlatFee: d.Shipping.FlatFee},
		GuestContact: d.GuestContact,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		PaidAt:       d.PaidAt,
		CanceledAt:   d.CanceledAt,
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLineSnapshot{
			SKU:         line.SKU,
			ProductID:   line.ProductID,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Tax:         line.Tax.toDomain(),
			TaxableBase: line.TaxableBase,
			TaxAmount:   line.TaxAmount,
		})
	}
	if d.Address != nil {
		order.Address = &domain.Address{
			Recipient:  d.Address.Recipient,
			Line1:      d.Address.Line1,
			Line2:      d.Address.Line2,
			City:       d.Address.City,
			State:      d.Address.State,
			PostalCode: d.Address.PostalCode,
			Country:    d.Address.Country,
			Phone:      d.Address.Phone,
		}
	}
	if d.Payment != nil {
		order.Payment = &domain.PaymentOrder{
			Provider:  d.Payment.Provider,
			GatewayID: d.Payment.GatewayID,
			Amount:    d.Payment.Amount,
			Currency:  d.Payment.Currency,
			Status:    d.Payment.Status,
			CreatedAt: d.Payment.CreatedAt,
		}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
