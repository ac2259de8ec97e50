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

const cartCollection = "carts"

// CartRepository stores carts as single documents with embedded lines. The
// stored updatedAt field doubles as the optimistic locking token.
type CartRepository struct {
	provider *pfirestore.Provider
	carts    *pfirestore.Collection[cartDocument]
	now      func() time.Time
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		carts:    pfirestore.NewCollection[cartDocument](provider, cartCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetCart loads the cart document for the given id.
func (r *CartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}
	doc, err := r.carts.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpsertCart writes the cart. A non-nil expectedUpdatedAt turns the write into
// a compare-and-set on the stored timestamp.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := r.now()
	doc := cartDocumentFrom(cart, now)

	if expectedUpdatedAt == nil || expectedUpdatedAt.IsZero() {
		if _, err := r.carts.Set(ctx, id, doc); err != nil {
			return domain.Cart{}, err
		}
		return doc.toDomain(id), nil
	}

	expected := expectedUpdatedAt.UTC()
	ref, err := r.carts.Doc(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored cartDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if !stored.UpdatedAt.UTC().Equal(expected) {
			return pfirestore.ConflictError("carts.upsert", errors.New("cart modified concurrently"))
		}
		doc.CreatedAt = stored.CreatedAt
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(id), nil
}

// DeleteCart removes the cart document. Missing carts are ignored.
func (r *CartRepository) DeleteCart(ctx context.Context, cartID string) error {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return errors.New("cart repository: cart id is required")
	}
	return r.carts.Delete(ctx, id)
}

type cartDocument struct {
	UserID    string             `firestore:"userId,omitempty"`
	Currency  string             `firestore:"currency"`
	Lines     []cartLineDocument `firestore:"lines"`
	Estimate  *breakdownDocument `firestore:"estimate,omitempty"`
	Metadata  map[string]any     `firestore:"metadata,omitempty"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	SKU       string      `firestore:"sku"`
	ProductID string      `firestore:"productId"`
	Name      string      `firestore:"name"`
	UnitPrice int64       `firestore:"unitPrice"`
	Quantity  int         `firestore:"quantity"`
	Tax       taxDocument `firestore:"tax"`
	AddedAt   time.Time   `firestore:"addedAt"`
	UpdatedAt *time.Time  `firestore:"updatedAt,omitempty"`
}

type taxDocument struct {
	RateBps   int64 `firestore:"rateBps"`
	Inclusive bool  `firestore:"inclusive"`
	Taxable   bool  `firestore:"taxable"`
}

type breakdownDocument struct {
	Currency      string              `firestore:"currency"`
	ItemsSubtotal int64               `firestore:"itemsSubtotal"`
	TaxTotal      int64               `firestore:"taxTotal"`
	ShippingFee   int64               `firestore:"shippingFee"`
	GrandTotal    int64               `firestore:"grandTotal"`
	Lines         []lineTaxDocument   `firestore:"lines,omitempty"`
}

type lineTaxDocument struct {
	LineRef     string `firestore:"lineRef"`
	TaxableBase int64  `firestore:"taxableBase"`
	TaxAmount   int64  `firestore:"taxAmount"`
}

func cartDocumentFrom(cart domain.Cart, now time.Time) cartDocument {
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	doc := cartDocument{
		UserID:    strings.TrimSpace(cart.UserID),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Lines:     make([]cartLineDocument, 0, len(cart.Lines)),
		Estimate:  breakdownDocumentFrom(cart.Estimate),
		Metadata:  cart.Metadata,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			SKU:       line.SKU,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Tax:       taxDocumentFrom(line.Tax),
			AddedAt:   line.AddedAt,
			UpdatedAt: line.UpdatedAt,
		})
	}
	return doc
}

func (d cartDocument) toDomain(id string) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		UserID:    d.UserID,
		Currency:  d.Currency,
		Lines:     make([]domain.CartLine, 0, len(d.Lines)),
		Estimate:  d.Estimate.toDomain(),
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, line := range d.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			SKU:       line.SKU,
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Tax:       line.Tax.toDomain(),
			AddedAt:   line.AddedAt,
			UpdatedAt: line.UpdatedAt,
		})
	}
	return cart
}

func taxDocumentFrom(tax domain.TaxConfig) taxDocument {
	return taxDocument{RateBps: tax.RateBps, Inclusive: tax.Inclusive, Taxable: tax.Taxable}
}

func (d taxDocument) toDomain() domain.TaxConfig {
	return domain.TaxConfig{RateBps: d.RateBps, Inclusive: d.Inclusive, Taxable: d.Taxable}
}

func breakdownDocumentFrom(b *domain.OrderPriceBreakdown) *breakdownDocument {
	if b == nil {
		return nil
	}
	doc := &breakdownDocument{
		Currency:      b.Currency,
		ItemsSubtotal: b.ItemsSubtotal,
		TaxTotal:      b.TaxTotal,
		ShippingFee:   b.ShippingFee,
		GrandTotal:    b.GrandTotal,
	}
	for _, line := range b.Lines {
		doc.Lines = append(doc.Lines, lineTaxDocument{
			LineRef:     line.LineRef,
			TaxableBase: line.TaxableBase,
			TaxAmount:   line.TaxAmount,
		})
	}
	return doc
}

func (d *breakdownDocument) toDomain() *domain.OrderPriceBreakdown {
	if d == nil {
		return nil
	}
	b := &domain.OrderPriceBreakdown{
		Currency:      d.Currency,
		ItemsSubtotal: d.ItemsSubtotal,
		TaxTotal:      d.TaxTotal,
		ShippingFee:   d.ShippingFee,
		GrandTotal:    d.GrandTotal,
	}
	for _, line := range d.Lines {
		b.Lines = append(b.Lines, domain.LineTaxBreakdown{
			LineRef:     line.LineRef,
			TaxableBase: line.TaxableBase,
			TaxAmount:   line.TaxAmount,
		})
	}
	return b
}

var _ repositories.CartRepository = (*CartRepository)(nil)
