package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kiranabazaar/api/internal/domain"
	pfirestore "github.com/kiranabazaar/api/internal/platform/firestore"
	"github.com/kiranabazaar/api/internal/repositories"
)

const productCollection = "products"

// CatalogRepository reads the product catalog. The cart snapshots price and
// tax from these documents; nothing in the order path writes back.
type CatalogRepository struct {
	products *pfirestore.Collection[productDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
	}, nil
}

// FindBySKU returns the active product carrying the given SKU.
func (r *CatalogRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	trimmed := strings.TrimSpace(sku)
	if trimmed == "" {
		return domain.Product{}, errors.New("catalog repository: sku is required")
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sku", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.NotFoundError("products.findBySku", fmt.Errorf("sku %s not found", trimmed))
	}

	doc := docs[0]
	return domain.Product{
		ID:        doc.ID,
		SKU:       doc.Data.SKU,
		Name:      doc.Data.Name,
		UnitPrice: doc.Data.UnitPrice,
		Currency:  doc.Data.Currency,
		Tax:       doc.Data.Tax.toDomain(),
		IsActive:  doc.Data.IsActive,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

type productDocument struct {
	SKU       string      `firestore:"sku"`
	Name      string      `firestore:"name"`
	UnitPrice int64       `firestore:"unitPrice"`
	Currency  string      `firestore:"currency"`
	Tax       taxDocument `firestore:"tax"`
	IsActive  bool        `firestore:"isActive"`
	UpdatedAt time.Time   `firestore:"updatedAt"`
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
