package repositories

import (
	"context"
	"time"

	domain "github.com/kiranabazaar/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the categorisation
// services use to translate them into domain errors.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns cart header + line persistence with optimistic locking
// on the cart's UpdatedAt timestamp.
type CartRepository interface {
	// GetCart returns the cart for the given id. Implementations return a
	// RepositoryError with IsNotFound when no cart document exists yet.
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)
	// UpsertCart writes the cart. When expectedUpdatedAt is non-nil the write
	// fails with a conflict error if the stored timestamp differs.
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error)
	// DeleteCart removes the cart after order placement.
	DeleteCart(ctx context.Context, cartID string) error
}

// OrderRepository persists orders with their frozen line snapshots and full
// price breakdown.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time, reason string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

// CatalogRepository is the read-only product source the cart snapshots from.
type CatalogRepository interface {
	FindBySKU(ctx context.Context, sku string) (domain.Product, error)
}
