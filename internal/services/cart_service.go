package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/kiranabazaar/api/internal/domain"
	"github.com/kiranabazaar/api/internal/repositories"
)

const (
	defaultCartCurrency = "INR"
	maxCartLineQuantity = 50
	maxCartLines        = 100
)

var (
	// ErrCartInvalidInput signals the caller supplied invalid cart parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartProductNotFound indicates the requested SKU does not exist or is inactive.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartLineNotFound indicates the SKU is not present in the cart.
	ErrCartLineNotFound = errors.New("cart: line not found")
	// ErrCartConflict indicates a concurrent modification was detected.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates cart dependencies are currently unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the collaborators required by the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Catalog  repositories.CatalogRepository
	Shipping domain.ShippingPolicy
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	catalog  repositories.CatalogRepository
	shipping domain.ShippingPolicy
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		shipping: deps.Shipping,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetOrCreateCart loads the caller's cart, materialising an empty one on first
// access. The stored estimate is refreshed so stale estimates never survive a
// read.
func (s *cartService) GetOrCreateCart(ctx context.Context, cartID string) (domain.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if isNotFound(err) {
			return s.createEmptyCart(ctx, cartID)
		}
		return domain.Cart{}, s.translateRepoError(err)
	}

	if err := s.reprice(&cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// UpsertLine adds a product to the cart, capturing its price and tax
// configuration by value, or adjusts the quantity of an existing line without
// touching the snapshot taken at add time.
func (s *cartService) UpsertLine(ctx context.Context, cmd UpsertCartLineCommand) (domain.Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	sku := strings.TrimSpace(cmd.SKU)
	if cartID == "" || sku == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartLineQuantity {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, existed, err := s.loadOrInit(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	var expected *time.Time
	if existed {
		expected = expectedTimestamp(cmd.ExpectedUpdatedAt, cart.UpdatedAt)
	}

	idx := findLine(cart.Lines, sku)
	if idx >= 0 {
		updated := s.now()
		cart.Lines[idx].Quantity = cmd.Quantity
		cart.Lines[idx].UpdatedAt = &updated
	} else {
		if len(cart.Lines) >= maxCartLines {
			return domain.Cart{}, ErrCartInvalidInput
		}
		product, err := s.catalog.FindBySKU(ctx, sku)
		if err != nil {
			if isNotFound(err) {
				return domain.Cart{}, ErrCartProductNotFound
			}
			return domain.Cart{}, s.translateRepoError(err)
		}
		if !product.IsActive {
			return domain.Cart{}, ErrCartProductNotFound
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			SKU:       product.SKU,
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  cmd.Quantity,
			Tax:       product.Tax,
			AddedAt:   s.now(),
		})
	}

	return s.persist(ctx, cart, expected)
}

// RemoveLine deletes a SKU from the cart and re-prices the remainder.
func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (domain.Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	sku := strings.TrimSpace(cmd.SKU)
	if cartID == "" || sku == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{}, ErrCartLineNotFound
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	originalUpdated := cart.UpdatedAt

	idx := findLine(cart.Lines, sku)
	if idx < 0 {
		return domain.Cart{}, ErrCartLineNotFound
	}
	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)

	return s.persist(ctx, cart, expectedTimestamp(cmd.ExpectedUpdatedAt, originalUpdated))
}

func (s *cartService) createEmptyCart(ctx context.Context, cartID string) (domain.Cart, error) {
	now := s.now()
	cart := domain.Cart{
		ID:        cartID,
		UserID:    cartID,
		Currency:  defaultCartCurrency,
		Lines:     []domain.CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reprice(&cart); err != nil {
		return domain.Cart{}, err
	}
	stored, err := s.carts.UpsertCart(ctx, cart, nil)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *cartService) loadOrInit(ctx context.Context, cartID string) (domain.Cart, bool, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if isNotFound(err) {
			now := s.now()
			return domain.Cart{
				ID:        cartID,
				UserID:    cartID,
				Currency:  defaultCartCurrency,
				Lines:     []domain.CartLine{},
				CreatedAt: now,
				UpdatedAt: now,
			}, false, nil
		}
		return domain.Cart{}, false, s.translateRepoError(err)
	}
	return cart, true, nil
}

func (s *cartService) persist(ctx context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
	if err := s.reprice(&cart); err != nil {
		return domain.Cart{}, err
	}
	cart.UpdatedAt = s.now()

	stored, err := s.carts.UpsertCart(ctx, cart, expected)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	s.logger(ctx, "cart.updated", map[string]any{
		"cartId":     stored.ID,
		"lines":      len(stored.Lines),
		"grandTotal": stored.Estimate.GrandTotal,
	})
	return stored, nil
}

func (s *cartService) reprice(cart *domain.Cart) error {
	breakdown, err := PriceCart(cart.Lines, s.shipping, cart.Currency)
	if err != nil {
		return err
	}
	cart.Estimate = &breakdown
	return nil
}

func (s *cartService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func findLine(lines []domain.CartLine, sku string) int {
	for i, line := range lines {
		if strings.EqualFold(line.SKU, sku) {
			return i
		}
	}
	return -1
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func expectedTimestamp(fromCommand *time.Time, loaded time.Time) *time.Time {
	if fromCommand != nil {
		return fromCommand
	}
	if loaded.IsZero() {
		return nil
	}
	return &loaded
}
