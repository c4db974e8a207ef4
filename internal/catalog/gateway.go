package catalog

import (
	"context"

	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

// Gateway is the remote catalog and order backend consumed by the storefront.
// pkg/woocommerce.Client implements it.
type Gateway interface {
	FetchProduct(ctx context.Context, id int64) (*types.Product, error)
	FetchVariations(ctx context.Context, productID int64) ([]types.Variation, error)
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	FetchOrder(ctx context.Context, id int64) (*types.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status enums.OrderStatus) (*types.Order, error)
	MarkOrderPaid(ctx context.Context, id int64, transactionID string) (*types.Order, error)
}

// Invalidator drops memoized catalog reads after an upstream change.
type Invalidator interface {
	InvalidateProduct(ctx context.Context, productID int64) error
	InvalidateOrder(ctx context.Context, orderID int64) error
}
