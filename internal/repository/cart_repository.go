package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateByUserID(ctx context.Context, userID string) (model.Cart, error)
	FindByUserID(ctx context.Context, userID string) (model.Cart, error)
	Clear(ctx context.Context, cartID int64) error
	DeleteByUserID(ctx context.Context, userID string) error
}

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error)
	// 同じ商品があれば数量を置き換える
	Upsert(ctx context.Context, cartID int64, productID int64, qty int64) (model.CartItem, error)
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error
}
