package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context, page int, limit int) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	SoftDelete(ctx context.Context, id int64) error
}
