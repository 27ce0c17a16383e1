package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	//状態を変える前に行ロックを取る（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	//全件削除用（id昇順）
	ListIDs(ctx context.Context) ([]int64, error)

	//IDはorderに入る
	Create(ctx context.Context, order *model.Order) error
	//nilの列は書かない
	UpdateStatuses(ctx context.Context, orderID int64, status *model.OrderStatus, payment *model.PaymentStatus) error
	SaveProof(ctx context.Context, orderID int64, proof model.PaymentProof, payment model.PaymentStatus) error
	Delete(ctx context.Context, orderID int64) error

	//退会時：注文は残してuser_idだけ外す
	DetachUser(ctx context.Context, userID string) error
}

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
