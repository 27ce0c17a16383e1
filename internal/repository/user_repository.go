package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 顧客の保存・取得を約束
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	//最後のログインなど
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, userID string) error
}

type AdminRepository interface {
	Create(ctx context.Context, admin *model.Admin) error
	FindByID(ctx context.Context, adminID string) (*model.Admin, error)
	FindByEmail(ctx context.Context, email string) (*model.Admin, error)
	Update(ctx context.Context, admin *model.Admin) error
}
