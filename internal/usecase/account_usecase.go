package usecase

import (
	"context"
	"errors"

	repo "storefront/internal/repository"
)

type AccountUsecase struct {
	tx repo.TransactionManager
}

func NewAccountUsecase(tx repo.TransactionManager) *AccountUsecase {
	return &AccountUsecase{tx: txRunner{tx}}
}

// DeleteMe は顧客とカートを消す。注文は管理用に残し、user_idだけ外す
func (u *AccountUsecase) DeleteMe(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrAuthenticationFailure
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Users().FindByID(ctx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAuthenticationFailure
			}
			return storageError(err)
		}
		if err := r.Orders().DetachUser(ctx, userID); err != nil {
			return storageError(err)
		}
		if err := r.Carts().DeleteByUserID(ctx, userID); err != nil {
			return storageError(err)
		}
		if err := r.Users().Delete(ctx, userID); err != nil {
			return storageError(err)
		}
		return nil
	})
}

// Me は現在の顧客を返す
func (u *AccountUsecase) Me(ctx context.Context, userID string) (UserDTO, error) {
	if userID == "" {
		return UserDTO{}, ErrAuthenticationFailure
	}

	var out UserDTO
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		user, err := r.Users().FindByID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAuthenticationFailure
		}
		if err != nil {
			return storageError(err)
		}
		out = toUserDTO(*user)
		return nil
	})
	if err != nil {
		return UserDTO{}, err
	}
	return out, nil
}
