package usecase

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type AuditUsecase struct {
	tx repo.TransactionManager
}

func NewAuditUsecase(tx repo.TransactionManager) *AuditUsecase {
	return &AuditUsecase{tx: txRunner{tx}}
}

// List は管理者操作ログを新しい順に返す
func (u *AuditUsecase) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	switch f.ResourceType {
	case "", model.AuditResourceProduct, model.AuditResourceOrder:
	default:
		return nil, badRequest("invalid resource_type")
	}
	if f.ResourceID < 0 || f.Offset < 0 {
		return nil, badRequest("invalid query")
	}
	if f.Limit < 0 || f.Limit > 200 {
		return nil, badRequest("invalid limit")
	}

	var logs []model.AuditLog
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		logs, err = r.AuditLogs().List(ctx, f)
		if err != nil {
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
