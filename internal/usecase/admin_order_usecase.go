package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/domain/orderstate"
	repo "storefront/internal/repository"

	"github.com/sirupsen/logrus"
)

type AdminOrderUsecase struct {
	tx       repo.TransactionManager
	notifier Notifier
	clock    Clock
	log      logrus.FieldLogger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, notifier Notifier, clock Clock, log logrus.FieldLogger) *AdminOrderUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AdminOrderUsecase{tx: txRunner{tx}, notifier: notifier, clock: clock, log: log}
}

// 片方だけでもよい
type AdminUpdateOrderInput struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"payment_status"`
}

// 在庫を戻せなかった明細（商品が削除済み）
type MissingLine struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// 削除の結果。Partialでも削除自体は成功している
type ReversalReport struct {
	Deleted []int64       `json:"deleted"`
	Missing []MissingLine `json:"missing"`
	Partial bool          `json:"partial"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	if err := validatePage(f.Page, f.Limit); err != nil {
		return OrderListOutput{}, err
	}
	f.Status = strings.TrimSpace(f.Status)
	f.PaymentStatus = strings.TrimSpace(f.PaymentStatus)
	if f.Status != "" && !orderstate.ValidStatus(model.OrderStatus(f.Status)) {
		return OrderListOutput{}, badRequest("invalid status")
	}
	if f.PaymentStatus != "" && !orderstate.ValidPaymentStatus(model.PaymentStatus(f.PaymentStatus)) {
		return OrderListOutput{}, badRequest("invalid payment_status")
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return storageError(err)
		}
		out.Total = total

		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return storageError(err)
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

func (u *AdminOrderUsecase) Get(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, badRequest("invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound()
		}
		if err != nil {
			return storageError(err)
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return storageError(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// Update は status / payment_status を状態遷移表に沿って更新する。
// 取消しでも在庫は戻さない（戻すのは削除だけ）。
func (u *AdminOrderUsecase) Update(ctx context.Context, actorAdminID string, orderID int64, in AdminUpdateOrderInput) (OrderOutput, error) {
	if actorAdminID == "" {
		return OrderOutput{}, ErrAuthenticationFailure
	}
	if orderID <= 0 {
		return OrderOutput{}, badRequest("invalid id")
	}

	ch, err := in.change()
	if err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput
	var deliveredTo string

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//同じ注文への更新は順番に（読んだ状態で遷移を判定するため）
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound()
		}
		if err != nil {
			return storageError(err)
		}

		res, err := orderstate.Apply(o, ch)
		if err != nil {
			return transitionError(err)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return storageError(err)
		}

		// すでに同じなら何もしない
		if res.Status == o.Status && res.PaymentStatus == o.PaymentStatus {
			out = toOrderOutput(o, items)
			return nil
		}

		var status *model.OrderStatus
		var payment *model.PaymentStatus
		if res.Status != o.Status {
			status = &res.Status
		}
		if res.PaymentStatus != o.PaymentStatus {
			payment = &res.PaymentStatus
		}
		if err := r.Orders().UpdateStatuses(ctx, o.ID, status, payment); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound()
			}
			return storageError(err)
		}

		before, _ := json.Marshal(map[string]string{"status": string(o.Status), "payment_status": string(o.PaymentStatus)})
		after, _ := json.Marshal(map[string]string{"status": string(res.Status), "payment_status": string(res.PaymentStatus)})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorAdminID: actorAdminID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.ID,
			BeforeJSON:   string(before),
			AfterJSON:    string(after),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return storageError(err)
		}

		if res.BecameDelivered && o.UserID != nil {
			user, err := r.Users().FindByID(ctx, *o.UserID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
			case err != nil:
				return storageError(err)
			default:
				deliveredTo = user.Email
			}
		}

		o.Status = res.Status
		o.PaymentStatus = res.PaymentStatus
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	if deliveredTo != "" {
		sendNotification(ctx, u.notifier, u.log, Notification{
			Kind:    NotificationOrderDelivered,
			Email:   deliveredTo,
			OrderID: out.ID,
			At:      u.clock.Now(),
		})
	}
	return out, nil
}

func (in AdminUpdateOrderInput) change() (orderstate.Change, error) {
	var ch orderstate.Change
	if in.Status != nil {
		s := model.OrderStatus(strings.TrimSpace(*in.Status))
		if !orderstate.ValidStatus(s) {
			return ch, badRequest("invalid status")
		}
		ch.Status = &s
	}
	if in.PaymentStatus != nil {
		p := model.PaymentStatus(strings.TrimSpace(*in.PaymentStatus))
		if !orderstate.ValidPaymentStatus(p) {
			return ch, badRequest("invalid payment_status")
		}
		ch.PaymentStatus = &p
	}
	if ch.Empty() {
		return ch, badRequest("status or payment_status required")
	}
	return ch, nil
}

// 遷移エラーは409（いまの状態とぶつかる）
func transitionError(err error) error {
	switch {
	case errors.Is(err, orderstate.ErrUnknownStatus):
		return &HTTPError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	case errors.Is(err, orderstate.ErrInvalidTransition), errors.Is(err, orderstate.ErrInconsistentPair):
		return &HTTPError{Status: http.StatusConflict, Message: err.Error(), Err: err}
	}
	return storageError(err)
}

// DeleteOrder は注文を削除して在庫を戻す（同じトランザクション）
func (u *AdminOrderUsecase) DeleteOrder(ctx context.Context, actorAdminID string, orderID int64) (ReversalReport, error) {
	if actorAdminID == "" {
		return ReversalReport{}, ErrAuthenticationFailure
	}
	if orderID <= 0 {
		return ReversalReport{}, badRequest("invalid id")
	}

	var report ReversalReport

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		report = ReversalReport{Deleted: []int64{}, Missing: []MissingLine{}}

		if _, err := r.Orders().FindByIDForUpdate(ctx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound()
			}
			return storageError(err)
		}
		return u.reverse(ctx, r, actorAdminID, orderID, &report)
	})
	if err != nil {
		return ReversalReport{}, err
	}

	u.logPartial(report)
	return report, nil
}

// DeleteAllOrders は全注文を1トランザクションで削除する（途中で失敗したら何も消えない）
func (u *AdminOrderUsecase) DeleteAllOrders(ctx context.Context, actorAdminID string) (ReversalReport, error) {
	if actorAdminID == "" {
		return ReversalReport{}, ErrAuthenticationFailure
	}

	var report ReversalReport

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		report = ReversalReport{Deleted: []int64{}, Missing: []MissingLine{}}

		ids, err := r.Orders().ListIDs(ctx)
		if err != nil {
			return storageError(err)
		}
		for _, id := range ids {
			if err := u.reverse(ctx, r, actorAdminID, id, &report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReversalReport{}, err
	}

	u.logPartial(report)
	return report, nil
}

func (u *AdminOrderUsecase) reverse(ctx context.Context, r repo.TxRepos, actorAdminID string, orderID int64, report *ReversalReport) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return storageError(err)
	}

	for _, it := range items {
		err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity)
		if errors.Is(err, repo.ErrNotFound) {
			//商品が消えていても削除は進める
			report.Missing = append(report.Missing, MissingLine{OrderID: orderID, ProductID: it.ProductID, Quantity: it.Quantity})
			report.Partial = true
			continue
		}
		if err != nil {
			return storageError(err)
		}
	}

	if err := r.OrderItems().DeleteByOrderID(ctx, orderID); err != nil {
		return storageError(err)
	}
	if err := r.Orders().Delete(ctx, orderID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound()
		}
		return storageError(err)
	}

	before, _ := json.Marshal(items)
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorAdminID: actorAdminID,
		Action:       model.AuditActionDeleteOrder,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   string(before),
		AfterJSON:    "{}",
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		return storageError(err)
	}

	report.Deleted = append(report.Deleted, orderID)
	return nil
}

func (u *AdminOrderUsecase) logPartial(report ReversalReport) {
	if !report.Partial {
		return
	}
	for _, m := range report.Missing {
		u.log.WithFields(logrus.Fields{
			"order_id":   m.OrderID,
			"product_id": m.ProductID,
			"quantity":   m.Quantity,
		}).Warn("order deleted but stock not restored: product no longer exists")
	}
}
