package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/coalesce"
	repo "storefront/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	mutationEntityProduct = "product"
	mutationEntityOrder   = "order"

	mutationFieldStock         = "stock"
	mutationFieldStatus        = "status"
	mutationFieldPaymentStatus = "payment_status"
)

// 管理画面の連打をまとめるためのキー（管理者・対象・フィールドごと）
type mutationKey struct {
	AdminID string
	Entity  string
	ID      int64
	Field   string
}

func (k mutationKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", k.AdminID, k.Entity, k.ID, k.Field)
}

func parseMutationKey(s string) (mutationKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return mutationKey{}, fmt.Errorf("malformed mutation key %q", s)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return mutationKey{}, fmt.Errorf("malformed mutation key %q: %w", s, err)
	}
	return mutationKey{AdminID: parts[0], Entity: parts[1], ID: id, Field: parts[3]}, nil
}

// 楽観的な値（Local）とサーバーが受け付けた値（Confirmed）
type MutationOutput struct {
	Key       string      `json:"key"`
	Entity    string      `json:"entity"`
	ID        int64       `json:"id"`
	Field     string      `json:"field"`
	Local     interface{} `json:"local"`
	Confirmed interface{} `json:"confirmed"`
	Pending   bool        `json:"pending"`
	Error     string      `json:"error,omitempty"`
}

func toMutationOutput[V any](st coalesce.State[V]) MutationOutput {
	out := MutationOutput{
		Key:       st.Key,
		Local:     st.Local,
		Confirmed: st.Confirmed,
		Pending:   st.Pending,
	}
	if k, err := parseMutationKey(st.Key); err == nil {
		out.Entity, out.ID, out.Field = k.Entity, k.ID, k.Field
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
		if he, ok := AsHTTPError(st.Err); ok {
			out.Error = he.Message
		}
	}
	return out
}

// MutationUsecase は在庫の±と注文ステータス変更を窓の間まとめてから書く。
// 在庫は差分で書くので、同時に入った注文の減算を上書きしない。
type MutationUsecase struct {
	stock  *coalesce.Coalescer[int64]
	orders *coalesce.Coalescer[string]

	products    repo.ProductRepository
	productUC   *ProductUsecase
	adminOrders *AdminOrderUsecase
	log         logrus.FieldLogger
}

func NewMutationUsecase(
	products repo.ProductRepository,
	productUC *ProductUsecase,
	adminOrders *AdminOrderUsecase,
	window time.Duration,
	log logrus.FieldLogger,
) *MutationUsecase {
	u := &MutationUsecase{
		products:    products,
		productUC:   productUC,
		adminOrders: adminOrders,
		log:         log,
	}

	onError := func(key string, err error) {
		u.log.WithError(err).WithField("key", key).Warn("coalesced admin edit rolled back")
	}

	u.stock = coalesce.New(u.loadStock, u.writeStock, coalesce.Options[int64]{
		Window: window,
		//書き込み中に来た差分を、書き込み後の値に載せ直す
		Rebase: func(local, written, stored int64) int64 {
			return local - written + stored
		},
		OnError: onError,
	})
	u.orders = coalesce.New(u.loadOrderField, u.writeOrderField, coalesce.Options[string]{
		Window:  window,
		OnError: onError,
	})
	return u
}

func (u *MutationUsecase) loadStock(ctx context.Context, key string) (int64, error) {
	k, err := parseMutationKey(key)
	if err != nil {
		return 0, err
	}
	p, err := u.products.FindByID(ctx, k.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, notFound()
	}
	if err != nil {
		return 0, storageError(err)
	}
	return p.Stock, nil
}

func (u *MutationUsecase) writeStock(ctx context.Context, key string, confirmed, target int64) (int64, error) {
	k, err := parseMutationKey(key)
	if err != nil {
		return 0, err
	}
	out, err := u.productUC.AdminAdjustStock(ctx, k.AdminID, k.ID, target-confirmed, "admin edit")
	if err != nil {
		return 0, err
	}
	return out.Stock, nil
}

func (u *MutationUsecase) loadOrderField(ctx context.Context, key string) (string, error) {
	k, err := parseMutationKey(key)
	if err != nil {
		return "", err
	}
	o, err := u.adminOrders.Get(ctx, k.ID)
	if err != nil {
		return "", err
	}
	if k.Field == mutationFieldPaymentStatus {
		return string(o.PaymentStatus), nil
	}
	return string(o.Status), nil
}

func (u *MutationUsecase) writeOrderField(ctx context.Context, key string, _, target string) (string, error) {
	k, err := parseMutationKey(key)
	if err != nil {
		return "", err
	}

	var in AdminUpdateOrderInput
	if k.Field == mutationFieldPaymentStatus {
		in.PaymentStatus = &target
	} else {
		in.Status = &target
	}

	o, err := u.adminOrders.Update(ctx, k.AdminID, k.ID, in)
	if err != nil {
		return "", err
	}
	if k.Field == mutationFieldPaymentStatus {
		return string(o.PaymentStatus), nil
	}
	return string(o.Status), nil
}

// AdjustStock は在庫に delta を足す（表示上はすぐ反映、書き込みは窓のあと）
func (u *MutationUsecase) AdjustStock(ctx context.Context, adminID string, productID int64, delta int64) (MutationOutput, error) {
	if adminID == "" {
		return MutationOutput{}, ErrAuthenticationFailure
	}
	if productID <= 0 {
		return MutationOutput{}, badRequest("invalid product id")
	}
	if delta == 0 {
		return MutationOutput{}, badRequest("delta must not be 0")
	}

	key := mutationKey{AdminID: adminID, Entity: mutationEntityProduct, ID: productID, Field: mutationFieldStock}
	st, err := u.stock.Mutate(ctx, key.String(), func(cur int64) (int64, error) {
		if cur+delta < 0 {
			return cur, &HTTPError{Status: http.StatusConflict, Message: "stock would go negative"}
		}
		return cur + delta, nil
	})
	if err != nil {
		return MutationOutput{}, mutationError(err)
	}
	return toMutationOutput(st), nil
}

// SetOrderField は status か payment_status を変更する（最後の値だけ書く）
func (u *MutationUsecase) SetOrderField(ctx context.Context, adminID string, orderID int64, in AdminUpdateOrderInput) ([]MutationOutput, error) {
	if adminID == "" {
		return nil, ErrAuthenticationFailure
	}
	if orderID <= 0 {
		return nil, badRequest("invalid id")
	}
	ch, err := in.change()
	if err != nil {
		return nil, err
	}

	outs := []MutationOutput{}
	if ch.Status != nil {
		out, err := u.setOrderField(ctx, adminID, orderID, mutationFieldStatus, string(*ch.Status))
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	if ch.PaymentStatus != nil {
		out, err := u.setOrderField(ctx, adminID, orderID, mutationFieldPaymentStatus, string(*ch.PaymentStatus))
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func (u *MutationUsecase) setOrderField(ctx context.Context, adminID string, orderID int64, field string, value string) (MutationOutput, error) {
	key := mutationKey{AdminID: adminID, Entity: mutationEntityOrder, ID: orderID, Field: field}
	st, err := u.orders.Mutate(ctx, key.String(), func(string) (string, error) {
		return value, nil
	})
	if err != nil {
		return MutationOutput{}, mutationError(err)
	}
	return toMutationOutput(st), nil
}

// Pending はこの管理者の未確定・失敗した編集を返す
func (u *MutationUsecase) Pending(adminID string) []MutationOutput {
	prefix := adminID + "|"
	outs := []MutationOutput{}
	for _, st := range u.stock.States(prefix) {
		outs = append(outs, toMutationOutput(st))
	}
	for _, st := range u.orders.States(prefix) {
		outs = append(outs, toMutationOutput(st))
	}
	return outs
}

// Close は受付を止めて、溜まっている編集を書き切る（シャットダウン時）
func (u *MutationUsecase) Close(ctx context.Context) error {
	errStock := u.stock.Close(ctx)
	errOrders := u.orders.Close(ctx)
	return errors.Join(errStock, errOrders)
}

func mutationError(err error) error {
	if errors.Is(err, coalesce.ErrClosed) {
		return &HTTPError{Status: http.StatusServiceUnavailable, Message: "shutting down", Err: err}
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return storageError(err)
}
