package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/orderstate"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type OrderUsecase struct {
	tx       repo.TransactionManager
	notifier Notifier
	clock    Clock
	log      logrus.FieldLogger
}

func NewOrderUsecase(tx repo.TransactionManager, notifier Notifier, clock Clock, log logrus.FieldLogger) *OrderUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &OrderUsecase{tx: txRunner{tx}, notifier: notifier, clock: clock, log: log}
}

type CheckoutItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type PaymentProofInput struct {
	TransactionID string          `json:"transaction_id"`
	Method        string          `json:"method"`
	ScreenshotURL string          `json:"screenshot_url"`
	FeePaid       decimal.Decimal `json:"fee_paid"`
}

type CheckoutInput struct {
	Items         []CheckoutItemInput
	PaymentMethod string
	PaymentProof  *PaymentProofInput
	ClearCart     bool
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	ImageURL  string          `json:"image_url"`
}

type OrderOutput struct {
	ID            int64               `json:"id"`
	UserID        *string             `json:"user_id"`
	Status        model.OrderStatus   `json:"status"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	PaymentProof  *model.PaymentProof `json:"payment_proof,omitempty"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []OrderItemOutput   `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 1注文あたりの明細数の上限
const maxCheckoutLines = 100

func (in CheckoutInput) validate() error {
	if len(in.Items) == 0 {
		return badRequest("items required")
	}
	if len(in.Items) > maxCheckoutLines {
		return badRequest("too many items")
	}
	seen := make(map[int64]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return badRequest("invalid product_id")
		}
		if it.Quantity < 1 {
			return badRequest("invalid quantity")
		}
		if _, dup := seen[it.ProductID]; dup {
			return badRequest("duplicate product_id")
		}
		seen[it.ProductID] = struct{}{}
	}

	method := model.PaymentMethod(in.PaymentMethod)
	if !method.Valid() {
		return badRequest("invalid payment_method")
	}
	if in.PaymentProof != nil {
		if method != model.PaymentMethodBankTransfer {
			return badRequest("payment_proof requires BankTransfer")
		}
		if err := in.PaymentProof.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p PaymentProofInput) validate() error {
	if strings.TrimSpace(p.TransactionID) == "" || len(p.TransactionID) > 255 {
		return badRequest("invalid transaction_id")
	}
	if len(p.Method) > 50 {
		return badRequest("invalid method")
	}
	if p.FeePaid.IsNegative() {
		return badRequest("invalid fee_paid")
	}
	return nil
}

func (p PaymentProofInput) toModel(at time.Time) model.PaymentProof {
	return model.PaymentProof{
		TransactionID: strings.TrimSpace(p.TransactionID),
		Method:        strings.TrimSpace(p.Method),
		ScreenshotURL: strings.TrimSpace(p.ScreenshotURL),
		FeePaid:       p.FeePaid,
		UploadedAt:    at,
	}
}

// Checkout は明細ごとに条件付きで在庫を減らし、注文を作る。1つでも足りなければ全部戻す。
// 同じ内容を2回送ると注文も2件できる（冪等キーは持たない）。
func (u *OrderUsecase) Checkout(ctx context.Context, userID string, in CheckoutInput) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, ErrAuthenticationFailure
	}
	if err := in.validate(); err != nil {
		return OrderOutput{}, err
	}

	//ロック順を揃える（デッドロック回避）
	lines := append([]CheckoutItemInput(nil), in.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	method := model.PaymentMethod(in.PaymentMethod)
	var out OrderOutput
	var email string

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		user, err := r.Users().FindByID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAuthenticationFailure
		}
		if err != nil {
			return storageError(err)
		}
		email = user.Email

		items := make([]model.OrderItem, 0, len(lines))
		total := decimal.Zero

		for _, line := range lines {
			p, err := r.Products().FindByID(ctx, line.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return badRequest("invalid product_id")
			}
			if err != nil {
				return storageError(err)
			}
			if !p.IsActive {
				return badRequest("invalid product_id")
			}

			//減算できた＝確保できた
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return storageError(err)
			}
			if !ok {
				return &InsufficientStockError{ProductID: line.ProductID}
			}

			it := model.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				UnitPrice:   p.Price,
				Quantity:    line.Quantity,
				ImageURL:    p.ImageURL,
			}
			items = append(items, it)
			total = total.Add(it.Subtotal())
		}

		now := u.clock.Now()
		uid := userID
		order := model.Order{
			UserID:        &uid,
			TotalPrice:    total,
			PaymentMethod: method,
			PaymentStatus: orderstate.InitialPaymentStatus(method),
			Status:        model.OrderStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if in.PaymentProof != nil {
			//pendingで作り、証明の分だけ状態遷移を進める
			res, err := orderstate.SubmitProof(order)
			if err != nil {
				return transitionError(err)
			}
			order.AttachProof(in.PaymentProof.toModel(now))
			order.PaymentStatus = res.PaymentStatus
		}

		if err := r.Orders().Create(ctx, &order); err != nil {
			return storageError(err)
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return storageError(err)
		}

		if in.ClearCart {
			cart, err := r.Carts().FindByUserID(ctx, userID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
			case err != nil:
				return storageError(err)
			default:
				if err := r.Carts().Clear(ctx, cart.ID); err != nil {
					return storageError(err)
				}
			}
		}

		out = toOrderOutput(order, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	sendNotification(ctx, u.notifier, u.log, Notification{
		Kind:    NotificationOrderPlaced,
		Email:   email,
		OrderID: out.ID,
		At:      out.CreatedAt,
	})
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string, page int, limit int) (OrderListOutput, error) {
	if userID == "" {
		return OrderListOutput{}, ErrAuthenticationFailure
	}
	if err := validatePage(page, limit); err != nil {
		return OrderListOutput{}, err
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: page, Limit: limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
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

// 他人の注文は404
func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID string, orderID int64) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, ErrAuthenticationFailure
	}
	if orderID <= 0 {
		return OrderOutput{}, badRequest("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
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

// SubmitPaymentProof は振込証明を記録する（BankTransferのみ）。遷移はorderstate.SubmitProofに従う
func (u *OrderUsecase) SubmitPaymentProof(ctx context.Context, userID string, orderID int64, in PaymentProofInput) (OrderOutput, error) {
	if userID == "" {
		return OrderOutput{}, ErrAuthenticationFailure
	}
	if orderID <= 0 {
		return OrderOutput{}, badRequest("invalid id")
	}
	if err := in.validate(); err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := findOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		//確認後にロックして読み直す（管理者の更新と順番にする）
		o, err = r.Orders().FindByIDForUpdate(ctx, o.ID)
		if err != nil {
			return storageError(err)
		}
		if o.PaymentMethod != model.PaymentMethodBankTransfer {
			return badRequest("payment proof requires BankTransfer")
		}
		if o.Status == model.OrderStatusCancelled {
			return badRequest("order is cancelled")
		}
		res, err := orderstate.SubmitProof(o)
		if err != nil {
			return transitionError(err)
		}

		proof := in.toModel(u.clock.Now())
		if err := r.Orders().SaveProof(ctx, o.ID, proof, res.PaymentStatus); err != nil {
			return storageError(err)
		}
		o.AttachProof(proof)
		o.PaymentStatus = res.PaymentStatus

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

func findOwnedOrder(ctx context.Context, r repo.TxRepos, userID string, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, notFound()
	}
	if err != nil {
		return model.Order{}, storageError(err)
	}
	if o.UserID == nil || *o.UserID != userID {
		return model.Order{}, notFound()
	}
	return o, nil
}

func validatePage(page int, limit int) error {
	if page < 1 {
		return badRequest("invalid page")
	}
	if limit < 1 || limit > 100 {
		return badRequest("invalid limit")
	}
	return nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
			ImageURL:  it.ImageURL,
		})
	}
	return OrderOutput{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		PaymentProof:  o.Proof(),
		TotalPrice:    o.TotalPrice,
		CreatedAt:     o.CreatedAt,
		Items:         outItems,
	}
}

// 通知は待たない。失敗はログだけ
func sendNotification(ctx context.Context, n Notifier, log logrus.FieldLogger, msg Notification) {
	if n == nil || msg.Email == "" {
		return
	}
	if err := n.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("kind", msg.Kind).Warn("notification delivery failed")
	}
}
