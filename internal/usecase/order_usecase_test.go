package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderUsecase(t *testing.T) (*OrderUsecase, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	log, _ := nullLogger()
	return NewOrderUsecase(store, notifier, newFakeClock(), log), store, notifier
}

func cod(items ...CheckoutItemInput) CheckoutInput {
	return CheckoutInput{Items: items, PaymentMethod: string(model.PaymentMethodCOD)}
}

func TestCheckout_NoOversell(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "mug", "12.50", 10, false)

	const buyers = 16
	for i := 0; i < buyers; i++ {
		seedUser(t, store, fmt.Sprintf("u-%d", i), fmt.Sprintf("u%d@example.com", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, short int
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := u.Checkout(context.Background(), fmt.Sprintf("u-%d", i), cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			if ie, is := AsInsufficientStock(err); is && ie.ProductID == p.ID {
				short++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, buyers-10, short)
	assert.Equal(t, int64(0), store.Stock(p.ID))

	ids, err := store.Orders().ListIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}

func TestCheckout_TwoBuyersForLastTwoUnits(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "lamp", "40", 2, false)
	seedUser(t, store, "a", "a@example.com")
	seedUser(t, store, "b", "b@example.com")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, uid := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = u.Checkout(context.Background(), uid, cod(CheckoutItemInput{ProductID: p.ID, Quantity: 2}))
		}(i, uid)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if _, ok := AsInsufficientStock(err); ok {
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(0), store.Stock(p.ID))
}

func TestCheckout_MultiItemIsAtomic(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	a := seedProduct(t, store, "a", "1", 5, false)
	b := seedProduct(t, store, "b", "1", 1, false)
	seedUser(t, store, "u1", "u1@example.com")

	_, err := u.Checkout(context.Background(), "u1", cod(
		CheckoutItemInput{ProductID: a.ID, Quantity: 2},
		CheckoutItemInput{ProductID: b.ID, Quantity: 2},
	))
	ie, ok := AsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, b.ID, ie.ProductID)

	//aの減算も戻っている
	assert.Equal(t, int64(5), store.Stock(a.ID))
	assert.Equal(t, int64(1), store.Stock(b.ID))

	ids, err := store.Orders().ListIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCheckout_SnapshotsItemsAndNotifies(t *testing.T) {
	u, store, notifier := newOrderUsecase(t)
	a := seedProduct(t, store, "tea", "3.20", 10, false)
	b := seedProduct(t, store, "ebook", "9.99", 0, true)
	seedUser(t, store, "u1", "u1@example.com")

	out, err := u.Checkout(context.Background(), "u1", cod(
		CheckoutItemInput{ProductID: b.ID, Quantity: 1},
		CheckoutItemInput{ProductID: a.ID, Quantity: 3},
	))
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, out.Status)
	assert.Equal(t, model.PaymentStatusPending, out.PaymentStatus)
	assert.True(t, decimal.RequireFromString("19.59").Equal(out.TotalPrice))
	require.Len(t, out.Items, 2)
	assert.Equal(t, "tea", out.Items[0].Name)
	assert.Equal(t, a.ImageURL, out.Items[0].ImageURL)

	//unlimitedは減らない
	assert.Equal(t, int64(0), store.Stock(b.ID))
	assert.Equal(t, int64(7), store.Stock(a.ID))

	assert.Equal(t, []NotificationKind{NotificationOrderPlaced}, notifier.kinds())
	assert.Equal(t, "u1@example.com", notifier.last().Email)
	assert.Equal(t, out.ID, notifier.last().OrderID)

	//あとで商品を変えても注文は変わらない
	require.NoError(t, store.Products().SoftDelete(context.Background(), a.ID))
	got, err := u.GetMyOrder(context.Background(), "u1", out.ID)
	require.NoError(t, err)
	assert.Equal(t, "tea", got.Items[0].Name)
}

func TestCheckout_ValidationHappensBeforeStorage(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	proof := &PaymentProofInput{TransactionID: "tx-1", FeePaid: decimal.NewFromInt(1)}

	cases := map[string]CheckoutInput{
		"no items":         {PaymentMethod: "COD"},
		"zero quantity":    cod(CheckoutItemInput{ProductID: 1, Quantity: 0}),
		"bad product id":   cod(CheckoutItemInput{ProductID: 0, Quantity: 1}),
		"duplicate lines":  cod(CheckoutItemInput{ProductID: 1, Quantity: 1}, CheckoutItemInput{ProductID: 1, Quantity: 2}),
		"unknown method":   {Items: []CheckoutItemInput{{ProductID: 1, Quantity: 1}}, PaymentMethod: "Card"},
		"proof with COD":   {Items: []CheckoutItemInput{{ProductID: 1, Quantity: 1}}, PaymentMethod: "COD", PaymentProof: proof},
		"proof without tx": {Items: []CheckoutItemInput{{ProductID: 1, Quantity: 1}}, PaymentMethod: "BankTransfer", PaymentProof: &PaymentProofInput{}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := u.Checkout(context.Background(), "u1", in)
			assert.Equal(t, http.StatusBadRequest, httpStatus(err))
		})
	}
	assert.Equal(t, 0, store.Calls("tx.Begin"))
}

func TestCheckout_ClearCart(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "pen", "2", 10, false)
	seedUser(t, store, "u1", "u1@example.com")

	ctx := context.Background()
	cart, err := store.Carts().GetOrCreateByUserID(ctx, "u1")
	require.NoError(t, err)
	_, err = store.Carts().Upsert(ctx, cart.ID, p.ID, 2)
	require.NoError(t, err)

	//在庫不足ならカートはそのまま
	_, err = u.Checkout(ctx, "u1", CheckoutInput{
		Items:         []CheckoutItemInput{{ProductID: p.ID, Quantity: 20}},
		PaymentMethod: "COD",
		ClearCart:     true,
	})
	require.Error(t, err)
	items, err := store.Carts().ListByCartID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	//clear_cartなしなら残す
	_, err = u.Checkout(ctx, "u1", cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	items, err = store.Carts().ListByCartID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = u.Checkout(ctx, "u1", CheckoutInput{
		Items:         []CheckoutItemInput{{ProductID: p.ID, Quantity: 2}},
		PaymentMethod: "COD",
		ClearCart:     true,
	})
	require.NoError(t, err)
	items, err = store.Carts().ListByCartID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCheckout_StorageFailureIsServiceUnavailable(t *testing.T) {
	u, store, notifier := newOrderUsecase(t)
	p := seedProduct(t, store, "cup", "5", 3, false)
	seedUser(t, store, "u1", "u1@example.com")
	store.Fail("orders.Create", errors.New("connection reset"))

	_, err := u.Checkout(context.Background(), "u1", cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(err))
	assert.Equal(t, int64(3), store.Stock(p.ID))
	assert.Empty(t, notifier.kinds())
}

func TestCheckout_UnknownCustomer(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "cup", "5", 3, false)

	_, err := u.Checkout(context.Background(), "ghost", cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
	assert.Equal(t, int64(3), store.Stock(p.ID))
}

func TestCheckout_BankTransferWithProof(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "desk", "100", 1, false)
	seedUser(t, store, "u1", "u1@example.com")

	out, err := u.Checkout(context.Background(), "u1", CheckoutInput{
		Items:         []CheckoutItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "BankTransfer",
		PaymentProof:  &PaymentProofInput{TransactionID: "TX-9", Method: "wire", FeePaid: decimal.RequireFromString("1.50")},
	})
	require.NoError(t, err)
	//証明つきならそのまま確認待ち
	assert.Equal(t, model.PaymentStatusProofSubmitted, out.PaymentStatus)
	require.NotNil(t, out.PaymentProof)
	assert.Equal(t, "TX-9", out.PaymentProof.TransactionID)

	stored, err := store.Orders().FindByID(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusProofSubmitted, stored.PaymentStatus)

	//管理者はそのまま verified にできる
	log, _ := nullLogger()
	admin := NewAdminOrderUsecase(store, nil, newFakeClock(), log)
	verified := "verified"
	got, err := admin.Update(context.Background(), "admin-1", out.ID, AdminUpdateOrderInput{PaymentStatus: &verified})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusVerified, got.PaymentStatus)
}

func TestSubmitPaymentProof(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "desk", "100", 5, false)
	seedUser(t, store, "u1", "u1@example.com")
	seedUser(t, store, "u2", "u2@example.com")
	ctx := context.Background()

	bank, err := u.Checkout(ctx, "u1", CheckoutInput{
		Items:         []CheckoutItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "BankTransfer",
	})
	require.NoError(t, err)
	cash, err := u.Checkout(ctx, "u1", cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	proof := PaymentProofInput{TransactionID: "TX-1", Method: "wire", ScreenshotURL: "https://img/x.png", FeePaid: decimal.NewFromInt(2)}

	_, err = u.SubmitPaymentProof(ctx, "u2", bank.ID, proof)
	assert.Equal(t, http.StatusNotFound, httpStatus(err))

	_, err = u.SubmitPaymentProof(ctx, "u1", cash.ID, proof)
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	out, err := u.SubmitPaymentProof(ctx, "u1", bank.ID, proof)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusProofSubmitted, out.PaymentStatus)
	require.NotNil(t, out.PaymentProof)
	assert.Equal(t, "TX-1", out.PaymentProof.TransactionID)

	//2回目は受け付けない（状態遷移として不可）
	_, err = u.SubmitPaymentProof(ctx, "u1", bank.ID, proof)
	assert.Equal(t, http.StatusConflict, httpStatus(err))
}

func TestListMyOrders_OnlyOwn(t *testing.T) {
	u, store, _ := newOrderUsecase(t)
	p := seedProduct(t, store, "desk", "100", 5, false)
	seedUser(t, store, "u1", "u1@example.com")
	seedUser(t, store, "u2", "u2@example.com")
	ctx := context.Background()

	_, err := u.Checkout(ctx, "u1", cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	other, err := u.Checkout(ctx, "u2", cod(CheckoutItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	list, err := u.ListMyOrders(ctx, "u1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Items, 1)
	require.Len(t, list.Items[0].Items, 1)

	_, err = u.GetMyOrder(ctx, "u1", other.ID)
	assert.Equal(t, http.StatusNotFound, httpStatus(err))

	_, err = u.ListMyOrders(ctx, "u1", 0, 20)
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))
}
