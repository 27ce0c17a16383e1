package usecase

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// CartValidator はカートに入れる数量が在庫に収まるかを見る。
// あくまで目安。確定は注文時の条件付き減算。
type CartValidator struct {
	products repo.ProductRepository
}

func NewCartValidator(products repo.ProductRepository) *CartValidator {
	return &CartValidator{products: products}
}

// Check は requested <= stock - inCart を確認する（unlimitedは常にOK）
func (v *CartValidator) Check(ctx context.Context, productID int64, requested int64, inCart int64) (model.Product, error) {
	p, err := v.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, badRequest("invalid product_id")
	}
	if err != nil {
		return model.Product{}, storageError(err)
	}
	if !p.IsActive {
		return model.Product{}, badRequest("invalid product_id")
	}
	if !p.Available(requested + inCart) {
		return model.Product{}, &InsufficientStockError{ProductID: productID}
	}
	return p, nil
}

type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	validator    *CartValidator
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		validator:    NewCartValidator(productRepo),
	}
}

// price は現在の商品価格（注文時にスナップショットする）
type CartItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	ImageURL  string          `json:"image_url"`
	Available bool            `json:"available"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得（無ければ作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID string) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, ErrAuthenticationFailure
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, storageError(err)
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart は同一商品なら数量を加算する。
func (u *CartUsecase) AddToCart(ctx context.Context, userID string, in AddCartInput) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, ErrAuthenticationFailure
	}
	if in.ProductID <= 0 {
		return CartResponse{}, badRequest("invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, badRequest("invalid quantity")
	}

	cart, err := u.cartRepo.GetOrCreateByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, storageError(err)
	}

	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, storageError(err)
	}
	var existingQty int64
	for _, it := range items {
		if it.ProductID == in.ProductID {
			existingQty = it.Quantity
			break
		}
	}

	if _, err := u.validator.Check(ctx, in.ProductID, in.Quantity, existingQty); err != nil {
		return CartResponse{}, err
	}

	if _, err := u.cartItemRepo.Upsert(ctx, cart.ID, in.ProductID, existingQty+in.Quantity); err != nil {
		return CartResponse{}, storageError(err)
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（所有チェック＋在庫チェック）。数量は置き換え。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID string, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, ErrAuthenticationFailure
	}
	if cartItemID <= 0 {
		return CartResponse{}, badRequest("invalid id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, badRequest("invalid quantity")
	}

	cart, item, err := u.ownedItem(ctx, userID, cartItemID)
	if err != nil {
		return CartResponse{}, err
	}

	if _, err := u.validator.Check(ctx, item.ProductID, in.Quantity, 0); err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, notFound()
		}
		return CartResponse{}, storageError(err)
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID string, cartItemID int64) (CartResponse, error) {
	if userID == "" {
		return CartResponse{}, ErrAuthenticationFailure
	}
	if cartItemID <= 0 {
		return CartResponse{}, badRequest("invalid id")
	}

	cart, _, err := u.ownedItem(ctx, userID, cartItemID)
	if err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, notFound()
		}
		return CartResponse{}, storageError(err)
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 他人の明細は404（存在を見せない）
func (u *CartUsecase) ownedItem(ctx context.Context, userID string, cartItemID int64) (model.Cart, model.CartItem, error) {
	cart, err := u.cartRepo.FindByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, model.CartItem{}, notFound()
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, storageError(err)
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, model.CartItem{}, notFound()
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, storageError(err)
	}
	if item.CartID != cart.ID {
		return model.Cart{}, model.CartItem{}, notFound()
	}
	return cart, item, nil
}

// cartIDの明細をまとめてCartResponseを作る。
// 削除・非公開になった商品は available=false で残し、合計には入れない。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, storageError(err)
	}

	respItems := make([]CartItemResponse, 0, len(items))
	total := decimal.Zero

	for _, it := range items {
		resp := CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		}

		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return CartResponse{}, storageError(err)
		default:
			resp.Name = p.Name
			resp.Price = p.Price
			resp.ImageURL = p.ImageURL
			resp.Available = p.IsActive && p.Available(it.Quantity)
			if p.IsActive {
				total = total.Add(p.Price.Mul(decimal.NewFromInt(it.Quantity)))
			}
		}
		respItems = append(respItems, resp)
	}

	return CartResponse{Items: respItems, Total: total}, nil
}
