package memory

import (
	"context"
	"sort"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type ProductRepo struct{ v view }

func visible(p model.Product, ok bool) bool {
	return ok && !p.DeletedAt.Valid
}

func (r *ProductRepo) List(ctx context.Context, pg int, limit int) ([]model.Product, int64, error) {
	var out []model.Product
	var total int64
	err := r.v.run("products.List", func(st *state) error {
		all := make([]model.Product, 0, len(st.products))
		for _, id := range sortedKeys(st.products) {
			p := st.products[id]
			if !p.DeletedAt.Valid && p.IsActive {
				all = append(all, p)
			}
		}
		total = int64(len(all))
		out = append([]model.Product{}, page(all, pg, limit)...)
		return nil
	})
	return out, total, err
}

func (r *ProductRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var out model.Product
	err := r.v.run("products.FindByID", func(st *state) error {
		p, ok := st.products[id]
		if !visible(p, ok) {
			return repo.ErrNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (r *ProductRepo) Create(ctx context.Context, p model.Product) (model.Product, error) {
	err := r.v.run("products.Create", func(st *state) error {
		p.ID = st.nextID()
		now := r.v.s.now()
		p.CreatedAt, p.UpdatedAt = now, now
		st.products[p.ID] = p
		return nil
	})
	return p, err
}

func (r *ProductRepo) SoftDelete(ctx context.Context, id int64) error {
	return r.v.run("products.SoftDelete", func(st *state) error {
		p, ok := st.products[id]
		if !visible(p, ok) {
			return repo.ErrNotFound
		}
		p.DeletedAt = gorm.DeletedAt{Time: r.v.s.now(), Valid: true}
		st.products[id] = p
		return nil
	})
}

type InventoryRepo struct{ v view }

func (r *InventoryRepo) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	var ok bool
	err := r.v.run("inventory.DecreaseStockIfEnough", func(st *state) error {
		p, found := st.products[productID]
		if !visible(p, found) || !p.IsActive || !p.Available(qty) {
			return nil
		}
		if !p.Unlimited {
			p.Stock -= qty
		}
		st.products[productID] = p
		ok = true
		return nil
	})
	return ok, err
}

func (r *InventoryRepo) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	return r.v.run("inventory.IncreaseStock", func(st *state) error {
		p, found := st.products[productID]
		if !visible(p, found) {
			return repo.ErrNotFound
		}
		if !p.Unlimited {
			p.Stock += qty
		}
		st.products[productID] = p
		return nil
	})
}

func (r *InventoryRepo) AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	var stock int64
	err := r.v.run("inventory.AdjustStock", func(st *state) error {
		p, found := st.products[productID]
		if !visible(p, found) {
			return repo.ErrNotFound
		}
		stock = p.Stock
		if p.Stock+delta < 0 {
			return repo.ErrStockWouldGoNegative
		}
		p.Stock += delta
		stock = p.Stock
		st.products[productID] = p
		return nil
	})
	return stock, err
}

func (r *InventoryRepo) SetStock(ctx context.Context, productID int64, stock int64) (int64, error) {
	var before int64
	err := r.v.run("inventory.SetStock", func(st *state) error {
		p, found := st.products[productID]
		if !visible(p, found) {
			return repo.ErrNotFound
		}
		before = p.Stock
		p.Stock = stock
		st.products[productID] = p
		return nil
	})
	return before, err
}

func (r *InventoryRepo) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return r.v.run("inventory.CreateAdjustment", func(st *state) error {
		adj.ID = st.nextID()
		adj.CreatedAt = r.v.s.now()
		st.adjustments = append(st.adjustments, adj)
		return nil
	})
}

type OrderRepo struct{ v view }

func (r *OrderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	return r.find("orders.FindByID", orderID)
}

// トランザクション全体が1つのロックの中なので、行ロックは要らない
func (r *OrderRepo) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.find("orders.FindByIDForUpdate", orderID)
}

func (r *OrderRepo) find(op string, orderID int64) (model.Order, error) {
	var out model.Order
	err := r.v.run(op, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return repo.ErrNotFound
		}
		out = o
		return nil
	})
	return out, err
}

func (r *OrderRepo) ListByUserID(ctx context.Context, userID string, pg int, limit int) ([]model.Order, int64, error) {
	return r.list("orders.ListByUserID", pg, limit, func(o model.Order) bool {
		return o.UserID != nil && *o.UserID == userID
	})
}

func (r *OrderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	return r.list("orders.ListAdmin", f.Page, f.Limit, func(o model.Order) bool {
		if f.Status != "" && string(o.Status) != f.Status {
			return false
		}
		if f.PaymentStatus != "" && string(o.PaymentStatus) != f.PaymentStatus {
			return false
		}
		return true
	})
}

// id降順
func (r *OrderRepo) list(op string, pg, limit int, keep func(model.Order) bool) ([]model.Order, int64, error) {
	var out []model.Order
	var total int64
	err := r.v.run(op, func(st *state) error {
		ids := sortedKeys(st.orders)
		all := make([]model.Order, 0, len(ids))
		for i := len(ids) - 1; i >= 0; i-- {
			if o := st.orders[ids[i]]; keep(o) {
				all = append(all, o)
			}
		}
		total = int64(len(all))
		out = append([]model.Order{}, page(all, pg, limit)...)
		return nil
	})
	return out, total, err
}

func (r *OrderRepo) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.v.run("orders.ListIDs", func(st *state) error {
		ids = sortedKeys(st.orders)
		return nil
	})
	return ids, err
}

func (r *OrderRepo) Create(ctx context.Context, order *model.Order) error {
	return r.v.run("orders.Create", func(st *state) error {
		order.ID = st.nextID()
		now := r.v.s.now()
		order.CreatedAt, order.UpdatedAt = now, now
		st.orders[order.ID] = *order
		return nil
	})
}

func (r *OrderRepo) UpdateStatuses(ctx context.Context, orderID int64, status *model.OrderStatus, payment *model.PaymentStatus) error {
	return r.v.run("orders.UpdateStatuses", func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return repo.ErrNotFound
		}
		if status != nil {
			o.Status = *status
		}
		if payment != nil {
			o.PaymentStatus = *payment
		}
		o.UpdatedAt = r.v.s.now()
		st.orders[orderID] = o
		return nil
	})
}

func (r *OrderRepo) SaveProof(ctx context.Context, orderID int64, proof model.PaymentProof, payment model.PaymentStatus) error {
	return r.v.run("orders.SaveProof", func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return repo.ErrNotFound
		}
		o.AttachProof(proof)
		o.PaymentStatus = payment
		st.orders[orderID] = o
		return nil
	})
}

func (r *OrderRepo) Delete(ctx context.Context, orderID int64) error {
	return r.v.run("orders.Delete", func(st *state) error {
		if _, ok := st.orders[orderID]; !ok {
			return repo.ErrNotFound
		}
		delete(st.orders, orderID)
		return nil
	})
}

func (r *OrderRepo) DetachUser(ctx context.Context, userID string) error {
	return r.v.run("orders.DetachUser", func(st *state) error {
		for id, o := range st.orders {
			if o.UserID != nil && *o.UserID == userID {
				o.UserID = nil
				st.orders[id] = o
			}
		}
		return nil
	})
}

type OrderItemRepo struct{ v view }

func (r *OrderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	return r.v.run("orderItems.CreateBulk", func(st *state) error {
		for i := range items {
			items[i].ID = st.nextID()
			items[i].OrderID = orderID
			items[i].CreatedAt = r.v.s.now()
			st.orderItems[items[i].ID] = items[i]
		}
		return nil
	})
}

func (r *OrderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	err := r.v.run("orderItems.ListByOrderID", func(st *state) error {
		for _, id := range sortedKeys(st.orderItems) {
			if it := st.orderItems[id]; it.OrderID == orderID {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

func (r *OrderItemRepo) DeleteByOrderID(ctx context.Context, orderID int64) error {
	return r.v.run("orderItems.DeleteByOrderID", func(st *state) error {
		for id, it := range st.orderItems {
			if it.OrderID == orderID {
				delete(st.orderItems, id)
			}
		}
		return nil
	})
}

// CartRepo serves both carts and cart items.
type CartRepo struct{ v view }

func findCart(st *state, userID string) (model.Cart, bool) {
	for _, c := range st.carts {
		if c.UserID == userID {
			return c, true
		}
	}
	return model.Cart{}, false
}

func (r *CartRepo) GetOrCreateByUserID(ctx context.Context, userID string) (model.Cart, error) {
	var out model.Cart
	err := r.v.run("carts.GetOrCreateByUserID", func(st *state) error {
		if c, ok := findCart(st, userID); ok {
			out = c
			return nil
		}
		now := r.v.s.now()
		out = model.Cart{ID: st.nextID(), UserID: userID, CreatedAt: now, UpdatedAt: now}
		st.carts[out.ID] = out
		return nil
	})
	return out, err
}

func (r *CartRepo) FindByUserID(ctx context.Context, userID string) (model.Cart, error) {
	var out model.Cart
	err := r.v.run("carts.FindByUserID", func(st *state) error {
		c, ok := findCart(st, userID)
		if !ok {
			return repo.ErrNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func clearCart(st *state, cartID int64) {
	for id, it := range st.cartItems {
		if it.CartID == cartID {
			delete(st.cartItems, id)
		}
	}
}

func (r *CartRepo) Clear(ctx context.Context, cartID int64) error {
	return r.v.run("carts.Clear", func(st *state) error {
		clearCart(st, cartID)
		return nil
	})
}

func (r *CartRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.v.run("carts.DeleteByUserID", func(st *state) error {
		c, ok := findCart(st, userID)
		if !ok {
			return nil
		}
		clearCart(st, c.ID)
		delete(st.carts, c.ID)
		return nil
	})
}

func (r *CartRepo) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	out := []model.CartItem{}
	err := r.v.run("cartItems.ListByCartID", func(st *state) error {
		for _, id := range sortedKeys(st.cartItems) {
			if it := st.cartItems[id]; it.CartID == cartID {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

func (r *CartRepo) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	var out model.CartItem
	err := r.v.run("cartItems.FindByID", func(st *state) error {
		it, ok := st.cartItems[cartItemID]
		if !ok {
			return repo.ErrNotFound
		}
		out = it
		return nil
	})
	return out, err
}

func (r *CartRepo) Upsert(ctx context.Context, cartID int64, productID int64, qty int64) (model.CartItem, error) {
	var out model.CartItem
	err := r.v.run("cartItems.Upsert", func(st *state) error {
		now := r.v.s.now()
		for id, it := range st.cartItems {
			if it.CartID == cartID && it.ProductID == productID {
				it.Quantity = qty
				it.UpdatedAt = now
				st.cartItems[id] = it
				out = it
				return nil
			}
		}
		out = model.CartItem{ID: st.nextID(), CartID: cartID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now}
		st.cartItems[out.ID] = out
		return nil
	})
	return out, err
}

func (r *CartRepo) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	return r.v.run("cartItems.UpdateQuantity", func(st *state) error {
		it, ok := st.cartItems[cartItemID]
		if !ok {
			return repo.ErrNotFound
		}
		it.Quantity = qty
		st.cartItems[cartItemID] = it
		return nil
	})
}

func (r *CartRepo) DeleteByID(ctx context.Context, cartItemID int64) error {
	return r.v.run("cartItems.DeleteByID", func(st *state) error {
		if _, ok := st.cartItems[cartItemID]; !ok {
			return repo.ErrNotFound
		}
		delete(st.cartItems, cartItemID)
		return nil
	})
}

type UserRepo struct{ v view }

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	return r.v.run("users.Create", func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, user.Email) {
				return errDuplicate
			}
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (r *UserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	var out *model.User
	err := r.v.run("users.FindByID", func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return repo.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.v.run("users.FindByEmail", func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (r *UserRepo) Update(ctx context.Context, user *model.User) error {
	return r.v.run("users.Update", func(st *state) error {
		if _, ok := st.users[user.ID]; !ok {
			return repo.ErrNotFound
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	return r.v.run("users.Delete", func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			return repo.ErrNotFound
		}
		delete(st.users, userID)
		return nil
	})
}

type AdminRepo struct{ v view }

func (r *AdminRepo) Create(ctx context.Context, admin *model.Admin) error {
	return r.v.run("admins.Create", func(st *state) error {
		for _, a := range st.admins {
			if a.Email == admin.Email {
				return errDuplicate
			}
		}
		st.admins[admin.ID] = *admin
		return nil
	})
}

func (r *AdminRepo) FindByID(ctx context.Context, adminID string) (*model.Admin, error) {
	var out *model.Admin
	err := r.v.run("admins.FindByID", func(st *state) error {
		a, ok := st.admins[adminID]
		if !ok {
			return repo.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *AdminRepo) FindByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var out *model.Admin
	err := r.v.run("admins.FindByEmail", func(st *state) error {
		for _, a := range st.admins {
			if a.Email == email {
				a := a
				out = &a
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (r *AdminRepo) Update(ctx context.Context, admin *model.Admin) error {
	return r.v.run("admins.Update", func(st *state) error {
		if _, ok := st.admins[admin.ID]; !ok {
			return repo.ErrNotFound
		}
		st.admins[admin.ID] = *admin
		return nil
	})
}

type AuditLogRepo struct{ v view }

func (r *AuditLogRepo) Create(ctx context.Context, log model.AuditLog) error {
	return r.v.run("auditLogs.Create", func(st *state) error {
		log.ID = st.nextID()
		st.auditLogs = append(st.auditLogs, log)
		return nil
	})
}

func (r *AuditLogRepo) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	out := []model.AuditLog{}
	err := r.v.run("auditLogs.List", func(st *state) error {
		for _, l := range st.auditLogs {
			if f.ActorAdminID != "" && l.ActorAdminID != f.ActorAdminID {
				continue
			}
			if f.ResourceType != "" && l.ResourceType != f.ResourceType {
				continue
			}
			if f.ResourceID > 0 && l.ResourceID != f.ResourceID {
				continue
			}
			out = append(out, l)
		}
		//新しい順
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		return nil
	})
	return out, err
}
