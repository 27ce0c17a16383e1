// Package memory is an in-process implementation of every repository interface.
//
// A transaction holds the store lock, works on a copy of the state and swaps it in on
// commit, so a failed transaction leaves nothing behind. Calls made outside a
// transaction take the lock per call.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type state struct {
	seq int64

	products    map[int64]model.Product
	orders      map[int64]model.Order
	orderItems  map[int64]model.OrderItem
	carts       map[int64]model.Cart
	cartItems   map[int64]model.CartItem
	users       map[string]model.User
	admins      map[string]model.Admin
	auditLogs   []model.AuditLog
	adjustments []model.InventoryAdjustment
}

func newState() *state {
	return &state{
		products:   map[int64]model.Product{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64]model.OrderItem{},
		carts:      map[int64]model.Cart{},
		cartItems:  map[int64]model.CartItem{},
		users:      map[string]model.User{},
		admins:     map[string]model.Admin{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:         s.seq,
		products:    make(map[int64]model.Product, len(s.products)),
		orders:      make(map[int64]model.Order, len(s.orders)),
		orderItems:  make(map[int64]model.OrderItem, len(s.orderItems)),
		carts:       make(map[int64]model.Cart, len(s.carts)),
		cartItems:   make(map[int64]model.CartItem, len(s.cartItems)),
		users:       make(map[string]model.User, len(s.users)),
		admins:      make(map[string]model.Admin, len(s.admins)),
		auditLogs:   append([]model.AuditLog(nil), s.auditLogs...),
		adjustments: append([]model.InventoryAdjustment(nil), s.adjustments...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.admins {
		c.admins[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store owns all tables.
type Store struct {
	mu sync.Mutex
	st *state

	now func() time.Time

	faultMu sync.Mutex
	faults  map[string]error
	calls   map[string]int
}

func NewStore() *Store {
	return &Store{
		st:     newState(),
		now:    time.Now,
		faults: map[string]error{},
		calls:  map[string]int{},
	}
}

// Fail makes every call of op (e.g. "inventory.AdjustStock") return err until cleared with nil.
func (s *Store) Fail(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Calls returns how many times op has been invoked.
func (s *Store) Calls(op string) int {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.calls[op]
}

func (s *Store) hit(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.calls[op]++
	return s.faults[op]
}

// view binds a repository to either the live state (tx == nil) or a transaction copy.
type view struct {
	s  *Store
	tx *state
}

func (v view) run(op string, fn func(st *state) error) error {
	if err := v.s.hit(op); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

func (s *Store) live() view { return view{s: s} }

func (s *Store) Products() *ProductRepo     { return &ProductRepo{s.live()} }
func (s *Store) Inventory() *InventoryRepo  { return &InventoryRepo{s.live()} }
func (s *Store) Orders() *OrderRepo         { return &OrderRepo{s.live()} }
func (s *Store) OrderItems() *OrderItemRepo { return &OrderItemRepo{s.live()} }
func (s *Store) Carts() *CartRepo           { return &CartRepo{s.live()} }
func (s *Store) Users() *UserRepo           { return &UserRepo{s.live()} }
func (s *Store) Admins() *AdminRepo         { return &AdminRepo{s.live()} }
func (s *Store) AuditLogs() *AuditLogRepo   { return &AuditLogRepo{s.live()} }

type txRepos struct{ v view }

func (r txRepos) Orders() repo.OrderRepository         { return &OrderRepo{r.v} }
func (r txRepos) OrderItems() repo.OrderItemRepository { return &OrderItemRepo{r.v} }
func (r txRepos) Carts() repo.CartRepository           { return &CartRepo{r.v} }
func (r txRepos) CartItems() repo.CartItemRepository   { return &CartRepo{r.v} }
func (r txRepos) Inventory() repo.InventoryRepository  { return &InventoryRepo{r.v} }
func (r txRepos) Products() repo.ProductRepository     { return &ProductRepo{r.v} }
func (r txRepos) AuditLogs() repo.AuditLogRepository   { return &AuditLogRepo{r.v} }
func (r txRepos) Users() repo.UserRepository           { return &UserRepo{r.v} }

// WithinTx serializes transactions; the copy is committed only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.hit("tx.Begin"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(txRepos{v: view{s: s, tx: work}}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Stock is a test helper that reads a product's stock outside of any transaction.
func (s *Store) Stock(productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[productID].Stock
}

func sortedKeys[K int64 | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func page[T any](items []T, page, limit int) []T {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	from := (page - 1) * limit
	if from >= len(items) {
		return []T{}
	}
	to := from + limit
	if to > len(items) {
		to = len(items)
	}
	return items[from:to]
}
