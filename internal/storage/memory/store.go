// Package memory is a process-local store used by the memory storage driver
// and by tests. Stock changes are applied immediately, so its units of work
// are not atomic and checkout compensates with releases.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

type Store struct {
	mu sync.Mutex

	categories map[int64]catalog.Category
	products   map[int64]catalog.Product
	users      map[int64]user.User
	usersEmail map[string]int64
	orders     map[int64]order.Order
	ordersKey  map[string]int64
	outbox     map[int64]events.Record

	nextCategoryID int64
	nextProductID  int64
	nextUserID     int64
	nextOrderID    int64
	nextItemID     int64
	nextEventID    int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		categories: make(map[int64]catalog.Category),
		products:   make(map[int64]catalog.Product),
		users:      make(map[int64]user.User),
		usersEmail: make(map[string]int64),
		orders:     make(map[int64]order.Order),
		ordersKey:  make(map[string]int64),
		outbox:     make(map[int64]events.Record),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) AddCategory(name string) catalog.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCategoryID++
	c := catalog.Category{ID: s.nextCategoryID, Name: name, CreatedAt: s.now()}
	s.categories[c.ID] = c
	return c
}

// AddProduct stores p under a new id and returns the stored copy.
func (s *Store) AddProduct(p catalog.Product) catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	p.ID = s.nextProductID
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
	return p
}

// Stock returns the current stock of a product, or -1 if it does not exist.
func (s *Store) Stock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return -1
	}
	return p.Stock
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Catalog() catalog.Repository { return (*catalogView)(s) }
func (s *Store) Ledger() inventory.Ledger    { return (*ledgerView)(s) }
func (s *Store) Users() user.Repository      { return (*usersView)(s) }
func (s *Store) Orders() order.Repository    { return (*ordersView)(s) }
func (s *Store) Outbox() events.Outbox       { return (*outboxView)(s) }

// Begin starts a unit of work. It satisfies checkout.UnitOfWorkFactory.
func (s *Store) Begin(_ context.Context) (checkout.UnitOfWork, error) {
	return &unitOfWork{store: s}, nil
}

type catalogView Store

func (v *catalogView) GetProductByID(_ context.Context, id int64) (*catalog.Product, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (v *catalogView) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]catalog.Product, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (v *catalogView) ListProducts(_ context.Context, filter catalog.CategoryFilter) ([]catalog.Product, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	products := []catalog.Product{}
	for _, p := range s.products {
		if p.InCategory(filter) {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (v *catalogView) ListCategories(_ context.Context) ([]catalog.Category, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make([]catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

type ledgerView Store

func (v *ledgerView) Reserve(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if p.Stock < qty {
		return &inventory.StockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return nil
}

func (v *ledgerView) Release(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Stock += qty
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return nil
}

type usersView Store

func (v *usersView) Create(_ context.Context, u *user.User) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersEmail[u.Email]; exists {
		return user.ErrEmailExists
	}
	s.nextUserID++
	u.ID = s.nextUserID
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = *u
	s.usersEmail[u.Email] = u.ID
	return nil
}

func (v *usersView) GetByID(_ context.Context, id int64) (*user.User, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (v *usersView) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

type ordersView Store

func (v *ordersView) Create(_ context.Context, o *order.Order) error {
	if err := order.Validate(o); err != nil {
		return err
	}
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IdempotencyKey != "" {
		if _, exists := s.ordersKey[o.IdempotencyKey]; exists {
			return order.ErrDuplicateIdempotencyKey
		}
	}

	s.nextOrderID++
	o.ID = s.nextOrderID
	o.CreatedAt = s.now()
	for i := range o.Items {
		s.nextItemID++
		o.Items[i].ID = s.nextItemID
		o.Items[i].OrderID = o.ID
	}

	stored := *o
	stored.Items = append([]order.OrderItem(nil), o.Items...)
	s.orders[o.ID] = stored
	if o.IdempotencyKey != "" {
		s.ordersKey[o.IdempotencyKey] = o.ID
	}
	return nil
}

func (v *ordersView) ListByUserID(_ context.Context, userID int64) ([]order.Order, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []order.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, s.withProducts(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (v *ordersView) GetByIdempotencyKey(_ context.Context, key string) (*order.Order, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.ordersKey[key]
	if !ok || key == "" {
		return nil, order.ErrOrderNotFound
	}
	o := s.withProducts(s.orders[id])
	return &o, nil
}

// withProducts copies o and joins the live product summary into its items.
// Callers hold s.mu.
func (s *Store) withProducts(o order.Order) order.Order {
	items := make([]order.OrderItem, len(o.Items))
	for i, item := range o.Items {
		if p, ok := s.products[item.ProductID]; ok {
			item.Product = &order.ProductSummary{
				ID:         p.ID,
				Name:       p.Name,
				Image:      p.Image,
				Price:      p.Price,
				CategoryID: p.CategoryID,
			}
		}
		items[i] = item
	}
	o.Items = items
	return o
}

func (s *Store) deleteOrder(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.orders[id]; ok {
		delete(s.ordersKey, o.IdempotencyKey)
		delete(s.orders, id)
	}
}

type outboxView Store

func (v *outboxView) Append(_ context.Context, rec *events.Record) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.EventID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		rec.EventID = id
	}
	s.nextEventID++
	rec.ID = s.nextEventID
	rec.CreatedAt = s.now()
	s.outbox[rec.ID] = *rec
	return nil
}

func (v *outboxView) Pending(_ context.Context, limit int) ([]events.Record, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []events.Record{}
	for _, rec := range s.outbox {
		if rec.SentAt == nil {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (v *outboxView) MarkSent(_ context.Context, id int64) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.outbox[id]
	if !ok || rec.SentAt != nil {
		return events.ErrNotPending
	}
	sentAt := s.now()
	rec.SentAt = &sentAt
	s.outbox[id] = rec
	return nil
}

func (s *Store) deleteEvent(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outbox, id)
}

// SeedDemoCatalog fills an empty store with a few categories and products.
func SeedDemoCatalog(s *Store) {
	shoes := s.AddCategory("Shoes")
	bags := s.AddCategory("Bags")

	s.AddProduct(catalog.Product{CategoryID: &shoes.ID, Name: "Running Shoes", Description: "Lightweight trainers", Image: "running-shoes.jpg", Price: decimal.RequireFromString("50.00"), Stock: 10})
	s.AddProduct(catalog.Product{CategoryID: &shoes.ID, Name: "Leather Boots", Description: "Waterproof boots", Image: "leather-boots.jpg", Price: decimal.RequireFromString("120.00"), Stock: 3})
	s.AddProduct(catalog.Product{CategoryID: &bags.ID, Name: "Canvas Tote", Description: "Everyday tote bag", Image: "canvas-tote.jpg", Price: decimal.RequireFromString("30.00"), Stock: 5})
	s.AddProduct(catalog.Product{CategoryID: &bags.ID, Name: "Travel Backpack", Description: "40L cabin backpack", Image: "travel-backpack.jpg", Price: decimal.RequireFromString("89.90"), Stock: 1})
}
