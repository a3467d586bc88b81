package integration_test

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/db"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

var (
	testPool  *pgxpool.Pool
	skipCause string
)

func TestMain(m *testing.M) {
	flag.Parse()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	code := run(m)
	os.Exit(code)
}

func run(m *testing.M) int {
	if testing.Short() {
		skipCause = "integration tests disabled in short mode"
		return m.Run()
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("checkout"),
		postgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		skipCause = fmt.Sprintf("postgres container unavailable: %v", err)
		return m.Run()
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		skipCause = fmt.Sprintf("postgres connection string: %v", err)
		return m.Run()
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		skipCause = fmt.Sprintf("postgres config: %v", err)
		return m.Run()
	}
	poolConfig.MaxConns = 30

	pg, err := db.Connect(ctx, poolConfig)
	if err != nil {
		skipCause = fmt.Sprintf("postgres connect: %v", err)
		return m.Run()
	}
	defer pg.Close()

	if err := db.ApplyMigrations(pg.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply migrations: %v\n", err)
		return 1
	}

	testPool = pg.Pool
	return m.Run()
}

// setup skips the test without a database and otherwise returns a pool over
// empty tables.
func setup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skip(skipCause)
	}
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE outbox, order_items, orders, users, products, categories RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return testPool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, categoryID *int64, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (category_id, name, price, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		categoryID, name, price, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedCategory(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, pool *pgxpool.Pool, productID int64) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	require.NoError(t, err)
	return stock
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

func newCheckout(pool *pgxpool.Pool) checkout.Service {
	catalogRepo := catalog.NewRepository(sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"))
	return checkout.NewService(catalogRepo, order.NewRepository(pool), checkout.NewPgUnitOfWorkFactory(pool),
		checkout.WithCredentials(user.NewCredentials(bcrypt.MinCost)))
}

func TestMigrations_AreIdempotent(t *testing.T) {
	pool := setup(t)
	require.NoError(t, db.ApplyMigrations(pool))
}

func TestCatalogRepository_ListWithFilter(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	repo := catalog.NewRepository(sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"))

	shoes := seedCategory(t, pool, "Shoes")
	bags := seedCategory(t, pool, "Bags")
	seedProduct(t, pool, &shoes, "Sneakers", "50.00", 10)
	seedProduct(t, pool, &bags, "Tote", "30.00", 5)
	seedProduct(t, pool, nil, "Gift card", "10.00", 100)

	all, err := repo.ListProducts(ctx, catalog.CategoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filter, err := catalog.NewCategoryFilter(bags)
	require.NoError(t, err)
	onlyBags, err := repo.ListProducts(ctx, filter)
	require.NoError(t, err)
	require.Len(t, onlyBags, 1)
	assert.Equal(t, "Tote", onlyBags[0].Name)
	assert.True(t, decimal.RequireFromString("30").Equal(onlyBags[0].Price))

	byID, err := repo.GetProductsByIDs(ctx, []int64{onlyBags[0].ID, 999})
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	_, err = repo.GetProductByID(ctx, 999)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestLedger_ReserveAndRelease(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	ledger := inventory.NewLedger(pool)
	id := seedProduct(t, pool, nil, "Boots", "120.00", 3)

	require.NoError(t, ledger.Reserve(ctx, id, 2))
	assert.Equal(t, 1, stockOf(t, pool, id))

	err := ledger.Reserve(ctx, id, 2)
	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Boots", stockErr.ProductName)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 1, stockOf(t, pool, id))

	require.NoError(t, ledger.Release(ctx, id, 2))
	assert.Equal(t, 3, stockOf(t, pool, id))

	assert.ErrorIs(t, ledger.Reserve(ctx, 999, 1), inventory.ErrProductNotFound)
}

func TestLedger_QuantityBeyondIntegerRangeIsInsufficient(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	ledger := inventory.NewLedger(pool)
	id := seedProduct(t, pool, nil, "Boots", "120.00", 3)

	err := ledger.Reserve(ctx, id, math.MaxInt32+1)
	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 3, stockOf(t, pool, id))
}

func TestUserRepository_UniqueEmail(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	repo := user.NewRepository(pool)

	u := &user.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotZero(t, u.ID)

	err := repo.Create(ctx, &user.User{Name: "Other", Email: "ann@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, user.ErrEmailExists)

	found, err := repo.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Equal(t, "Ann", found.Name)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestOrderRepository_CreateAndList(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	users := user.NewRepository(pool)
	orders := order.NewRepository(pool)

	a := seedProduct(t, pool, nil, "A", "50.00", 10)
	b := seedProduct(t, pool, nil, "B", "30.00", 10)
	u := &user.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"}
	require.NoError(t, users.Create(ctx, u))

	first := &order.Order{
		UserID:         u.ID,
		TotalPrice:     decimal.RequireFromString("130"),
		IdempotencyKey: "k1",
		Items: []order.OrderItem{
			{ProductID: a, Quantity: 2, Price: decimal.RequireFromString("50")},
			{ProductID: b, Quantity: 1, Price: decimal.RequireFromString("30")},
		},
	}
	require.NoError(t, orders.Create(ctx, first))
	assert.NotZero(t, first.ID)

	second := &order.Order{
		UserID:     u.ID,
		TotalPrice: decimal.RequireFromString("30"),
		Items:      []order.OrderItem{{ProductID: b, Quantity: 1, Price: decimal.RequireFromString("30")}},
	}
	require.NoError(t, orders.Create(ctx, second))

	dup := &order.Order{
		UserID:         u.ID,
		TotalPrice:     decimal.RequireFromString("30"),
		IdempotencyKey: "k1",
		Items:          []order.OrderItem{{ProductID: b, Quantity: 1, Price: decimal.RequireFromString("30")}},
	}
	assert.ErrorIs(t, orders.Create(ctx, dup), order.ErrDuplicateIdempotencyKey)

	list, err := orders.ListByUserID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	require.Len(t, list[0].Items, 2)
	require.NotNil(t, list[0].Items[0].Product)
	assert.Equal(t, "A", list[0].Items[0].Product.Name)

	byKey, err := orders.GetByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)

	_, err = orders.GetByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOutbox_PendingAndMarkSent(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	outbox := events.NewOutbox(pool)

	rec, err := events.NewOrderPlaced(events.OrderPlaced{OrderID: 7, TotalPrice: decimal.RequireFromString("10")})
	require.NoError(t, err)
	require.NoError(t, outbox.Append(ctx, rec))

	pending, err := outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.EventID, pending[0].EventID)
	assert.Equal(t, "7", pending[0].Key)

	require.NoError(t, outbox.MarkSent(ctx, pending[0].ID))
	assert.ErrorIs(t, outbox.MarkSent(ctx, pending[0].ID), events.ErrNotPending)

	pending, err = outbox.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCheckout_CommitsOrderStockAndEvent(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	a := seedProduct(t, pool, nil, "A", "50.00", 10)
	b := seedProduct(t, pool, nil, "B", "30.00", 5)

	res, err := newCheckout(pool).Checkout(ctx, checkout.Request{
		Buyer: checkout.Buyer{Name: "Ann", Email: "ann@example.com"},
		Items: []checkout.LineItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "130.00", res.TotalPrice.StringFixed(2))
	assert.Equal(t, 8, stockOf(t, pool, a))
	assert.Equal(t, 4, stockOf(t, pool, b))
	assert.Equal(t, 1, countRows(t, pool, "orders"))
	assert.Equal(t, 2, countRows(t, pool, "order_items"))
	assert.Equal(t, 1, countRows(t, pool, "outbox"))
}

func TestCheckout_FailureLeavesNoTrace(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	a := seedProduct(t, pool, nil, "A", "50.00", 10)
	b := seedProduct(t, pool, nil, "B", "30.00", 1)

	_, err := newCheckout(pool).Checkout(ctx, checkout.Request{
		Buyer: checkout.Buyer{Email: "ann@example.com"},
		Items: []checkout.LineItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 2}},
	})
	var cerr *checkout.Error
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, checkout.ErrInsufficientStock)
	assert.Equal(t, 1, cerr.Line)
	assert.Equal(t, 1, cerr.Available)

	assert.Equal(t, 10, stockOf(t, pool, a))
	assert.Equal(t, 1, stockOf(t, pool, b))
	assert.Zero(t, countRows(t, pool, "orders"))
	assert.Zero(t, countRows(t, pool, "users"))
	assert.Zero(t, countRows(t, pool, "outbox"))
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	a := seedProduct(t, pool, nil, "A", "50.00", 10)
	svc := newCheckout(pool)

	req := checkout.Request{
		Buyer:          checkout.Buyer{Email: "ann@example.com"},
		Items:          []checkout.LineItem{{ProductID: a, Quantity: 1}},
		IdempotencyKey: "same-key",
	}
	first, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Replayed)
	assert.Equal(t, 9, stockOf(t, pool, a))
}

func TestCheckout_ConcurrentDuplicateSubmissions(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	a := seedProduct(t, pool, nil, "A", "5.00", 100)
	svc := newCheckout(pool)

	const submissions = 10
	var (
		wg       sync.WaitGroup
		orderIDs sync.Map
		failures atomic.Int32
		created  atomic.Int32
	)
	for range submissions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Checkout(ctx, checkout.Request{
				Buyer:          checkout.Buyer{Email: "double@example.com"},
				Items:          []checkout.LineItem{{ProductID: a, Quantity: 1}},
				IdempotencyKey: "k1",
			})
			if !assert.NoError(t, err) {
				failures.Add(1)
				return
			}
			orderIDs.Store(res.OrderID, struct{}{})
			if !res.Replayed {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, int32(1), created.Load())
	distinct := 0
	orderIDs.Range(func(_, _ any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)
	assert.Equal(t, 99, stockOf(t, pool, a))
	assert.Equal(t, 1, countRows(t, pool, "orders"))
	assert.Equal(t, 1, countRows(t, pool, "outbox"))
	assert.Equal(t, 1, countRows(t, pool, "users"))
}

func TestCheckout_ConcurrentBuyersNeverOversell(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	last := seedProduct(t, pool, nil, "Last one", "89.90", 1)
	svc := newCheckout(pool)

	const buyers = 10
	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		rejected  atomic.Int32
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, checkout.Request{
				Buyer: checkout.Buyer{Email: fmt.Sprintf("buyer%d@example.com", i)},
				Items: []checkout.LineItem{{ProductID: last, Quantity: 1}},
			})
			switch {
			case err == nil:
				committed.Add(1)
			case assert.ErrorIs(t, err, checkout.ErrInsufficientStock):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), committed.Load())
	assert.Equal(t, int32(buyers-1), rejected.Load())
	assert.Zero(t, stockOf(t, pool, last))
	assert.Equal(t, 1, countRows(t, pool, "orders"))
}

func TestCheckout_SameEmailConcurrentlyResolvesOneUser(t *testing.T) {
	pool := setup(t)
	ctx := context.Background()
	a := seedProduct(t, pool, nil, "A", "5.00", 100)
	svc := newCheckout(pool)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, checkout.Request{
				Buyer: checkout.Buyer{Email: "shared@example.com"},
				Items: []checkout.LineItem{{ProductID: a, Quantity: 1}},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countRows(t, pool, "users"))
	assert.Equal(t, 5, countRows(t, pool, "orders"))
}
