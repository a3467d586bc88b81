package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

const DefaultTimeout = 5 * time.Second

// MaxQuantity is the largest quantity a single line may request. Stock and
// order quantities are stored as 32-bit integers.
const MaxQuantity = math.MaxInt32

type Service interface {
	// Checkout turns the request into an order. It either persists the order
	// with every requested line and deducts the stock, or leaves no trace.
	Checkout(ctx context.Context, req Request) (*Result, error)
}

type Option func(*service)

func WithTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithCredentials(c CredentialIssuer) Option {
	return func(s *service) {
		if c != nil {
			s.credentials = c
		}
	}
}

type service struct {
	products    ProductReader
	orders      OrderLookup
	uow         UnitOfWorkFactory
	credentials CredentialIssuer
	recorder    Recorder
	timeout     time.Duration
	validate    *validator.Validate
}

func NewService(products ProductReader, orders OrderLookup, uow UnitOfWorkFactory, opts ...Option) Service {
	s := &service{
		products:    products,
		orders:      orders,
		uow:         uow,
		credentials: user.NewCredentials(bcrypt.DefaultCost),
		recorder:    nopRecorder{},
		timeout:     DefaultTimeout,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pricedLine is a request line with the unit price captured at pricing time.
type pricedLine struct {
	index       int
	productID   int64
	productName string
	quantity    int
	price       decimal.Decimal
}

// attempt carries per-call state through the state machine.
type attempt struct {
	state  State
	logger zerolog.Logger
}

func (a *attempt) enter(s State) {
	a.logger.Debug().Str("from", a.state.String()).Str("to", s.String()).Msg("checkout: state transition")
	a.state = s
}

func (s *service) Checkout(ctx context.Context, req Request) (res *Result, err error) {
	started := time.Now()
	a := &attempt{
		logger: log.With().Str("email", req.Buyer.Email).Str("idempotency_key", req.IdempotencyKey).Logger(),
	}
	a.enter(StateValidating)

	defer func() {
		s.recorder.ObserveCheckout(Outcome(res, err), time.Since(started))
		if err != nil {
			a.enter(StateAborted)
			a.logger.Warn().Err(err).Str("outcome", Outcome(res, err)).Msg("checkout: aborted")
		}
	}()

	req, err = s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if replayed, found, lookupErr := s.replay(ctx, req.IdempotencyKey); lookupErr != nil {
			return nil, lookupErr
		} else if found {
			a.logger.Info().Int64("order_id", replayed.OrderID).Msg("checkout: replayed existing order")
			return replayed, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a.enter(StatePricing)
	lines, total, err := s.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	return s.reserveAndCommit(ctx, a, req, lines, total)
}

func (s *service) validateRequest(req Request) (Request, error) {
	req.Buyer.Email = user.NormalizeEmail(req.Buyer.Email)
	req.Buyer.Name = strings.TrimSpace(req.Buyer.Name)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if len(req.Items) == 0 {
		return req, invalid(NoLine, "at least one item is required")
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return req, invalid(i, "product_id must be positive, got %d", item.ProductID)
		}
		if item.Quantity <= 0 {
			return req, invalid(i, "quantity must be positive, got %d", item.Quantity)
		}
		if item.Quantity > MaxQuantity {
			return req, invalid(i, "quantity must not exceed %d, got %d", MaxQuantity, item.Quantity)
		}
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return req, invalid(NoLine, "%s failed on the '%s' rule", strings.ToLower(fe.Namespace()), fe.Tag())
		}
		return req, invalid(NoLine, "%v", err)
	}
	return req, nil
}

func (s *service) replay(ctx context.Context, key string) (*Result, bool, error) {
	existing, err := s.orders.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, false, nil
		}
		return nil, false, &Error{Kind: ErrPersistence, Line: NoLine, Err: err}
	}
	return &Result{
		OrderID:    existing.ID,
		UserID:     existing.UserID,
		TotalPrice: existing.TotalPrice,
		ItemCount:  len(existing.Items),
		Replayed:   true,
		CreatedAt:  existing.CreatedAt,
	}, true, nil
}

func (s *service) price(ctx context.Context, items []LineItem) ([]pricedLine, decimal.Decimal, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; !ok {
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, &Error{Kind: ErrPersistence, Line: NoLine, Err: err}
	}

	lines := make([]pricedLine, 0, len(items))
	total := decimal.Zero
	for i, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			return nil, decimal.Zero, &Error{Kind: ErrProductNotFound, Line: i, ProductID: item.ProductID}
		}
		line := pricedLine{
			index:       i,
			productID:   p.ID,
			productName: p.Name,
			quantity:    item.Quantity,
			price:       p.Price,
		}
		total = total.Add(line.price.Mul(decimal.NewFromInt(int64(line.quantity))))
		lines = append(lines, line)
	}
	return lines, total, nil
}

func (s *service) reserveAndCommit(ctx context.Context, a *attempt, req Request, lines []pricedLine, total decimal.Decimal) (*Result, error) {
	passwordHash, err := s.credentials.Placeholder()
	if err != nil {
		return nil, &Error{Kind: ErrPersistence, Line: NoLine, Err: err}
	}

	uow, err := s.uow.Begin(ctx)
	if err != nil {
		return nil, &Error{Kind: ErrPersistence, Line: NoLine, Err: err}
	}

	var reserved []pricedLine
	abort := func(cause *Error) *Error {
		// Compensation must finish even when the attempt's deadline has passed.
		detached := context.WithoutCancel(ctx)
		var compErrs []error
		if !uow.Atomic() {
			for i := len(reserved) - 1; i >= 0; i-- {
				line := reserved[i]
				if relErr := uow.Ledger().Release(detached, line.productID, line.quantity); relErr != nil {
					a.logger.Error().Err(relErr).Int64("product_id", line.productID).Int("quantity", line.quantity).Msg("checkout: failed to release reservation")
					compErrs = append(compErrs, relErr)
				}
			}
		}
		if rbErr := uow.Rollback(detached); rbErr != nil {
			a.logger.Error().Err(rbErr).Msg("checkout: failed to roll back unit of work")
			compErrs = append(compErrs, rbErr)
		}
		if len(compErrs) > 0 {
			cause.Err = errors.Join(append([]error{cause.Err}, compErrs...)...)
		}
		return cause
	}

	a.enter(StateReserving)
	for _, line := range lines {
		if err := uow.Ledger().Reserve(ctx, line.productID, line.quantity); err != nil {
			return nil, abort(reservationError(line, err))
		}
		reserved = append(reserved, line)
	}

	a.enter(StateCommitting)
	buyer, err := user.NewService(uow.Users()).ResolveWithHash(ctx, req.Buyer.Name, req.Buyer.Email, passwordHash)
	if err != nil {
		kind := ErrPersistence
		if errors.Is(err, user.ErrIdentityConflict) {
			kind = ErrIdentityConflict
		}
		return nil, abort(&Error{Kind: kind, Line: NoLine, Err: err})
	}

	o := &order.Order{
		UserID:         buyer.ID,
		TotalPrice:     total,
		IdempotencyKey: req.IdempotencyKey,
		Items:          make([]order.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		o.Items = append(o.Items, order.OrderItem{
			ProductID: line.productID,
			Quantity:  line.quantity,
			Price:     line.price,
		})
	}

	if err := uow.Orders().Create(ctx, o); err != nil {
		aborted := abort(&Error{Kind: ErrPersistence, Line: NoLine, Err: err})
		if errors.Is(err, order.ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key won the race.
			if replayed, found, lookupErr := s.replay(context.WithoutCancel(ctx), req.IdempotencyKey); lookupErr == nil && found {
				a.logger.Info().Int64("order_id", replayed.OrderID).Msg("checkout: duplicate submission resolved to existing order")
				return replayed, nil
			}
		}
		return nil, aborted
	}

	evt := events.OrderPlaced{
		OrderID:    o.ID,
		UserID:     buyer.ID,
		Email:      buyer.Email,
		TotalPrice: o.TotalPrice,
		Items:      make([]events.OrderPlacedItem, 0, len(o.Items)),
		PlacedAt:   o.CreatedAt,
	}
	for _, item := range o.Items {
		evt.Items = append(evt.Items, events.OrderPlacedItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	rec, err := events.NewOrderPlaced(evt)
	if err != nil {
		return nil, abort(&Error{Kind: ErrPersistence, Line: NoLine, Err: err})
	}
	if err := uow.Outbox().Append(ctx, rec); err != nil {
		return nil, abort(&Error{Kind: ErrPersistence, Line: NoLine, Err: err})
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, abort(&Error{Kind: ErrPersistence, Line: NoLine, Err: fmt.Errorf("commit: %w", err)})
	}

	a.enter(StateCommitted)
	a.logger.Info().
		Int64("order_id", o.ID).
		Int64("user_id", buyer.ID).
		Str("total_price", o.TotalPrice.StringFixed(2)).
		Int("items", len(o.Items)).
		Msg("checkout: order created")

	return &Result{
		OrderID:    o.ID,
		UserID:     buyer.ID,
		TotalPrice: o.TotalPrice,
		ItemCount:  len(o.Items),
		CreatedAt:  o.CreatedAt,
	}, nil
}

func reservationError(line pricedLine, err error) *Error {
	var stockErr *inventory.StockError
	switch {
	case errors.As(err, &stockErr):
		name := stockErr.ProductName
		if name == "" {
			name = line.productName
		}
		return &Error{
			Kind:        ErrInsufficientStock,
			Line:        line.index,
			ProductID:   line.productID,
			ProductName: name,
			Available:   stockErr.Available,
		}
	case errors.Is(err, inventory.ErrProductNotFound):
		return &Error{Kind: ErrProductNotFound, Line: line.index, ProductID: line.productID}
	default:
		return &Error{Kind: ErrPersistence, Line: line.index, ProductID: line.productID, Err: err}
	}
}
