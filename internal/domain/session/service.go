package session

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/pricing"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
	"github.com/xenking/pos-pricing/internal/domain/sale"
)

// Deps are the collaborators of a Service. Inventory may be nil.
type Deps struct {
	Store      Store
	Promotions promotion.Repository
	Discounts  discount.Repository
	Products   catalog.Repository
	Inventory  catalog.Inventory
	Sales      sale.Repository
}

// View is a session priced at read time.
type View struct {
	Session *Session
	Quote   pricing.Quote
}

// AddItemRequest adds Quantity units of a catalog product.
type AddItemRequest struct {
	ProductID string
	Quantity  int
	Addons    []cart.Addon
}

type serviceConfig struct {
	allocator pricing.Allocator
	now       func() time.Time
	lg        *zap.Logger
	meter     metric.Meter
	tracer    trace.Tracer
}

// Option customises Service construction.
type Option func(*serviceConfig)

// WithAllocator replaces the default promotion allocator.
func WithAllocator(a pricing.Allocator) Option {
	return func(cfg *serviceConfig) {
		cfg.allocator = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(cfg *serviceConfig) {
		cfg.now = now
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(cfg *serviceConfig) {
		cfg.lg = lg
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *serviceConfig) {
		cfg.meter = mp.Meter("github.com/xenking/pos-pricing/internal/domain/session")
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *serviceConfig) {
		cfg.tracer = tp.Tracer("github.com/xenking/pos-pricing/internal/domain/session")
	}
}

// Service runs register operations against stored sessions.
type Service struct {
	deps      Deps
	allocator pricing.Allocator
	now       func() time.Time
	lg        *zap.Logger
	tracer    trace.Tracer

	mutations metric.Int64Counter
	sales     metric.Int64Counter
	revenue   metric.Float64Counter
}

// NewService creates a session Service.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	cfg := serviceConfig{
		now:    time.Now,
		lg:     zap.NewNop(),
		meter:  metricnoop.NewMeterProvider().Meter(""),
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Service{
		deps:      deps,
		allocator: cfg.allocator,
		now:       cfg.now,
		lg:        cfg.lg,
		tracer:    cfg.tracer,
	}
	var err error
	if s.mutations, err = cfg.meter.Int64Counter("pos.cart.mutations",
		metric.WithDescription("Cart mutations by operation and result"),
	); err != nil {
		return nil, errors.Wrap(err, "mutations counter")
	}
	if s.sales, err = cfg.meter.Int64Counter("pos.sale.completed",
		metric.WithDescription("Completed checkouts"),
	); err != nil {
		return nil, errors.Wrap(err, "sales counter")
	}
	if s.revenue, err = cfg.meter.Float64Counter("pos.sale.revenue",
		metric.WithDescription("Sum of checkout totals"),
	); err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}
	return s, nil
}

// Open starts a session with fresh promotion and discount snapshots.
func (s *Service) Open(ctx context.Context) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "session.Open")
	defer span.End()

	var (
		records   []promotion.Record
		discounts []discount.Definition
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if records, err = s.deps.Promotions.ListRecords(gctx); err != nil {
			return errors.Wrap(err, "list promotions")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if discounts, err = s.deps.Discounts.ListDiscounts(gctx); err != nil {
			return errors.Wrap(err, "list discounts")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		Promotions: promotion.NormalizeAll(s.lg, records, now),
		Discounts:  discounts,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
	sess.Cart = cart.New(sess.ID)
	if err := s.deps.Store.Create(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "create session")
	}

	s.lg.Info("Cart opened",
		zap.String("cart_id", sess.ID),
		zap.Int("promotions", len(sess.Promotions)),
		zap.Int("discounts", len(sess.Discounts)),
	)
	return s.view(sess), nil
}

// Get returns the session priced at the current time.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	sess, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Discard drops a session without a sale.
func (s *Service) Discard(ctx context.Context, id string) error {
	if err := s.deps.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.lg.Info("Cart discarded", zap.String("cart_id", id))
	return nil
}

// AddItem adds units of a catalog product.
func (s *Service) AddItem(ctx context.Context, id string, version int64, req AddItemRequest) (*View, error) {
	p, err := s.product(ctx, func(ctx context.Context) (*catalog.Product, error) {
		return s.deps.Products.GetByID(ctx, req.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_item", id, version, func(*Session) (cart.Mutation, error) {
		return cart.AddLine{Item: p.LineItem(req.Quantity, req.Addons)}, nil
	})
}

// AddBundle adds one instance of a bundle promotion under a new group id.
// A one-product bundle adds buy+get units of the product, a two-product
// bundle adds the buy units of the first and the get units of the second.
func (s *Service) AddBundle(ctx context.Context, id string, version int64, promotionID string) (*View, error) {
	sess, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	def, ok := promotion.NewCatalog(sess.Promotions).Lookup(promotionID)
	if !ok {
		return nil, errors.Wrap(ErrUnknownPromotion, promotionID)
	}
	if def.Kind != promotion.KindBundle || def.Bundle == nil {
		return nil, errors.Wrap(ErrNotBundle, promotionID)
	}
	terms := *def.Bundle

	products := make([]*catalog.Product, len(terms.Products))
	for i, name := range terms.Products {
		if products[i], err = s.product(ctx, func(ctx context.Context) (*catalog.Product, error) {
			return s.deps.Products.GetByName(ctx, name)
		}); err != nil {
			return nil, err
		}
	}

	ref := cart.BundleRef{
		GroupID:       cart.NewBundleGroupID(),
		PromotionID:   def.ID,
		PromotionName: def.Name,
		DiscountType:  terms.DiscountType,
		DiscountValue: terms.DiscountValue,
	}
	line := func(p *catalog.Product, qty int) cart.Mutation {
		li := p.LineItem(qty, nil)
		r := ref
		li.Bundle = &r
		return cart.AddLine{Item: li}
	}

	var batch cart.Batch
	if len(products) == 1 {
		batch = cart.Batch{line(products[0], terms.Size())}
	} else {
		batch = cart.Batch{line(products[0], terms.BuyQuantity), line(products[1], terms.GetQuantity)}
	}
	return s.mutate(ctx, "add_bundle", id, version, func(*Session) (cart.Mutation, error) {
		return batch, nil
	})
}

// ChangeQuantity sets the quantity of one line; zero removes it.
func (s *Service) ChangeQuantity(ctx context.Context, id string, version int64, index, quantity int) (*View, error) {
	return s.mutate(ctx, "change_quantity", id, version, func(*Session) (cart.Mutation, error) {
		return cart.SetQuantity{Index: index, Quantity: quantity}, nil
	})
}

// SetAddons replaces the addons of one line.
func (s *Service) SetAddons(ctx context.Context, id string, version int64, index int, addons []cart.Addon) (*View, error) {
	return s.mutate(ctx, "set_addons", id, version, func(*Session) (cart.Mutation, error) {
		return cart.SetAddons{Index: index, Addons: addons}, nil
	})
}

// RemoveItem deletes one line.
func (s *Service) RemoveItem(ctx context.Context, id string, version int64, index int) (*View, error) {
	return s.mutate(ctx, "remove_item", id, version, func(*Session) (cart.Mutation, error) {
		return cart.RemoveLine{Index: index}, nil
	})
}

// RemoveBundle deletes every line of a bundle instance.
func (s *Service) RemoveBundle(ctx context.Context, id string, version int64, group cart.BundleGroupID) (*View, error) {
	return s.mutate(ctx, "remove_bundle", id, version, func(*Session) (cart.Mutation, error) {
		return cart.RemoveBundle{GroupID: group}, nil
	})
}

// ApplyDiscount binds a session discount to the selected line quantities.
func (s *Service) ApplyDiscount(ctx context.Context, id string, version int64, discountID string, selected map[int]int) (*View, error) {
	return s.mutate(ctx, "apply_discount", id, version, func(sess *Session) (cart.Mutation, error) {
		i := slices.IndexFunc(sess.Discounts, func(d discount.Definition) bool { return d.ID == discountID })
		if i < 0 {
			return nil, errors.Wrap(ErrUnknownDiscount, discountID)
		}
		applied, err := pricing.ApplyDiscount(sess.Cart, sess.Discounts[i], selected)
		if err != nil {
			return nil, err
		}
		return cart.AttachDiscount{Discount: applied}, nil
	})
}

// RemoveDiscount detaches the manual discount at position.
func (s *Service) RemoveDiscount(ctx context.Context, id string, version int64, position int) (*View, error) {
	return s.mutate(ctx, "remove_discount", id, version, func(*Session) (cart.Mutation, error) {
		return cart.DetachDiscount{Position: position}, nil
	})
}

// Clear empties the cart but keeps the session.
func (s *Service) Clear(ctx context.Context, id string, version int64) (*View, error) {
	return s.mutate(ctx, "clear", id, version, func(*Session) (cart.Mutation, error) {
		return cart.Clear{}, nil
	})
}

// Checkout prices the cart, persists the sale and closes the session.
func (s *Service) Checkout(ctx context.Context, id string, version int64) (*sale.Sale, error) {
	ctx, span := s.tracer.Start(ctx, "session.Checkout", trace.WithAttributes(attribute.String("cart.id", id)))
	defer span.End()

	sess, err := s.deps.Store.Update(ctx, id, func(sess *Session) error {
		if err := checkOpen(sess, version); err != nil {
			return err
		}
		if len(sess.Cart.Items) == 0 {
			return ErrEmptyCart
		}
		sess.CheckedOut = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	v := s.view(sess)
	sl := sale.Build(uuid.NewString(), sess.Cart, v.Quote, s.now())
	if err := s.deps.Sales.Create(ctx, &sl); err != nil {
		span.RecordError(err)
		if _, rerr := s.deps.Store.Update(ctx, id, func(sess *Session) error {
			sess.CheckedOut = false
			return nil
		}); rerr != nil {
			s.lg.Error("Reopen cart after failed checkout", zap.String("cart_id", id), zap.Error(rerr))
		}
		return nil, errors.Wrap(err, "create sale")
	}
	if err := s.deps.Store.Delete(ctx, id); err != nil {
		s.lg.Warn("Delete checked out cart", zap.String("cart_id", id), zap.Error(err))
	}

	total, _ := sl.Total.Float64()
	s.sales.Add(ctx, 1)
	s.revenue.Add(ctx, total)
	s.lg.Info("Sale completed",
		zap.String("sale_id", sl.ID),
		zap.String("cart_id", id),
		zap.String("total", sl.Total.StringFixed(2)),
	)
	return &sl, nil
}

func checkOpen(sess *Session, version int64) error {
	if sess.CheckedOut {
		return ErrCheckedOut
	}
	if version != 0 && sess.Cart.Version != version {
		return errors.Wrapf(cart.ErrVersionConflict, "cart is at version %d, request was for %d", sess.Cart.Version, version)
	}
	return nil
}

// mutate applies the mutation built by fn under the store's per-cart
// serialization. A cart whose product demand grew is checked against
// inventory before it is stored. fn may run more than once.
func (s *Service) mutate(
	ctx context.Context,
	op, id string,
	version int64,
	fn func(sess *Session) (cart.Mutation, error),
) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "session."+op, trace.WithAttributes(attribute.String("cart.id", id)))
	defer span.End()

	sess, err := s.deps.Store.Update(ctx, id, func(sess *Session) error {
		if err := checkOpen(sess, version); err != nil {
			return err
		}
		m, err := fn(sess)
		if err != nil {
			return err
		}
		next, err := sess.Cart.Apply(m)
		if err != nil {
			return err
		}
		if demandGrew(sess.Cart.Items, next.Items) {
			if err := catalog.CheckDemand(ctx, s.deps.Inventory, next.Items); err != nil {
				return err
			}
		}
		sess.Cart = next
		sess.UpdatedAt = s.now()
		return nil
	})

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("result", result)))
	if err != nil {
		s.lg.Debug("Cart mutation rejected",
			zap.String("cart_id", id), zap.String("op", op), zap.Error(err))
		return nil, err
	}
	return s.view(sess), nil
}

func demandGrew(before, after []cart.LineItem) bool {
	prev := catalog.Demand(before)
	for id, qty := range catalog.Demand(after) {
		if qty > prev[id] {
			return true
		}
	}
	return false
}

func (s *Service) product(ctx context.Context, get func(ctx context.Context) (*catalog.Product, error)) (*catalog.Product, error) {
	p, err := get(ctx)
	if err != nil {
		return nil, err
	}
	if !p.Available {
		return nil, errors.Wrap(catalog.ErrUnavailable, p.Name)
	}
	return p, nil
}

func (s *Service) view(sess *Session) *View {
	now := s.now()
	active := make([]promotion.Definition, 0, len(sess.Promotions))
	for _, def := range sess.Promotions {
		if def.ActiveAt(now) {
			active = append(active, def)
		}
	}
	return &View{
		Session: sess,
		Quote:   s.allocator.Allocate(sess.Cart.Items, active, sess.Cart.Discounts),
	}
}
