package refund

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/sale"
)

// Append is what a refund decision adds to the ledger.
type Append struct {
	Record Record
	Status sale.Status
}

// DecideFunc inspects a locked sale and its ledger and returns the record to
// append. Returning an error aborts the submission.
type DecideFunc func(s sale.Sale, ledger []Record) (Append, error)

// Ledger stores refund records. Submit must run decide and persist its
// result atomically with respect to other submissions for the same sale.
type Ledger interface {
	Submit(ctx context.Context, saleID string, decide DecideFunc) error
	Load(ctx context.Context, saleID string) (sale.Sale, []Record, error)
	// ExpireBefore marks sales completed at or before cutoff that still
	// accept refunds as expired and returns how many changed.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Request asks for a refund. Full ignores Items.
type Request struct {
	SaleID string
	Items  map[string]int
	Full   bool
	Reason string
}

// Outcome is an accepted refund.
type Outcome struct {
	Record Record
	Result Result
	Status sale.Status
}

// Snapshot is the refund view of a sale.
type Snapshot struct {
	Sale       sale.Sale
	Records    []Record
	Status     sale.Status
	Refundable map[string]int
	ExpiresAt  time.Time
}

type serviceConfig struct {
	window time.Duration
	now    func() time.Time
	lg     *zap.Logger
	meter  metric.Meter
	tracer trace.Tracer
}

// Option customises Service construction.
type Option func(*serviceConfig)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(cfg *serviceConfig) {
		if d > 0 {
			cfg.window = d
		}
	}
}

// WithClock replaces time.Now.
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
		cfg.meter = mp.Meter("github.com/xenking/pos-pricing/internal/domain/refund")
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *serviceConfig) {
		cfg.tracer = tp.Tracer("github.com/xenking/pos-pricing/internal/domain/refund")
	}
}

// Service accepts refunds against the ledger.
type Service struct {
	ledger Ledger
	window time.Duration
	now    func() time.Time
	lg     *zap.Logger
	tracer trace.Tracer

	accepted metric.Int64Counter
	rejected metric.Int64Counter
	amount   metric.Float64Counter
	expired  metric.Int64Counter

	lastSweep atomic.Int64
}

// NewService creates a refund Service.
func NewService(ledger Ledger, opts ...Option) (*Service, error) {
	cfg := serviceConfig{
		window: DefaultWindow,
		now:    time.Now,
		lg:     zap.NewNop(),
		meter:  metricnoop.NewMeterProvider().Meter(""),
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Service{
		ledger: ledger,
		window: cfg.window,
		now:    cfg.now,
		lg:     cfg.lg,
		tracer: cfg.tracer,
	}
	var err error
	if s.accepted, err = cfg.meter.Int64Counter("pos.refund.accepted",
		metric.WithDescription("Refunds accepted"),
	); err != nil {
		return nil, errors.Wrap(err, "accepted counter")
	}
	if s.rejected, err = cfg.meter.Int64Counter("pos.refund.rejected",
		metric.WithDescription("Refunds rejected by quantity or window checks"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if s.amount, err = cfg.meter.Float64Counter("pos.refund.amount",
		metric.WithDescription("Refunded money"),
	); err != nil {
		return nil, errors.Wrap(err, "amount counter")
	}
	if s.expired, err = cfg.meter.Int64Counter("pos.refund.expired_sales",
		metric.WithDescription("Sales moved to REFUND_EXPIRED by the sweeper"),
	); err != nil {
		return nil, errors.Wrap(err, "expired counter")
	}
	return s, nil
}

// Window is the refund eligibility window.
func (s *Service) Window() time.Duration {
	return s.window
}

// Refund validates req against the sale's ledger and appends the record in
// one ledger transaction.
func (s *Service) Refund(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "refund.Refund",
		trace.WithAttributes(attribute.String("sale.id", req.SaleID), attribute.Bool("refund.full", req.Full)),
	)
	defer span.End()

	var out Outcome
	err := s.ledger.Submit(ctx, req.SaleID, func(sl sale.Sale, ledger []Record) (Append, error) {
		now := s.now()
		var (
			res Result
			err error
		)
		if req.Full {
			res, err = ComputeFull(sl, ledger, now, s.window)
		} else {
			res, err = Compute(sl, ledger, req.Items, now, s.window)
		}
		if err != nil {
			return Append{}, err
		}

		rec := Record{
			ID:        uuid.NewString(),
			SaleID:    sl.ID,
			Lines:     res.Lines(),
			Amount:    res.Amount,
			Full:      res.Full,
			Reason:    req.Reason,
			CreatedAt: now,
		}
		status := StateOf(sl, append(slices.Clip(ledger), rec), now, s.window)
		out = Outcome{Record: rec, Result: res, Status: status}
		return Append{Record: rec, Status: status}, nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrExceedsAvailableQuantity) || errors.Is(err, ErrWindowExpired) {
			s.rejected.Add(ctx, 1)
			s.lg.Info("Refund rejected", zap.String("sale_id", req.SaleID), zap.Error(err))
		}
		return nil, errors.Wrap(err, "submit refund")
	}

	amount, _ := out.Record.Amount.Float64()
	s.accepted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("full", out.Record.Full)))
	s.amount.Add(ctx, amount)
	s.lg.Info("Refund accepted",
		zap.String("sale_id", req.SaleID),
		zap.String("refund_id", out.Record.ID),
		zap.String("amount", out.Record.Amount.StringFixed(2)),
		zap.String("status", string(out.Status)),
	)
	return &out, nil
}

// Status returns the sale with its ledger and current refund state.
func (s *Service) Status(ctx context.Context, saleID string) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "refund.Status", trace.WithAttributes(attribute.String("sale.id", saleID)))
	defer span.End()

	sl, ledger, err := s.ledger.Load(ctx, saleID)
	if err != nil {
		return nil, errors.Wrap(err, "load ledger")
	}

	now := s.now()
	snap := &Snapshot{
		Sale:       sl,
		Records:    ledger,
		Status:     StateOf(sl, ledger, now, s.window),
		Refundable: make(map[string]int),
		ExpiresAt:  sl.CompletedAt.Add(s.window),
	}
	if !snap.Status.Terminal() {
		left := remaining(sl, ledger)
		for i, it := range sl.Items {
			snap.Refundable[it.Name] += left[i]
		}
	}
	return snap, nil
}

// Sweep persists REFUND_EXPIRED for every sale whose window has elapsed.
func (s *Service) Sweep(ctx context.Context) error {
	n, err := s.ledger.ExpireBefore(ctx, s.now().Add(-s.window))
	if err != nil {
		return errors.Wrap(err, "expire sales")
	}
	if n > 0 {
		s.expired.Add(ctx, n)
		s.lg.Info("Expired refund windows", zap.Int64("sales", n))
	}
	s.lastSweep.Store(s.now().UnixNano())
	return nil
}

// LastSweep is when Sweep last succeeded, or the zero time.
func (s *Service) LastSweep() time.Time {
	ns := s.lastSweep.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// RunSweeper calls Sweep right away and then every interval until ctx is
// done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.lg.Warn("Refund sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
