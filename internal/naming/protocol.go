package naming

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/adserver"
	"github.com/patrickwarner/adprovision/internal/models"
	"github.com/patrickwarner/adprovision/internal/observability"
)

// LineItems is the part of the ad server the protocol needs.
type LineItems interface {
	CreateLineItem(ctx context.Context, draft models.LineItemDraft) (string, error)
	FindLineItems(ctx context.Context, orderID, name string, match adserver.MatchStrategy) ([]adserver.LineItemRef, error)
}

// Result is a created line item.
type Result struct {
	ID       string
	Name     string // Name actually used
	Attempts int
	// Prechecked is set when the pre-check found an existing name and the
	// first attempt already carried a disambiguating suffix.
	Prechecked bool
}

// Protocol creates line items with collision avoidance.
type Protocol struct {
	items   LineItems
	logger  *zap.Logger
	metrics observability.MetricsRegistry

	maxAttempts int
	retryDelay  time.Duration

	now    func() time.Time
	random func() int
	token  func() string
}

// Option customises a Protocol.
type Option func(*Protocol)

// WithMaxAttempts sets the attempt ceiling (default 5).
func WithMaxAttempts(n int) Option {
	return func(p *Protocol) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the fixed delay between attempts (default 500ms).
func WithRetryDelay(d time.Duration) Option {
	return func(p *Protocol) { p.retryDelay = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// WithEntropy replaces the random number and token sources.
func WithEntropy(random func() int, token func() string) Option {
	return func(p *Protocol) {
		p.random = random
		p.token = token
	}
}

// NewProtocol builds a Protocol.
func NewProtocol(items LineItems, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...Option) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	p := &Protocol{
		items:       items,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: 5,
		retryDelay:  500 * time.Millisecond,
		now:         time.Now,
		random:      randomFiveDigits,
		token:       randomToken,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func randomFiveDigits() int {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return 10000 + int(time.Now().UnixNano()%90000)
	}
	return 10000 + int(n.Int64())
}

func randomToken() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Create submits draft under a unique name. Only collision rejections are
// retried; any other error is returned at once. The caller's draft is never
// modified.
func (p *Protocol) Create(ctx context.Context, draft models.LineItemDraft, externalID string) (Result, error) {
	base := CleanName(draft.Name)
	if base == "" {
		return Result{}, models.NewInputError("name", "line item name is empty after cleaning")
	}
	if base != draft.Name {
		p.logger.Info("line item name cleaned", zap.String("requested", draft.Name), zap.String("cleaned", base))
	}

	res := Result{}
	first := base
	if p.exists(ctx, draft.OrderID, base) {
		first = precheckSuffix(base, p.now())
		res.Prechecked = true
		p.logger.Info("line item name already exists, using suffixed name", zap.String("name", first))
	}

	var lastCollision error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx); err != nil {
				return res, err
			}
		}

		name := first
		if attempt > 1 {
			name = NextCandidateName(attempt, base, NameContext{
				ExternalID: externalID,
				Now:        p.now(),
				Random:     p.random(),
				Token:      p.token(),
			})
		}
		res.Attempts = attempt

		id, err := p.items.CreateLineItem(ctx, draft.WithName(name))
		if err == nil {
			p.metrics.IncrementNamingAttempts(attempt, "created")
			res.ID = id
			res.Name = name
			p.logger.Info("line item created",
				zap.String("line_item_id", id),
				zap.String("name", name),
				zap.Int("attempt", attempt),
			)
			return res, nil
		}
		if !adserver.IsCollision(err) {
			p.metrics.IncrementNamingAttempts(attempt, "error")
			return res, fmt.Errorf("create line item %q: %w", name, err)
		}

		p.metrics.IncrementNamingAttempts(attempt, "collision")
		lastCollision = err
		p.logger.Warn("line item name collision",
			zap.String("name", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
		)
	}
	return res, fmt.Errorf("%w after %d attempts: %w", models.ErrNameExhausted, p.maxAttempts, lastCollision)
}

// exists runs the pre-check strategies. Lookup failures count as no match.
func (p *Protocol) exists(ctx context.Context, orderID, name string) bool {
	for _, strategy := range adserver.MatchStrategies {
		refs, err := p.items.FindLineItems(ctx, orderID, name, strategy)
		if err != nil {
			p.logger.Warn("line item name pre-check failed",
				zap.String("strategy", string(strategy)),
				zap.Error(err),
			)
			continue
		}
		if len(refs) > 0 {
			p.logger.Debug("existing line item names found",
				zap.String("strategy", string(strategy)),
				zap.String("first", refs[0].Name),
				zap.Int("count", len(refs)),
			)
			return true
		}
	}
	return false
}

func (p *Protocol) sleep(ctx context.Context) error {
	if p.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
