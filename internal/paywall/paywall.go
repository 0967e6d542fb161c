package paywall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/puri-adityakumar/clawdium/internal/content"
	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/rate"
	"github.com/puri-adityakumar/clawdium/internal/store"
)

// ErrSettlementAmbiguous means the facilitator reported a settled payment
// without a transaction reference. Funds may have moved; do not re-prompt.
var ErrSettlementAmbiguous = errors.New("paywall: settlement succeeded without transaction reference")

const DefaultFacilitatorTimeout = 10 * time.Second

type Status int

const (
	Granted Status = iota
	PaymentRequired
	PaymentsDisabled
	Unauthenticated
	RateLimited
	VerificationFailed
	SettlementFailed
	Error
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case PaymentRequired:
		return "payment_required"
	case PaymentsDisabled:
		return "payments_disabled"
	case Unauthenticated:
		return "unauthenticated"
	case RateLimited:
		return "rate_limited"
	case VerificationFailed:
		return "verification_failed"
	case SettlementFailed:
		return "settlement_failed"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Config struct {
	Enabled            bool
	Network            string
	PayTo              string
	Asset              string
	PublicURL          string
	MaxTimeoutSeconds  int
	FacilitatorTimeout time.Duration
	PreviewChars       int
}

type Request struct {
	Post         model.Post
	Requester    string
	PaymentToken string
}

// Access is the outcome of ResolveAccess. Content holds the full body only
// when Status is Granted; every other status carries the preview.
type Access struct {
	Status      Status
	Content     string
	Requirement *Requirement
	Settlement  *SettleResult
	RetryAt     time.Time
	Err         error
}

type Ledger interface {
	HasPaid(ctx context.Context, postID, agentID string) (bool, error)
	Record(ctx context.Context, p model.Payment) error
}

// Counter receives best-effort metric increments. Emit must not block.
type Counter interface {
	Emit(name string, delta int64)
}

type Controller struct {
	cfg         Config
	ledger      Ledger
	limiter     rate.Limiter
	facilitator Facilitator
	counter     Counter
	log         zerolog.Logger
}

type Option func(*Controller)

func WithCounter(c Counter) Option {
	return func(ctl *Controller) { ctl.counter = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

func NewController(cfg Config, ledger Ledger, limiter rate.Limiter, facilitator Facilitator, opts ...Option) *Controller {
	if cfg.FacilitatorTimeout <= 0 {
		cfg.FacilitatorTimeout = DefaultFacilitatorTimeout
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = content.DefaultPreviewChars
	}
	c := &Controller{
		cfg:         cfg,
		ledger:      ledger,
		limiter:     limiter,
		facilitator: facilitator,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Enabled() bool {
	return c.cfg.Enabled
}

// Requirement returns the payment requirement for post under this config.
func (c *Controller) Requirement(post model.Post) Requirement {
	return NewRequirement(c.cfg, post)
}

// ResolveAccess decides what the requester may read. Checks run in order
// and the first match wins.
func (c *Controller) ResolveAccess(ctx context.Context, req Request) Access {
	post := req.Post
	if !post.Premium {
		return c.granted(post, nil)
	}
	if req.Requester != "" && req.Requester == post.AgentID {
		return c.granted(post, nil)
	}
	if req.Requester != "" {
		paid, err := c.ledger.HasPaid(ctx, post.ID, req.Requester)
		if err != nil {
			c.log.Error().Err(err).Str("post_id", post.ID).Msg("payment lookup failed")
			return c.refused(post, Error, false, func(a *Access) { a.Err = err })
		}
		if paid {
			return c.granted(post, nil)
		}
	}
	if !c.cfg.Enabled {
		return c.refused(post, PaymentsDisabled, false, nil)
	}
	if req.PaymentToken == "" {
		return c.refused(post, PaymentRequired, true, nil)
	}
	if req.Requester == "" {
		return c.refused(post, Unauthenticated, true, nil)
	}
	return c.pay(ctx, post, req.Requester, req.PaymentToken)
}

func (c *Controller) pay(ctx context.Context, post model.Post, payer, token string) Access {
	log := c.log.With().Str("post_id", post.ID).Str("payer", payer).Logger()

	decision, err := c.limiter.CheckAndRecord(ctx, rate.Key(rate.ActionPayment, payer))
	if err != nil {
		log.Warn().Err(err).Msg("payment rate limit check failed")
		return c.refused(post, PaymentRequired, true, nil)
	}
	if !decision.Allowed {
		return c.refused(post, RateLimited, false, func(a *Access) { a.RetryAt = decision.ResetAt })
	}

	requirement := c.Requirement(post)

	vctx, cancel := context.WithTimeout(ctx, c.cfg.FacilitatorTimeout)
	verified, err := c.facilitator.Verify(vctx, token, requirement)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("payment verification errored")
		return c.refused(post, PaymentRequired, true, nil)
	}
	if !verified.Valid {
		log.Info().Str("reason", verified.Reason).Msg("payment verification rejected")
		return c.refused(post, VerificationFailed, true, nil)
	}

	sctx, cancel := context.WithTimeout(ctx, c.cfg.FacilitatorTimeout)
	settled, err := c.facilitator.Settle(sctx, token, requirement)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("payment settlement errored")
		return c.refused(post, PaymentRequired, true, nil)
	}
	if !settled.Success {
		log.Info().Str("reason", settled.Reason).Msg("payment settlement rejected")
		return c.refused(post, SettlementFailed, true, nil)
	}
	if settled.Transaction == "" {
		log.Error().Str("network", settled.Network).Str("payer_wallet", settled.Payer).Msg("settlement succeeded without transaction reference")
		return c.refused(post, Error, false, func(a *Access) { a.Err = ErrSettlementAmbiguous })
	}

	payerWallet := settled.Payer
	if payerWallet == "" {
		payerWallet = verified.Payer
	}
	err = c.ledger.Record(ctx, model.Payment{
		PostID:       post.ID,
		PayerAgentID: payer,
		AmountUSDC:   post.PriceUSDC,
		TxSignature:  settled.Transaction,
		PayerWallet:  payerWallet,
	})
	switch {
	case err == nil:
		c.emit(model.MetricPayments, 1)
		c.emit(model.MetricRevenue, post.PriceUSDC)
	case errors.Is(err, store.ErrDuplicateSignature):
	default:
		log.Error().Err(err).Str("tx", settled.Transaction).Msg("settled payment not recorded")
		return c.refused(post, PaymentRequired, true, nil)
	}
	return c.granted(post, &settled)
}

func (c *Controller) granted(post model.Post, settled *SettleResult) Access {
	return Access{Status: Granted, Content: post.BodyHTML, Settlement: settled}
}

func (c *Controller) refused(post model.Post, status Status, withRequirement bool, apply func(*Access)) Access {
	a := Access{Status: status, Content: content.Preview(post.BodyHTML, c.cfg.PreviewChars)}
	if withRequirement {
		r := c.Requirement(post)
		a.Requirement = &r
	}
	if apply != nil {
		apply(&a)
	}
	return a
}

func (c *Controller) emit(name string, delta int64) {
	if c.counter != nil {
		c.counter.Emit(name, delta)
	}
}
