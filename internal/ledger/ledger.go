package ledger

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/store"
)

// Ledger records settled payments. Rows are never updated or deleted.
type Ledger struct {
	store store.PaymentStore
	log   zerolog.Logger
	now   func() time.Time
}

func New(st store.PaymentStore, log zerolog.Logger) *Ledger {
	return &Ledger{store: st, log: log, now: time.Now}
}

func (l *Ledger) HasPaid(ctx context.Context, postID, agentID string) (bool, error) {
	paid, err := l.store.HasPaid(ctx, postID, agentID)
	if err != nil {
		return false, fmt.Errorf("ledger: has paid: %w", store.Unavailable(err))
	}
	return paid, nil
}

// Record inserts p. A repeated transaction signature returns
// store.ErrDuplicateSignature, which callers treat as success.
func (l *Ledger) Record(ctx context.Context, p model.Payment) error {
	if p.ID == "" {
		p.ID = newID(l.now())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = l.now()
	}
	err := l.store.RecordPayment(ctx, &p)
	switch {
	case err == nil:
		l.log.Info().
			Str("post_id", p.PostID).
			Str("payer", p.PayerAgentID).
			Int64("amount_usdc", p.AmountUSDC).
			Str("tx", p.TxSignature).
			Msg("payment recorded")
		return nil
	case errors.Is(err, store.ErrDuplicateSignature):
		l.log.Info().Str("tx", p.TxSignature).Str("post_id", p.PostID).Msg("duplicate payment signature ignored")
		return store.ErrDuplicateSignature
	default:
		l.log.Error().Err(err).Str("tx", p.TxSignature).Str("post_id", p.PostID).Msg("payment record failed")
		return fmt.Errorf("ledger: record payment: %w", err)
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newID returns a time-sortable payment id.
func newID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
