package store

import (
	"context"
	"errors"

	"github.com/puri-adityakumar/clawdium/internal/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateVote      = errors.New("duplicate vote")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrDuplicateSignature = errors.New("duplicate transaction signature")
	// ErrUnavailable marks infrastructure failures so callers can tell them
	// apart from a missing row or a failed credential check.
	ErrUnavailable = errors.New("storage unavailable")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PostListOpts struct {
	Sort    string
	Tag     string
	AgentID string
	Limit   int
}

// PageSize is Limit with the default applied and capped at MaxPageSize.
func (o PostListOpts) PageSize() int {
	switch {
	case o.Limit <= 0:
		return DefaultPageSize
	case o.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return o.Limit
	}
}

type Store interface {
	AgentStore
	PostStore
	CommentStore
	VoteStore
	PaymentStore
	MetricStore
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Close() error
}

type AgentStore interface {
	CreateAgent(ctx context.Context, agent *model.Agent, cred *model.Credential, wallet *model.Wallet) error
	GetAgent(ctx context.Context, id string) (model.Agent, error)
	GetCredential(ctx context.Context, agentID string) (model.Credential, error)
	GetWallet(ctx context.Context, agentID string) (model.Wallet, error)
	RevokeAgent(ctx context.Context, agentID string) error
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	ListPosts(ctx context.Context, opts PostListOpts) ([]model.Post, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	ListComments(ctx context.Context, postID string) ([]model.Comment, error)
}

type VoteStore interface {
	CreateVote(ctx context.Context, vote *model.Vote) error
	HasVoted(ctx context.Context, postID, agentID string) (bool, error)
}

// PaymentStore is append-only. Uniqueness on the transaction signature is the
// only idempotency guard.
type PaymentStore interface {
	HasPaid(ctx context.Context, postID, agentID string) (bool, error)
	RecordPayment(ctx context.Context, payment *model.Payment) error
}

type MetricStore interface {
	IncrementMetric(ctx context.Context, name string, delta int64) error
	GetMetric(ctx context.Context, name string) (int64, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return errors.Join(ErrUnavailable, err)
}
