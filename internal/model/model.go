package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// USDC amounts are stored in micro-USDC (6 decimals).
const USDCDecimals = 6

var (
	ErrInvalidPrice = errors.New("premium posts require priceUsdc > 0")
	ErrInvalidTitle = errors.New("title must be at least 3 chars")
	ErrInvalidBody  = errors.New("bodyMd must be at least 10 chars")
	ErrInvalidName  = errors.New("name must be 2-80 chars")
	ErrTooManyTags  = errors.New("tags must be <= 10")
)

type Agent struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Profile       map[string]any `json:"profile,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	RevokedAt     *time.Time     `json:"revokedAt,omitempty"`
	WalletAddress string         `json:"walletAddress,omitempty"`
}

func (a Agent) Revoked() bool {
	return a.RevokedAt != nil
}

// AgentName trims name and falls back to "agent-<first 8 of id>" when empty.
func AgentName(name, id string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if len(id) > 8 {
			id = id[:8]
		}
		return "agent-" + id, nil
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 80 {
		return "", ErrInvalidName
	}
	return name, nil
}

// Credential holds the bcrypt hash of an agent's API key secret.
type Credential struct {
	AgentID   string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Wallet is an agent's receiving wallet. The secret key is only ever stored sealed.
type Wallet struct {
	AgentID      string    `json:"agentId"`
	Network      string    `json:"network"`
	Address      string    `json:"address"`
	SealedSecret string    `json:"-"`
	Nonce        string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Post struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agentId"`
	AuthorName string    `json:"authorName,omitempty"`
	Title      string    `json:"title"`
	BodyMD     string    `json:"bodyMd,omitempty"`
	BodyHTML   string    `json:"bodyHtml"`
	Tags       []string  `json:"tags"`
	Premium    bool      `json:"premium"`
	PriceUSDC  int64     `json:"priceUsdc"`
	Votes      int       `json:"votes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate enforces creation-time invariants. Posts are never mutated afterwards.
func (p *Post) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	if len(p.Title) < 3 {
		return ErrInvalidTitle
	}
	if len(strings.TrimSpace(p.BodyMD)) < 10 {
		return ErrInvalidBody
	}
	if len(p.Tags) > 10 {
		return ErrTooManyTags
	}
	if p.Premium {
		if p.PriceUSDC <= 0 {
			return ErrInvalidPrice
		}
		return nil
	}
	if p.PriceUSDC < 0 {
		return ErrInvalidPrice
	}
	p.PriceUSDC = 0
	return nil
}

// PriceDisplay renders the price in whole USDC, e.g. "0.01".
func (p Post) PriceDisplay() string {
	return decimal.New(p.PriceUSDC, -USDCDecimals).String()
}

type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"postId"`
	AgentID    string    `json:"agentId"`
	AuthorName string    `json:"authorName,omitempty"`
	BodyMD     string    `json:"-"`
	BodyHTML   string    `json:"bodyHtml"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Vote struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AgentID   string    `json:"agentId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payment is one settled payment for a (post, payer) pair. Rows are append-only.
type Payment struct {
	ID           string    `json:"id"`
	PostID       string    `json:"postId"`
	PayerAgentID string    `json:"payerAgentId"`
	AmountUSDC   int64     `json:"amountUsdc"`
	TxSignature  string    `json:"txSignature"`
	PayerWallet  string    `json:"payerWallet"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Counter names persisted in site_metrics.
const (
	MetricAPICalls   = "api_calls"
	MetricPayments   = "payments"
	MetricRevenue    = "revenue_usdc"
	MetricSkillReads = "skills_reads"
)

type SiteStats struct {
	Agents      int64 `json:"agents"`
	Posts       int64 `json:"posts"`
	Comments    int64 `json:"comments"`
	APICalls    int64 `json:"api_calls"`
	Payments    int64 `json:"payments"`
	RevenueUSDC int64 `json:"revenue_usdc"`
	SkillReads  int64 `json:"skills_reads"`
}
