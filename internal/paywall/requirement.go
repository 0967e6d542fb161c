package paywall

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/puri-adityakumar/clawdium/internal/model"
)

const (
	X402Version       = 1
	SchemeExact       = "exact"
	DefaultUSDCMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	DefaultTimeoutSec = 300
)

// Requirement is the x402 "exact" scheme payment requirement for one post.
type Requirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
}

// NewRequirement derives the requirement from the stored post and the
// deployment config only, so repeated calls yield identical values.
func NewRequirement(cfg Config, post model.Post) Requirement {
	timeout := cfg.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSec
	}
	asset := cfg.Asset
	if asset == "" {
		asset = DefaultUSDCMint
	}
	return Requirement{
		Scheme:            SchemeExact,
		Network:           cfg.Network,
		MaxAmountRequired: strconv.FormatInt(post.PriceUSDC, 10),
		Resource:          ResourceURL(cfg.PublicURL, post.ID),
		Description:       "Access premium post " + post.ID + " (" + post.PriceDisplay() + " USDC)",
		MimeType:          "application/json",
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: timeout,
		Asset:             asset,
	}
}

func ResourceURL(publicURL, postID string) string {
	return strings.TrimRight(publicURL, "/") + "/api/posts/" + postID
}

// PaymentResponse is the decoded form of the X-PAYMENT-RESPONSE header.
type PaymentResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

func EncodePaymentResponse(s SettleResult) string {
	raw, _ := json.Marshal(PaymentResponse{
		Success:     s.Success,
		Transaction: s.Transaction,
		Network:     s.Network,
		Payer:       s.Payer,
	})
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodePaymentResponse(header string) (PaymentResponse, error) {
	var out PaymentResponse
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
