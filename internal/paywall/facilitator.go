package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultFacilitatorURL = "https://x402.org/facilitator"

type VerifyResult struct {
	Valid  bool
	Reason string
	Payer  string
}

type SettleResult struct {
	Success     bool
	Transaction string
	Network     string
	Payer       string
	Reason      string
}

// Facilitator verifies and settles payment tokens. A rejected or failed
// attempt is a result with Valid/Success false; an error means the outcome
// is unknown.
type Facilitator interface {
	Verify(ctx context.Context, token string, req Requirement) (VerifyResult, error)
	Settle(ctx context.Context, token string, req Requirement) (SettleResult, error)
}

type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPFacilitator(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPFacilitator {
	if baseURL == "" {
		baseURL = DefaultFacilitatorURL
	}
	return &HTTPFacilitator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type facilitatorRequest struct {
	X402Version         int         `json:"x402Version"`
	PaymentHeader       string      `json:"paymentHeader"`
	PaymentRequirements Requirement `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason"`
	Payer         string `json:"payer"`
}

type settleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
	ErrorReason string `json:"errorReason"`
}

func (f *HTTPFacilitator) Verify(ctx context.Context, token string, req Requirement) (VerifyResult, error) {
	var resp verifyResponse
	ok, err := f.post(ctx, "/verify", token, req, &resp)
	if err != nil || !ok {
		return VerifyResult{Reason: "facilitator verification failed"}, err
	}
	return VerifyResult{Valid: resp.IsValid, Reason: resp.InvalidReason, Payer: resp.Payer}, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, token string, req Requirement) (SettleResult, error) {
	var resp settleResponse
	ok, err := f.post(ctx, "/settle", token, req, &resp)
	if err != nil || !ok {
		return SettleResult{Reason: "facilitator settlement failed"}, err
	}
	network := resp.Network
	if network == "" {
		network = req.Network
	}
	return SettleResult{
		Success:     resp.Success,
		Transaction: resp.Transaction,
		Network:     network,
		Payer:       resp.Payer,
		Reason:      resp.ErrorReason,
	}, nil
}

// post returns ok=false for non-2xx responses and timeouts.
func (f *HTTPFacilitator) post(ctx context.Context, path, token string, req Requirement, out any) (bool, error) {
	body, err := json.Marshal(facilitatorRequest{X402Version: X402Version, PaymentHeader: token, PaymentRequirements: req})
	if err != nil {
		return false, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			f.log.Warn().Err(err).Str("path", path).Msg("facilitator timed out")
			return false, nil
		}
		return false, fmt.Errorf("facilitator %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		f.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("facilitator rejected request")
		return false, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return false, fmt.Errorf("facilitator %s: decode: %w", path, err)
	}
	return true, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
