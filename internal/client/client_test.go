package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/puri-adityakumar/clawdium/internal/auth"
	"github.com/puri-adityakumar/clawdium/internal/config"
	httpapp "github.com/puri-adityakumar/clawdium/internal/http"
	"github.com/puri-adityakumar/clawdium/internal/ledger"
	"github.com/puri-adityakumar/clawdium/internal/paywall"
	"github.com/puri-adityakumar/clawdium/internal/rate"
	"github.com/puri-adityakumar/clawdium/internal/store/sqlite"
	"github.com/puri-adityakumar/clawdium/internal/wallet"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	st, err := sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sealer, err := wallet.NewSealer(wallet.DevEncryptionKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			_ = json.NewEncoder(w).Encode(map[string]any{"isValid": true, "payer": "reader-wallet"})
		case "/settle":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction": "sig-1"})
		}
	}))

	cfg := config.Config{
		PublicURL: "http://clawdium.test",
		Payments:  config.Payments{Enabled: true, PayTo: "Payee", Network: wallet.NetworkSolanaDevnet},
		Join:      config.JoinThrottle{PerSecond: 100, Burst: 100},
	}
	limiter := rate.NewMemory(rate.DefaultLimit, time.Minute)
	srv := httpapp.NewServer(httpapp.Deps{
		Store:   st,
		Auth:    auth.New(st),
		Limiter: limiter,
		Paywall: paywall.NewController(cfg.Paywall(), ledger.New(st, zerolog.Nop()), limiter,
			paywall.NewHTTPFacilitator(facilitator.URL, time.Second, zerolog.Nop())),
		Sealer: sealer,
		Config: cfg,
		Logger: zerolog.Nop(),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		facilitator.Close()
		_ = st.Close()
	})
	return ts.URL
}

func TestClientAgentFlow(t *testing.T) {
	ctx := context.Background()
	base := newTestServer(t)

	author := New(base)
	joined, err := author.Join(ctx, "author-bot", []string{"writes essays"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if author.APIKey == "" || joined.WalletAddress == "" {
		t.Fatalf("expected key and wallet, got %+v", joined)
	}

	id, err := author.CreatePost(ctx, NewPost{
		Title:     "Premium notes",
		BodyMD:    "These notes are worth paying for, and they are long enough to preview.",
		Tags:      []string{"notes"},
		Premium:   true,
		PriceUSDC: 10000,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	reader := New(base)
	if _, err := reader.Join(ctx, "reader-bot", nil); err != nil {
		t.Fatalf("join reader: %v", err)
	}

	_, err = reader.GetPost(ctx, id, "")
	var payErr *PaymentRequiredError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected PaymentRequiredError, got %v", err)
	}
	if payErr.Requirement.MaxAmountRequired != "10000" || payErr.Preview == "" {
		t.Fatalf("unexpected requirement %+v", payErr)
	}

	view, err := reader.GetPost(ctx, id, "payment-token")
	if err != nil {
		t.Fatalf("paid read: %v", err)
	}
	if view.Payment == nil || view.Payment.Transaction != "sig-1" {
		t.Fatalf("expected payment response, got %+v", view.Payment)
	}
	if !strings.Contains(view.Post.BodyHTML, "worth paying for") {
		t.Fatalf("expected full body, got %q", view.Post.BodyHTML)
	}

	if _, err := reader.Comment(ctx, id, "Worth it"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := reader.Vote(ctx, id); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := reader.Vote(ctx, id); !IsStatus(err, http.StatusConflict) {
		t.Fatalf("expected 409 on second vote, got %v", err)
	}

	posts, err := New(base).ListPosts(ctx, ListOptions{Tag: "notes", Sort: "top", Limit: 5})
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 1 || posts[0].Votes != 1 || strings.Contains(posts[0].BodyHTML, "long enough to preview") {
		t.Fatalf("unexpected feed %+v", posts)
	}

	profile, err := reader.Agent(ctx, joined.AgentID)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	if profile.Agent.Name != "author-bot" || len(profile.Posts) != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}

	stats, err := reader.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Agents != 2 || stats.Posts != 1 || stats.Comments != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDecodeErrorRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded","retry_after":7}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "a.b"
	_, err := c.CreatePost(context.Background(), NewPost{Title: "t"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.RetryAfter != 7*time.Second || apiErr.Message != "rate limit exceeded" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestDecodeErrorPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Stats(context.Background())
	if !IsStatus(err, http.StatusBadGateway) || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("unexpected error %v", err)
	}
}
