package paywall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/puri-adityakumar/clawdium/internal/content"
	"github.com/puri-adityakumar/clawdium/internal/ledger"
	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/rate"
	"github.com/puri-adityakumar/clawdium/internal/store"
	"github.com/puri-adityakumar/clawdium/internal/store/sqlite"
)

type stubFacilitator struct {
	mu        sync.Mutex
	verify    VerifyResult
	verifyErr error
	settle    SettleResult
	settleErr error
	verifies  int
	settles   int
}

func (f *stubFacilitator) Verify(context.Context, string, Requirement) (VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	return f.verify, f.verifyErr
}

func (f *stubFacilitator) Settle(context.Context, string, Requirement) (SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settles++
	return f.settle, f.settleErr
}

func (f *stubFacilitator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifies + f.settles
}

func okFacilitator(tx string) *stubFacilitator {
	return &stubFacilitator{
		verify: VerifyResult{Valid: true, Payer: "payer-wallet"},
		settle: SettleResult{Success: true, Transaction: tx, Network: "solana-devnet"},
	}
}

type memLedger struct {
	mu        sync.Mutex
	paid      map[string]bool
	sigs      map[string]bool
	hasErr    error
	recordErr error
	records   int
}

func newMemLedger() *memLedger {
	return &memLedger{paid: map[string]bool{}, sigs: map[string]bool{}}
}

func (l *memLedger) HasPaid(_ context.Context, postID, agentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasErr != nil {
		return false, l.hasErr
	}
	return l.paid[postID+"/"+agentID], nil
}

func (l *memLedger) Record(_ context.Context, p model.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	if l.sigs[p.TxSignature] {
		return store.ErrDuplicateSignature
	}
	l.sigs[p.TxSignature] = true
	l.paid[p.PostID+"/"+p.PayerAgentID] = true
	l.records++
	return nil
}

type countingCounter struct {
	mu     sync.Mutex
	totals map[string]int64
}

func (c *countingCounter) Emit(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totals == nil {
		c.totals = map[string]int64{}
	}
	c.totals[name] += delta
}

func (c *countingCounter) get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[name]
}

var premiumBody = "<p>" + strings.Repeat("Premium analysis of agent economies. ", 20) + "</p>"

func premiumPost() model.Post {
	return model.Post{ID: "post-1", AgentID: "author", Title: "Deep dive", BodyHTML: premiumBody, Premium: true, PriceUSDC: 10000}
}

func enabledConfig() Config {
	return Config{Enabled: true, Network: "solana-devnet", PayTo: "platform-wallet", PublicURL: "https://clawdium.test"}
}

func newController(cfg Config, l Ledger, f Facilitator, opts ...Option) *Controller {
	return NewController(cfg, l, rate.NewMemory(10, time.Minute), f, opts...)
}

func TestNonPremiumAlwaysGranted(t *testing.T) {
	f := okFacilitator("tx")
	post := model.Post{ID: "free", AgentID: "author", BodyHTML: "<p>free body</p>"}
	for _, cfg := range []Config{enabledConfig(), {}} {
		c := newController(cfg, newMemLedger(), f)
		for _, req := range []Request{
			{Post: post},
			{Post: post, Requester: "reader"},
			{Post: post, Requester: "reader", PaymentToken: "tok"},
			{Post: post, PaymentToken: "tok"},
		} {
			a := c.ResolveAccess(context.Background(), req)
			if a.Status != Granted || a.Content != post.BodyHTML {
				t.Fatalf("expected granted full content, got %v", a.Status)
			}
		}
	}
	if f.calls() != 0 {
		t.Fatalf("expected no facilitator calls, got %d", f.calls())
	}
}

func TestAuthorBypass(t *testing.T) {
	l := newMemLedger()
	l.hasErr = errors.New("must not be called")
	f := okFacilitator("tx")
	for _, cfg := range []Config{enabledConfig(), {}} {
		a := newController(cfg, l, f).ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "author"})
		if a.Status != Granted || a.Content != premiumBody {
			t.Fatalf("author must read free, got %v", a.Status)
		}
	}
	if f.calls() != 0 {
		t.Fatalf("expected no facilitator calls, got %d", f.calls())
	}
}

func TestAlreadyPaidSkipsFacilitator(t *testing.T) {
	l := newMemLedger()
	l.paid["post-1/reader"] = true
	f := okFacilitator("tx")
	c := newController(enabledConfig(), l, f)

	a := c.ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
	if a.Status != Granted {
		t.Fatalf("expected granted, got %v", a.Status)
	}
	if f.calls() != 0 {
		t.Fatalf("expected zero facilitator calls, got %d", f.calls())
	}

	disabled := newController(Config{}, l, f).ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader"})
	if disabled.Status != Granted {
		t.Fatalf("prior payment must be honoured when disabled, got %v", disabled.Status)
	}
}

func TestPaymentsDisabled(t *testing.T) {
	f := okFacilitator("tx")
	a := newController(Config{}, newMemLedger(), f).ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
	if a.Status != PaymentsDisabled {
		t.Fatalf("expected payments disabled, got %v", a.Status)
	}
	if a.Requirement != nil {
		t.Fatalf("disabled refusal must not carry a requirement")
	}
	if a.Content == premiumBody {
		t.Fatalf("disabled refusal leaked full content")
	}
	if f.calls() != 0 {
		t.Fatalf("expected no facilitator calls")
	}
}

func TestPaymentRequiredScenario(t *testing.T) {
	c := newController(enabledConfig(), newMemLedger(), okFacilitator("tx"))
	a := c.ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader"})

	if a.Status != PaymentRequired {
		t.Fatalf("expected payment required, got %v", a.Status)
	}
	if a.Requirement == nil || a.Requirement.MaxAmountRequired != "10000" {
		t.Fatalf("unexpected requirement: %+v", a.Requirement)
	}
	if a.Requirement.Resource != "https://clawdium.test/api/posts/post-1" || a.Requirement.PayTo != "platform-wallet" {
		t.Fatalf("unexpected requirement target: %+v", a.Requirement)
	}
	if a.Requirement.Scheme != SchemeExact || a.Requirement.MaxTimeoutSeconds != DefaultTimeoutSec || a.Requirement.Asset != DefaultUSDCMint {
		t.Fatalf("unexpected requirement defaults: %+v", a.Requirement)
	}
	preview := content.PlainText(a.Content)
	full := content.PlainText(premiumBody)
	if preview == "" || len(preview) >= len(full) {
		t.Fatalf("expected non-empty preview shorter than body: %d vs %d", len(preview), len(full))
	}

	anon := c.ResolveAccess(context.Background(), Request{Post: premiumPost()})
	if anon.Status != PaymentRequired || anon.Requirement == nil {
		t.Fatalf("anonymous reader should get requirement, got %v", anon.Status)
	}
	if *anon.Requirement != *a.Requirement {
		t.Fatalf("requirement must be deterministic")
	}
}

func TestTokenWithoutIdentity(t *testing.T) {
	f := okFacilitator("tx")
	a := newController(enabledConfig(), newMemLedger(), f).ResolveAccess(context.Background(), Request{Post: premiumPost(), PaymentToken: "tok"})
	if a.Status != Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", a.Status)
	}
	if f.calls() != 0 {
		t.Fatalf("expected no facilitator calls")
	}
}

func TestSuccessfulPayment(t *testing.T) {
	l := newMemLedger()
	f := okFacilitator("tx-1")
	counter := &countingCounter{}
	c := newController(enabledConfig(), l, f, WithCounter(counter), WithLogger(zerolog.Nop()))

	a := c.ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
	if a.Status != Granted || a.Content != premiumBody {
		t.Fatalf("expected granted, got %v", a.Status)
	}
	if a.Settlement == nil || a.Settlement.Transaction != "tx-1" {
		t.Fatalf("expected settlement details, got %+v", a.Settlement)
	}
	if l.records != 1 {
		t.Fatalf("expected one payment recorded, got %d", l.records)
	}
	if counter.get(model.MetricPayments) != 1 || counter.get(model.MetricRevenue) != 10000 {
		t.Fatalf("unexpected counters: %+v", counter.totals)
	}

	again := c.ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
	if again.Status != Granted || f.calls() != 2 {
		t.Fatalf("return reader must not be charged twice: %v calls=%d", again.Status, f.calls())
	}
}

func TestDuplicateSignatureIsBenign(t *testing.T) {
	l := newMemLedger()
	l.sigs["tx-dup"] = true
	counter := &countingCounter{}
	c := newController(enabledConfig(), l, okFacilitator("tx-dup"), WithCounter(counter))

	a := c.ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
	if a.Status != Granted {
		t.Fatalf("expected granted on duplicate, got %v", a.Status)
	}
	if counter.get(model.MetricPayments) != 0 {
		t.Fatalf("duplicate must not be counted twice")
	}
}

func TestFailureBranches(t *testing.T) {
	cases := []struct {
		name            string
		facilitator     *stubFacilitator
		recordErr       error
		want            Status
		wantRequirement bool
		wantErr         error
	}{
		{
			name:            "verification rejected",
			facilitator:     &stubFacilitator{verify: VerifyResult{Valid: false}},
			want:            VerificationFailed,
			wantRequirement: true,
		},
		{
			name:            "settlement rejected",
			facilitator:     &stubFacilitator{verify: VerifyResult{Valid: true}, settle: SettleResult{Success: false}},
			want:            SettlementFailed,
			wantRequirement: true,
		},
		{
			name:        "settlement without transaction",
			facilitator: &stubFacilitator{verify: VerifyResult{Valid: true}, settle: SettleResult{Success: true}},
			want:        Error,
			wantErr:     ErrSettlementAmbiguous,
		},
		{
			name:            "verify transport error",
			facilitator:     &stubFacilitator{verifyErr: errors.New("connection reset")},
			want:            PaymentRequired,
			wantRequirement: true,
		},
		{
			name:            "settle transport error",
			facilitator:     &stubFacilitator{verify: VerifyResult{Valid: true}, settleErr: errors.New("bad json")},
			want:            PaymentRequired,
			wantRequirement: true,
		},
		{
			name:            "ledger write error",
			facilitator:     okFacilitator("tx"),
			recordErr:       errors.New("disk full"),
			want:            PaymentRequired,
			wantRequirement: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newMemLedger()
			l.recordErr = tc.recordErr
			a := newController(enabledConfig(), l, tc.facilitator).ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
			if a.Status != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, a.Status)
			}
			if (a.Requirement != nil) != tc.wantRequirement {
				t.Fatalf("requirement presence mismatch: %+v", a.Requirement)
			}
			if tc.wantErr != nil && !errors.Is(a.Err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, a.Err)
			}
			if a.Content == premiumBody {
				t.Fatalf("full content leaked on %v", a.Status)
			}
			if l.records != 0 {
				t.Fatalf("nothing should be recorded")
			}
		})
	}
}

func TestHasPaidStorageFailure(t *testing.T) {
	l := newMemLedger()
	l.hasErr = fmt.Errorf("ledger: %w", store.ErrUnavailable)
	f := okFacilitator("tx")
	a := newController(enabledConfig(), l, f).ResolveAccess(context.Background(), Request{Post: premiumPost(), Requester: "reader", PaymentToken: "tok"})
	if a.Status != Error || !errors.Is(a.Err, store.ErrUnavailable) {
		t.Fatalf("expected storage error, got %v %v", a.Status, a.Err)
	}
	if a.Content == premiumBody || f.calls() != 0 {
		t.Fatalf("storage failure must fail closed")
	}
}

func TestPaymentAttemptsRateLimited(t *testing.T) {
	f := &stubFacilitator{verify: VerifyResult{Valid: false}}
	c := newController(enabledConfig(), newMemLedger(), f)
	req := Request{Post: premiumPost(), Requester: "reader", PaymentToken: "bad"}

	for i := 0; i < 10; i++ {
		if a := c.ResolveAccess(context.Background(), req); a.Status != VerificationFailed {
			t.Fatalf("attempt %d: expected verification failed, got %v", i+1, a.Status)
		}
	}
	a := c.ResolveAccess(context.Background(), req)
	if a.Status != RateLimited || a.RetryAt.IsZero() {
		t.Fatalf("expected rate limited with retry time, got %v", a.Status)
	}
	if f.verifies != 10 {
		t.Fatalf("rate limited attempt must not reach facilitator, verifies=%d", f.verifies)
	}
}

func TestConcurrentSettlementRecordsOnce(t *testing.T) {
	st, err := sqlite.Open("file:paywall_concurrent?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	for _, id := range []string{"author", "reader"} {
		agent := model.Agent{ID: id, Name: id, CreatedAt: time.Now()}
		if err := st.CreateAgent(ctx, &agent, &model.Credential{KeyHash: "h", CreatedAt: time.Now()}, nil); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}
	post := premiumPost()
	post.BodyMD = "premium markdown body"
	post.CreatedAt = time.Now()
	if err := st.CreatePost(ctx, &post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	counter := &countingCounter{}
	c := newController(enabledConfig(), ledger.New(st, zerolog.Nop()), okFacilitator("same-tx"), WithCounter(counter))

	var wg sync.WaitGroup
	results := make([]Access, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.ResolveAccess(ctx, Request{Post: post, Requester: "reader", PaymentToken: "tok"})
		}(i)
	}
	wg.Wait()

	for i, a := range results {
		if a.Status != Granted {
			t.Fatalf("request %d: expected granted, got %v (%v)", i, a.Status, a.Err)
		}
	}
	if got := counter.get(model.MetricPayments); got != 1 {
		t.Fatalf("expected exactly one recorded payment, got %d", got)
	}
}

func TestPaymentResponseRoundTrip(t *testing.T) {
	header := EncodePaymentResponse(SettleResult{Success: true, Transaction: "tx", Network: "solana"})
	got, err := DecodePaymentResponse(header)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || got.Transaction != "tx" || got.Network != "solana" {
		t.Fatalf("unexpected payment response %+v", got)
	}
}
