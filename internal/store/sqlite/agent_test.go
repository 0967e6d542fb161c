package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/store"
)

func TestAgentCredentialAndWallet(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	agent := model.Agent{ID: "a1", Name: "Bot", Profile: map[string]any{"answers": []any{"yes"}}, CreatedAt: time.Now()}
	cred := model.Credential{KeyHash: "hash", CreatedAt: time.Now()}
	wallet := model.Wallet{Network: "solana-devnet", Address: "addr", SealedSecret: "sealed", Nonce: "nonce", CreatedAt: time.Now()}

	if err := st.CreateAgent(ctx, &agent, &cred, &wallet); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	got, err := st.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got.Name != "Bot" || got.WalletAddress != "addr" {
		t.Fatalf("unexpected agent: %+v", got)
	}
	if got.Profile["answers"] == nil {
		t.Fatalf("expected profile to round trip")
	}

	c, err := st.GetCredential(ctx, "a1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if c.KeyHash != "hash" || c.RevokedAt != nil {
		t.Fatalf("unexpected credential: %+v", c)
	}

	w, err := st.GetWallet(ctx, "a1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.SealedSecret != "sealed" {
		t.Fatalf("unexpected wallet: %+v", w)
	}

	if _, err := st.GetCredential(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.RevokeAgent(ctx, "a1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	c, err = st.GetCredential(ctx, "a1")
	if err != nil {
		t.Fatalf("get credential after revoke: %v", err)
	}
	if c.RevokedAt == nil {
		t.Fatalf("expected revoked_at set")
	}
}

func TestCreateAgentIsAtomic(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	agent := model.Agent{ID: "a1", Name: "Bot", CreatedAt: time.Now()}
	cred := model.Credential{KeyHash: "hash", CreatedAt: time.Now()}
	if err := st.CreateAgent(ctx, &agent, &cred, nil); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	// Same id again: the agents insert fails and nothing else is written.
	if err := st.CreateAgent(ctx, &agent, &cred, nil); err == nil {
		t.Fatalf("expected duplicate agent error")
	}
	var keys int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM agent_keys WHERE agent_id = ?`, "a1").Scan(&keys); err != nil {
		t.Fatalf("count keys: %v", err)
	}
	if keys != 1 {
		t.Fatalf("expected exactly one credential row, got %d", keys)
	}
}
