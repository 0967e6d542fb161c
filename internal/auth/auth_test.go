package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/puri-adityakumar/clawdium/internal/model"
	"github.com/puri-adityakumar/clawdium/internal/store"
	"github.com/puri-adityakumar/clawdium/internal/store/sqlite"
)

type countingStore struct {
	mu      sync.Mutex
	creds   map[string]model.Credential
	err     error
	lookups int
}

func (s *countingStore) GetCredential(_ context.Context, agentID string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return model.Credential{}, s.err
	}
	c, ok := s.creds[agentID]
	if !ok {
		return model.Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newKeyFixture(t *testing.T, agentID string) (*countingStore, string) {
	t.Helper()
	key, secret := NewAPIKey(agentID)
	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	st := &countingStore{creds: map[string]model.Credential{agentID: {AgentID: agentID, KeyHash: hash}}}
	return st, key
}

func TestVerifyCachesWithinTTL(t *testing.T) {
	st, key := newKeyFixture(t, "agent-1")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	a := New(st, WithCache(NewKeyCache(10, time.Minute, WithClock(clock.now))))

	id, err := a.Verify(context.Background(), key)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "agent-1" {
		t.Fatalf("unexpected agent id %s", id)
	}
	if st.count() != 1 {
		t.Fatalf("expected 1 lookup, got %d", st.count())
	}

	clock.t = clock.t.Add(59 * time.Second)
	if _, err := a.Verify(context.Background(), key); err != nil {
		t.Fatalf("cached verify: %v", err)
	}
	if st.count() != 1 {
		t.Fatalf("expected cache hit, got %d lookups", st.count())
	}

	clock.t = clock.t.Add(2 * time.Second)
	if _, err := a.Verify(context.Background(), key); err != nil {
		t.Fatalf("verify after expiry: %v", err)
	}
	if st.count() != 2 {
		t.Fatalf("expected exactly one more lookup after TTL, got %d", st.count())
	}
}

func TestVerifyWrongSecretForCachedAgent(t *testing.T) {
	st, key := newKeyFixture(t, "agent-1")
	a := New(st)

	if _, err := a.Verify(context.Background(), key); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := a.Verify(context.Background(), "agent-1.not-the-secret"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if st.count() != 2 {
		t.Fatalf("wrong secret must hit the store, got %d lookups", st.count())
	}
	if a.Cache().Len() != 1 {
		t.Fatalf("failed verification must not be cached, len=%d", a.Cache().Len())
	}
}

func TestVerifyMalformedSkipsStore(t *testing.T) {
	st, _ := newKeyFixture(t, "agent-1")
	a := New(st)

	for _, presented := range []string{"", "noseparator", ".secret", "agent-1.", "   "} {
		if _, err := a.Verify(context.Background(), presented); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%q: expected ErrUnauthenticated, got %v", presented, err)
		}
	}
	if st.count() != 0 {
		t.Fatalf("malformed keys must not touch the store, got %d lookups", st.count())
	}
}

func TestVerifyUnknownAndRevoked(t *testing.T) {
	st, key := newKeyFixture(t, "agent-1")
	a := New(st)

	if _, err := a.Verify(context.Background(), "agent-2.whatever"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown agent, got %v", err)
	}

	revoked := time.Now()
	c := st.creds["agent-1"]
	c.RevokedAt = &revoked
	st.creds["agent-1"] = c
	if _, err := a.Verify(context.Background(), key); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for revoked agent, got %v", err)
	}
}

func TestVerifyStoreFailureIsDistinct(t *testing.T) {
	st := &countingStore{err: errors.New("connection refused")}
	a := New(st)

	_, err := a.Verify(context.Background(), "agent-1.secret")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("store failure must not look like bad credentials: %v", err)
	}
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestVerifyAgainstSQLite(t *testing.T) {
	st, err := sqlite.Open("file:auth_verify?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	key, secret := NewAPIKey("agent-sql")
	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	agent := model.Agent{ID: "agent-sql", Name: "sql", CreatedAt: time.Now()}
	if err := st.CreateAgent(context.Background(), &agent, &model.Credential{KeyHash: hash, CreatedAt: time.Now()}, nil); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	a := New(st)
	id, err := a.Verify(context.Background(), key)
	if err != nil || id != "agent-sql" {
		t.Fatalf("verify: %s %v", id, err)
	}

	if err := st.RevokeAgent(context.Background(), "agent-sql"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	fresh := New(st)
	if _, err := fresh.Verify(context.Background(), key); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected revoked agent rejected, got %v", err)
	}
}
