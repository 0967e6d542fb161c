package wallet

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
)

func TestEVMAddressKnownKey(t *testing.T) {
	raw := make([]byte, 32)
	raw[31] = 1
	priv := secp256k1.PrivKeyFromBytes(raw)
	if got := EVMAddress(priv.PubKey()); got != "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf" {
		t.Fatalf("unexpected address %s", got)
	}
}

func TestChecksumAddress(t *testing.T) {
	got := checksumAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if got != "0x5aAeb6053F3e94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("unexpected checksum %s", got)
	}
}

func TestGenerateSolana(t *testing.T) {
	kp, err := Generate(NetworkSolanaDevnet)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pub, err := base58.Decode(kp.Address)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	priv := ed25519.PrivateKey(kp.Secret)
	if !bytes.Equal(pub, priv.Public().(ed25519.PublicKey)) {
		t.Fatalf("address does not match secret")
	}
}

func TestGenerateBase(t *testing.T) {
	kp, err := Generate(NetworkBaseSepolia)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(kp.Address, "0x") || len(kp.Address) != 42 {
		t.Fatalf("unexpected address %s", kp.Address)
	}
	if got := EVMAddress(secp256k1.PrivKeyFromBytes(kp.Secret).PubKey()); got != kp.Address {
		t.Fatalf("address mismatch %s vs %s", got, kp.Address)
	}
}

func TestGenerateUnsupported(t *testing.T) {
	if _, err := Generate("dogechain"); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected ErrUnsupportedNetwork, got %v", err)
	}
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(DevEncryptionKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	w, err := s.NewWallet("a1", NetworkSolana)
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	if w.AgentID != "a1" || w.Address == "" || w.SealedSecret == "" || w.Nonce == "" {
		t.Fatalf("unexpected wallet %+v", w)
	}
	secret, err := s.Open(w.SealedSecret, w.Nonce)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pub := ed25519.PrivateKey(secret).Public().(ed25519.PublicKey)
	if base58.Encode(pub) != w.Address {
		t.Fatalf("opened secret does not match address")
	}

	other, _ := NewSealer(strings.Repeat("ab", 32))
	if _, err := other.Open(w.SealedSecret, w.Nonce); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen with wrong key, got %v", err)
	}
	if _, err := s.Open(w.SealedSecret, "zz"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen for bad nonce, got %v", err)
	}
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	for _, key := range []string{"", "abcd", strings.Repeat("g", 64)} {
		if _, err := NewSealer(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestSealerCheck(t *testing.T) {
	s, err := NewSealer(DevEncryptionKey)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	for _, network := range []string{NetworkSolanaDevnet, NetworkBaseSepolia} {
		w, err := s.NewWallet("a1", network)
		if err != nil {
			t.Fatalf("%s: new wallet: %v", network, err)
		}
		if err := s.Check(w); err != nil {
			t.Fatalf("%s: check: %v", network, err)
		}

		swapped := w
		swapped.Address = "not-" + w.Address
		if err := s.Check(swapped); !errors.Is(err, ErrAddressMismatch) {
			t.Fatalf("%s: expected ErrAddressMismatch, got %v", network, err)
		}
	}

	w, _ := s.NewWallet("a2", NetworkSolana)
	other, _ := NewSealer(strings.Repeat("cd", 32))
	if err := other.Check(w); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen with wrong key, got %v", err)
	}
	if _, err := Address("bitcoin", nil); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected ErrUnsupportedNetwork, got %v", err)
	}
}
