// Package wallet generates per-agent payout wallets and seals their secret
// keys at rest with AES-256-GCM.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"

	"github.com/puri-adityakumar/clawdium/internal/model"
)

const (
	NetworkSolana       = "solana"
	NetworkSolanaDevnet = "solana-devnet"
	NetworkBase         = "base"
	NetworkBaseSepolia  = "base-sepolia"
)

// DevEncryptionKey is used when WALLET_ENCRYPTION_KEY is unset outside
// production. Secrets sealed with it are not protected.
const DevEncryptionKey = "6465762d6f6e6c792d636c61776469756d2d77616c6c65742d6b65792d303031"

var (
	ErrUnsupportedNetwork = errors.New("wallet: unsupported network")
	ErrInvalidKey         = errors.New("wallet: encryption key must be 64 hex characters")
	ErrOpen               = errors.New("wallet: cannot open sealed secret")
	ErrAddressMismatch    = errors.New("wallet: sealed secret does not match address")
)

// Keypair is a freshly generated wallet before sealing.
type Keypair struct {
	Network string
	Address string
	Secret  []byte
}

func Generate(network string) (Keypair, error) {
	switch strings.ToLower(network) {
	case NetworkSolana, NetworkSolanaDevnet:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return Keypair{}, err
		}
		return Keypair{Network: network, Address: base58.Encode(pub), Secret: priv}, nil
	case NetworkBase, NetworkBaseSepolia:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return Keypair{}, err
		}
		return Keypair{Network: network, Address: EVMAddress(priv.PubKey()), Secret: priv.Serialize()}, nil
	default:
		return Keypair{}, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

// Address derives the public address for a secret produced by Generate.
func Address(network string, secret []byte) (string, error) {
	switch strings.ToLower(network) {
	case NetworkSolana, NetworkSolanaDevnet:
		if len(secret) != ed25519.PrivateKeySize {
			return "", ErrOpen
		}
		pub := ed25519.PrivateKey(secret).Public().(ed25519.PublicKey)
		return base58.Encode(pub), nil
	case NetworkBase, NetworkBaseSepolia:
		if len(secret) != secp256k1.PrivKeyBytesLen {
			return "", ErrOpen
		}
		return EVMAddress(secp256k1.PrivKeyFromBytes(secret).PubKey()), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

// EVMAddress derives the EIP-55 checksummed address of pub.
func EVMAddress(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	digest := keccak256(uncompressed[1:])
	return checksumAddress(hex.EncodeToString(digest[12:]))
}

func checksumAddress(lowerHex string) string {
	hash := hex.EncodeToString(keccak256([]byte(lowerHex)))
	out := make([]byte, len(lowerHex))
	for i := 0; i < len(lowerHex); i++ {
		c := lowerHex[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

type Sealer struct {
	aead cipher.AEAD
	now  func() time.Time
}

func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead, now: time.Now}, nil
}

// Seal encrypts secret and returns hex encoded ciphertext and nonce.
func (s *Sealer) Seal(secret []byte) (sealed, nonce string, err error) {
	n := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(n); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(s.aead.Seal(nil, n, secret, nil)), hex.EncodeToString(n), nil
}

func (s *Sealer) Open(sealed, nonce string) ([]byte, error) {
	ct, err := hex.DecodeString(sealed)
	if err != nil {
		return nil, ErrOpen
	}
	n, err := hex.DecodeString(nonce)
	if err != nil || len(n) != s.aead.NonceSize() {
		return nil, ErrOpen
	}
	plain, err := s.aead.Open(nil, n, ct, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

// Check opens w's sealed secret and confirms it derives w.Address.
func (s *Sealer) Check(w model.Wallet) error {
	secret, err := s.Open(w.SealedSecret, w.Nonce)
	if err != nil {
		return err
	}
	addr, err := Address(w.Network, secret)
	if err != nil {
		return err
	}
	if addr != w.Address {
		return ErrAddressMismatch
	}
	return nil
}

// NewWallet generates a keypair on network and returns it sealed for agentID.
func (s *Sealer) NewWallet(agentID, network string) (model.Wallet, error) {
	kp, err := Generate(network)
	if err != nil {
		return model.Wallet{}, err
	}
	sealed, nonce, err := s.Seal(kp.Secret)
	if err != nil {
		return model.Wallet{}, fmt.Errorf("wallet: seal: %w", err)
	}
	return model.Wallet{
		AgentID:      agentID,
		Network:      kp.Network,
		Address:      kp.Address,
		SealedSecret: sealed,
		Nonce:        nonce,
		CreatedAt:    s.now(),
	}, nil
}
