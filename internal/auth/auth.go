// Package auth signs and verifies ledger API requests with ed25519 keys.
//
// A caller's identity is its public key, which doubles as its ledger address.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rickgao/reits-ledger/internal/model"
)

// Request headers carrying the signature.
const (
	HeaderKey       = "REITS-ACCESS-KEY"
	HeaderTimestamp = "REITS-ACCESS-TIMESTAMP"
	HeaderNonce     = "REITS-ACCESS-NONCE"
	HeaderSignature = "REITS-ACCESS-SIGNATURE"
)

// maxNonceLength bounds the nonce a verifier will remember.
const maxNonceLength = 64

// Verification failures.
var (
	ErrMissingHeaders   = errors.New("missing authentication headers")
	ErrInvalidKey       = errors.New("invalid access key")
	ErrStaleTimestamp   = errors.New("request timestamp outside allowed skew")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrInvalidNonce     = errors.New("invalid request nonce")
	ErrReplayedRequest  = errors.New("request nonce already used")
)

// Credentials holds the signing key of one ledger identity.
type Credentials struct {
	Address    model.Address
	PrivateKey ed25519.PrivateKey
}

// NewCredentials wraps an existing private key.
func NewCredentials(key ed25519.PrivateKey) (*Credentials, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}
	addr, err := model.AddressFromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Credentials{Address: addr, PrivateKey: key}, nil
}

// GenerateCredentials creates a fresh identity.
func GenerateCredentials() (*Credentials, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewCredentials(key)
}

// LoadCredentials loads credentials from a private key file path.
func LoadCredentials(privateKeyPath string) (*Credentials, error) {
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	key, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return NewCredentials(key)
}

// LoadPrivateKey loads a PKCS#8 ed25519 private key from a PEM file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an ed25519 private key")
	}
	return edKey, nil
}

// WritePrivateKey stores the key as PKCS#8 PEM, readable only by the owner.
func (c *Credentials) WritePrivateKey(path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(c.PrivateKey)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// SignRequest generates authentication headers for a request. Every call
// carries a fresh nonce, so the headers are good for one request only.
// For the event stream, method should be "GET", path "/v1/events" and body nil.
func (c *Credentials) SignRequest(method, path string, body []byte) map[string]string {
	return c.signAt(time.Now(), method, path, body)
}

func (c *Credentials) signAt(at time.Time, method, path string, body []byte) map[string]string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(fmt.Sprintf("auth: read nonce: %v", err))
	}
	nonce := hex.EncodeToString(raw[:])

	timestampMs := at.UnixMilli()
	sig := ed25519.Sign(c.PrivateKey, message(timestampMs, nonce, method, path, body))

	return map[string]string{
		HeaderKey:       c.Address.String(),
		HeaderTimestamp: strconv.FormatInt(timestampMs, 10),
		HeaderNonce:     nonce,
		HeaderSignature: base64.StdEncoding.EncodeToString(sig),
	}
}

// message is timestamp_ms + nonce + method + path + hex(sha256(body)).
func message(timestampMs int64, nonce, method, path string, body []byte) []byte {
	digest := sha256.Sum256(body)
	return []byte(strconv.FormatInt(timestampMs, 10) + nonce + method + path + hex.EncodeToString(digest[:]))
}

// Verifier checks signed requests. It remembers every accepted nonce until
// its timestamp leaves the skew window, so a signed request runs at most once.
type Verifier struct {
	MaxSkew time.Duration // Allowed clock difference (default: 30s)
	Now     func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time // caller/nonce -> end of replay window
	swept time.Time
}

// NewVerifier creates a Verifier. A zero skew uses 30s.
func NewVerifier(maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = 30 * time.Second
	}
	return &Verifier{MaxSkew: maxSkew, Now: time.Now, seen: make(map[string]time.Time)}
}

// Verify returns the caller address if the headers carry a valid signature
// over method, path and body, and the nonce has not been used before.
func (v *Verifier) Verify(h http.Header, method, path string, body []byte) (model.Address, error) {
	key, ts, nonce, sig := h.Get(HeaderKey), h.Get(HeaderTimestamp), h.Get(HeaderNonce), h.Get(HeaderSignature)
	if key == "" || ts == "" || nonce == "" || sig == "" {
		return model.Address{}, ErrMissingHeaders
	}
	if len(nonce) > maxNonceLength {
		return model.Address{}, fmt.Errorf("%w: %d bytes", ErrInvalidNonce, len(nonce))
	}

	caller, err := model.ParseAddress(key)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	timestampMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: %q", ErrStaleTimestamp, ts)
	}
	now := v.Now()
	signedAt := time.UnixMilli(timestampMs)
	skew := now.Sub(signedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return model.Address{}, fmt.Errorf("%w: %s", ErrStaleTimestamp, skew)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return model.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !ed25519.Verify(caller.PublicKey(), message(timestampMs, nonce, method, path, body), raw) {
		return model.Address{}, ErrInvalidSignature
	}
	if err := v.remember(caller, nonce, signedAt, now); err != nil {
		return model.Address{}, err
	}
	return caller, nil
}

// remember records a nonce, failing if it is still inside its window.
// Expired nonces are swept at most once per skew window.
func (v *Verifier) remember(caller model.Address, nonce string, signedAt, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seen == nil {
		v.seen = make(map[string]time.Time)
	}
	if now.Sub(v.swept) >= v.MaxSkew {
		for k, until := range v.seen {
			if now.After(until) {
				delete(v.seen, k)
			}
		}
		v.swept = now
	}

	k := caller.String() + "/" + nonce
	if until, ok := v.seen[k]; ok && !now.After(until) {
		return fmt.Errorf("%w: %s", ErrReplayedRequest, nonce)
	}
	v.seen[k] = signedAt.Add(v.MaxSkew)
	return nil
}
