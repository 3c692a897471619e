// Package signer issues and verifies pass signatures and provisions missing passes.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/and161185/onepass/internal/model"
)

const minSecretLen = 16

// Signer derives one Ed25519 key per key id from a master secret.
type Signer struct {
	master []byte

	mu   sync.Mutex
	keys map[string]ed25519.PrivateKey
}

// New returns a Signer over master, which must be at least 16 bytes.
func New(master []byte) (*Signer, error) {
	if len(master) < minSecretLen {
		return nil, fmt.Errorf("signer: master secret must be at least %d bytes", minSecretLen)
	}
	return &Signer{master: append([]byte(nil), master...), keys: make(map[string]ed25519.PrivateKey)}, nil
}

func (s *Signer) key(kid string) (ed25519.PrivateKey, error) {
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("signer: blank key id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[kid]; ok {
		return k, nil
	}
	seed := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, s.master, nil, []byte("onepass/pass-key/"+kid))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("signer: derive key: %w", err)
	}
	k := ed25519.NewKeyFromSeed(seed)
	s.keys[kid] = k
	return k, nil
}

func payload(uid, kid string, issuedAt, version int64) []byte {
	var b strings.Builder
	b.WriteString(uid)
	b.WriteByte('|')
	b.WriteString(kid)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(issuedAt, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(version, 10))
	return []byte(b.String())
}

// Sign returns the unpadded base64url signature of the pass identity fields.
func (s *Signer) Sign(uid, kid string, issuedAt, version int64) (string, error) {
	k, err := s.key(kid)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(k, payload(uid, kid, issuedAt, version))
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify reports whether presented is the stored signature of p and is genuine for p's fields.
func (s *Signer) Verify(p model.Pass, presented string) bool {
	if subtle.ConstantTimeCompare([]byte(p.Signature), []byte(presented)) != 1 {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(presented)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return false
	}
	k, err := s.key(p.KID)
	if err != nil {
		return false
	}
	pub, _ := k.Public().(ed25519.PublicKey)
	return ed25519.Verify(pub, payload(p.UID, p.KID, p.IssuedAt, p.Version), raw)
}
