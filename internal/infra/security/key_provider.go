package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrKeyNotFound indicates the kid is not part of the key set.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyIDMissing indicates a token without kid header while several keys are loaded.
	ErrKeyIDMissing = errors.New("jwt: missing key identifier")
)

// KeySet holds the RSA public keys trusted for session token verification.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewKeySet constructs a key set from already parsed keys.
func NewKeySet(keys map[string]*rsa.PublicKey) *KeySet {
	set := &KeySet{keys: make(map[string]*rsa.PublicKey, len(keys))}
	for kid, key := range keys {
		_ = set.Register(kid, key)
	}
	return set
}

// LoadKeySet reads every PEM file in dir. Private keys contribute their public half;
// the kid is the file name without extension.
func LoadKeySet(dir string) (*KeySet, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	set := &KeySet{keys: make(map[string]*rsa.PublicKey)}
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(dir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		key, err := parsePublicKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key from file %s: %w", path, err)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		if err := set.Register(kid, key); err != nil {
			return nil, err
		}
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("no verification keys found in %s", dir)
	}
	return set, nil
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// PKCS#1 private key (RSA PRIVATE KEY)
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &key.PublicKey, nil
	}
	// PKCS#8 private key (PRIVATE KEY)
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return &rsaKey.PublicKey, nil
		}
	}
	// PKCS#1 public key
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	// PKIX public key
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported key type")
}

// Register associates kid with key, replacing any previous key.
func (s *KeySet) Register(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = key
	return nil
}

// VerificationKey returns the key for kid. Tokens without kid are accepted only when a single key is loaded.
func (s *KeySet) VerificationKey(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kid = strings.TrimSpace(kid)
	if kid == "" {
		if len(s.keys) == 1 {
			for _, key := range s.keys {
				return key, nil
			}
		}
		return nil, ErrKeyIDMissing
	}

	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Kids lists the registered key ids in order.
func (s *KeySet) Kids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

// Len reports the number of registered keys.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
