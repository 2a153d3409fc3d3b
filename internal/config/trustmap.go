package config

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// trustMapFile mirrors the on-disk format: agents: {<peer-cn>: <key-path>}.
type trustMapFile struct {
	Agents map[string]string `yaml:"agents"`
}

// TrustMap resolves a peer common name to its Ed25519 public key. Keys are
// loaded once at startup; lookups are read-mostly.
type TrustMap struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// LoadTrustMap reads the YAML trust map and every key file it references.
// A missing map file yields an empty map and no error so relaxed deployments
// can run without one; a referenced key that fails to load is an error.
func LoadTrustMap(path string) (*TrustMap, error) {
	tm := &TrustMap{keys: make(map[string]ed25519.PublicKey)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return tm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trust map %s: %w", path, err)
	}
	defer f.Close()

	var file trustMapFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("parse trust map %s: %w", path, err)
	}

	for cn, keyPath := range file.Agents {
		key, err := loadEd25519Public(keyPath)
		if err != nil {
			return nil, fmt.Errorf("trust map entry %q: %w", cn, err)
		}
		tm.keys[cn] = key
	}
	return tm, nil
}

// Get returns the public key registered for a common name.
func (t *TrustMap) Get(cn string) (ed25519.PublicKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key, ok := t.keys[cn]
	return key, ok
}

// Known reports whether the common name appears in the map.
func (t *TrustMap) Known(cn string) bool {
	_, ok := t.Get(cn)
	return ok
}

// Len reports how many agents are registered.
func (t *TrustMap) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// loadEd25519Public accepts either a raw 32-byte key file or a PEM-encoded
// PKIX public key.
func loadEd25519Public(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	if block, _ := pem.Decode(data); block != nil {
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PEM key %s: %w", path, err)
		}
		key, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key %s is not ed25519", path)
		}
		return key, nil
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key %s: want PEM or %d raw bytes, got %d",
			path, ed25519.PublicKeySize, len(data))
	}
	return ed25519.PublicKey(data), nil
}
