package detect

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// keyFile is the on-disk provisioning format: hex-encoded Ed25519 public
// keys indexed by agent ID.
type keyFile struct {
	Keys map[string]string `json:"keys"`
}

// KeyRegistry maps agent IDs to their provisioned Ed25519 public keys.
// Lookups for unprovisioned IDs fail: an unknown broadcaster is treated
// as illegitimate, never given the benefit of the doubt.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewKeyRegistry returns an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[string]ed25519.PublicKey)}
}

// Register provisions or replaces the public key for an agent ID.
func (r *KeyRegistry) Register(id string, pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("key registry: invalid public key size %d for %q", len(pub), id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[id] = pub
	return nil
}

// Lookup returns the provisioned key for id, or false when none exists.
func (r *KeyRegistry) Lookup(id string) (ed25519.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[id]
	return pub, ok
}

// Count returns how many agents are provisioned.
func (r *KeyRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// LoadFile replaces the registry contents with the keys in a JSON
// provisioning file. The swap is atomic: a malformed file leaves the
// previous contents in place.
func (r *KeyRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("key registry: read %s: %w", path, err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("key registry: parse %s: %w", path, err)
	}

	fresh := make(map[string]ed25519.PublicKey, len(kf.Keys))
	for id, hexPub := range kf.Keys {
		pub, err := hex.DecodeString(hexPub)
		if err != nil {
			return fmt.Errorf("key registry: decode key for %q: %w", id, err)
		}
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("key registry: invalid public key size %d for %q", len(pub), id)
		}
		fresh[id] = ed25519.PublicKey(pub)
	}

	r.mu.Lock()
	r.keys = fresh
	r.mu.Unlock()
	return nil
}

// Watch reloads the provisioning file whenever it changes on disk, so
// key rotation does not require a restart. Reload failures keep the last
// good key set and are logged, not fatal.
func (r *KeyRegistry) Watch(path string, log *slog.Logger) error {
	if err := r.LoadFile(path); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("key registry: watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("key registry: watch %s: %w", path, err)
	}

	r.watcher = w
	r.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					log.Error("key registry reload failed", "path", path, "error", err)
					continue
				}
				log.Info("key registry reloaded", "path", path, "keys", r.Count())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("key registry watcher error", "error", err)
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Stop shuts down the file watcher, if one is running.
func (r *KeyRegistry) Stop() {
	if r.watcher == nil {
		return
	}
	close(r.done)
	r.watcher.Close()
	r.watcher = nil
}
