package detect

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// signedSwarm builds a keyed chain, its snapshot with signed broadcasts,
// and a registry provisioned with every agent's key.
func signedSwarm(t *testing.T, n int) ([]*swarm.UAV, *swarm.Snapshot, *KeyRegistry) {
	t.Helper()
	uavs := make([]*swarm.UAV, n)
	reg := NewKeyRegistry()
	for i := 0; i < n; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatal(err)
		}
		uavs[i] = &swarm.UAV{
			ID:         fmt.Sprintf("uav-%03d", i),
			Position:   swarm.Vec3{X: float64(i) * 50},
			Legitimate: true,
			PublicKey:  pub,
			PrivateKey: priv,
		}
		if err := reg.Register(uavs[i].ID, pub); err != nil {
			t.Fatal(err)
		}
	}

	snap := swarm.BuildSnapshot(uavs, testCommRange)
	msgs := make([]*swarm.RemoteIDMessage, 0, n)
	for _, u := range uavs {
		m := &swarm.RemoteIDMessage{
			SenderID:  u.ID,
			Position:  u.Position,
			Velocity:  u.Velocity,
			Timestamp: 1700000000000,
		}
		m.Sign(u.PrivateKey)
		msgs = append(msgs, m)
	}
	snap.AttachMessages(msgs)
	return uavs, snap, reg
}

func TestAuthenticityValidBroadcasts(t *testing.T) {
	_, snap, reg := signedSwarm(t, 6)
	d := NewAuthenticityDetector(reg)

	if _, err := d.Detect(context.Background(), snap); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("Detect before Train: err = %v, want ErrNotTrained", err)
	}
	if err := d.Train(nil); !errors.Is(err, ErrInsufficientBaseline) {
		t.Fatalf("Train on empty baseline: err = %v, want ErrInsufficientBaseline", err)
	}
	if err := d.Train([]*swarm.Snapshot{snap}); err != nil {
		t.Fatal(err)
	}

	res, err := d.Detect(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	requireCoverage(t, res, snap)
	if res.FlaggedCount() != 0 {
		t.Fatalf("valid broadcasts flagged: %v", res.FlaggedIDs())
	}
	if res.GraphAnomalous {
		t.Fatal("clean snapshot marked anomalous")
	}
}

func TestAuthenticityFlagsImpostors(t *testing.T) {
	uavs, _, reg := signedSwarm(t, 6)
	d := NewAuthenticityDetector(reg)
	if err := d.Train([]*swarm.Snapshot{swarm.BuildSnapshot(uavs, testCommRange)}); err != nil {
		t.Fatal(err)
	}

	// Phantom with no provisioned key, a victim with a tampered claim,
	// and an agent whose broadcast was never observed.
	phantom := &swarm.UAV{ID: "zzz-phantom", Position: swarm.Vec3{X: 275}}
	all := append(append([]*swarm.UAV(nil), uavs...), phantom)
	snap := swarm.BuildSnapshot(all, testCommRange)

	var msgs []*swarm.RemoteIDMessage
	for i, u := range uavs {
		if u.ID == "uav-004" {
			continue // silent agent
		}
		m := &swarm.RemoteIDMessage{
			SenderID:  u.ID,
			Position:  u.Position,
			Timestamp: 1700000000000,
		}
		m.Sign(u.PrivateKey)
		if i == 2 {
			m.Position.X += 500 // tampered after signing
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, &swarm.RemoteIDMessage{
		SenderID:  phantom.ID,
		Position:  phantom.Position,
		Timestamp: 1700000000000,
	})
	snap.AttachMessages(msgs)

	res, err := d.Detect(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	requireCoverage(t, res, snap)

	want := []string{"uav-002", "uav-004", "zzz-phantom"}
	got := res.FlaggedIDs()
	if len(got) != len(want) {
		t.Fatalf("flagged %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flagged %v, want %v", got, want)
		}
	}
	if !res.GraphAnomalous {
		t.Fatal("failed verifications did not mark the graph anomalous")
	}
	for _, id := range want {
		if s := res.Verdicts[id].Score; s != 1 {
			t.Errorf("flagged %s score = %g, want 1", id, s)
		}
	}
}

func TestKeyRegistryLoadFile(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "keys.json")
	content := fmt.Sprintf(`{"keys":{"uav-001":%q}}`, hex.EncodeToString(pub))
	if err := os.WriteFile(path, []byte(content), fs.FileMode(0o600)); err != nil {
		t.Fatal(err)
	}

	reg := NewKeyRegistry()
	if err := reg.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count = %d, want 1", reg.Count())
	}
	got, ok := reg.Lookup("uav-001")
	if !ok || !got.Equal(pub) {
		t.Fatalf("Lookup returned %x, ok=%v", got, ok)
	}

	// A malformed file must keep the previous key set.
	if err := os.WriteFile(path, []byte(`{"keys":{"uav-002":"nothex"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := reg.LoadFile(path); err == nil {
		t.Fatal("malformed file loaded without error")
	}
	if _, ok := reg.Lookup("uav-001"); !ok {
		t.Fatal("previous keys lost after failed reload")
	}
}

func TestKeyRegistryRejectsBadKeySize(t *testing.T) {
	reg := NewKeyRegistry()
	if err := reg.Register("uav-001", []byte("short")); err == nil {
		t.Fatal("short key accepted")
	}
}
