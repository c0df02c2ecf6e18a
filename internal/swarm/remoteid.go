package swarm

import (
	"crypto/ed25519"
	"strconv"
	"strings"
)

// RemoteIDMessage is one identity/position broadcast. The signature covers
// the canonical payload; verification binds the claim to the sender's
// registered public key.
type RemoteIDMessage struct {
	SenderID  string `json:"sender_id"`
	Position  Vec3   `json:"position"`
	Velocity  Vec3   `json:"velocity"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Signature []byte `json:"signature,omitempty"`
}

// CanonicalPayload constructs the exact byte sequence that is signed:
//
//	"ARGUSRID:" + sender + ":" + px + "," + py + "," + pz + ":" + vx + "," + vy + "," + vz + ":" + timestamp
//
// Float fields use shortest round-trip formatting so the payload is
// deterministic for identical claims.
func (m *RemoteIDMessage) CanonicalPayload() []byte {
	var b strings.Builder
	b.WriteString("ARGUSRID:")
	b.WriteString(m.SenderID)
	b.WriteByte(':')
	writeVec(&b, m.Position)
	b.WriteByte(':')
	writeVec(&b, m.Velocity)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(m.Timestamp, 10))
	return []byte(b.String())
}

func writeVec(b *strings.Builder, v Vec3) {
	b.WriteString(strconv.FormatFloat(v.X, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(v.Y, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(v.Z, 'g', -1, 64))
}

// Sign signs the canonical payload with priv and stores the signature.
func (m *RemoteIDMessage) Sign(priv ed25519.PrivateKey) {
	m.Signature = ed25519.Sign(priv, m.CanonicalPayload())
}

// Verify reports whether the stored signature is a valid signature of the
// canonical payload under pub. A missing signature never verifies.
func (m *RemoteIDMessage) Verify(pub ed25519.PublicKey) bool {
	if len(m.Signature) != ed25519.SignatureSize || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, m.CanonicalPayload(), m.Signature)
}
