package invitations

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
)

// Status is an invitation lifecycle state. Transitions are one-directional:
// pending -> accepted | revoked | expired, all terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

// MaxAcceptAttempts is the number of failed email-match attempts after which
// an invitation is force-expired (anti-guessing control).
const MaxAcceptAttempts = 5

// DefaultTTL is the invitation validity window when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Invitation is a time-limited access grant offer. Only the sha256 hash of
// the invite token is stored; the plaintext is generated once and handed to
// the mail boundary.
type Invitation struct {
	ID         string      `bson:"_id,omitempty" json:"id"`
	DocID      string      `bson:"docId" json:"docId"`
	Email      string      `bson:"email" json:"email"`
	Role       access.Role `bson:"role" json:"role"`
	TokenHash  string      `bson:"tokenHash" json:"-"`
	ExpiresAt  time.Time   `bson:"expiresAt" json:"expiresAt"`
	Status     Status      `bson:"status" json:"status"`
	Attempts   int         `bson:"attempts" json:"attempts"`
	InvitedBy  string      `bson:"invitedBy" json:"invitedBy"`
	Notes      string      `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt  time.Time   `bson:"createdAt" json:"createdAt"`
	AcceptedAt *time.Time  `bson:"acceptedAt,omitempty" json:"acceptedAt,omitempty"`
	RevokedAt  *time.Time  `bson:"revokedAt,omitempty" json:"revokedAt,omitempty"`
}

// IsExpired reports whether the invitation is past its expiry, regardless of
// the stored status. Readers must treat a stale pending row as expired.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Status == StatusExpired || now.After(i.ExpiresAt)
}

// AcceptEligible reports whether the invitation can still be accepted.
func (i *Invitation) AcceptEligible(now time.Time) bool {
	return i.Status == StatusPending && !i.IsExpired(now) && i.Attempts < MaxAcceptAttempts
}

// GenerateToken returns a fresh high-entropy invite token (32 random bytes,
// hex encoded). The plaintext is never persisted.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken computes the storage form of a plaintext invite token. Lookup
// hashes the presented token with the same function; no plaintext comparison
// path exists.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
