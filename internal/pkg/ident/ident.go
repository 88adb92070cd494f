package ident

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Hasher derives one-way identifiers from emails and IP addresses. Records and
// log entries store these digests instead of the raw values, which still allows
// equality lookups.
type Hasher struct {
	key []byte
}

// NewHasher creates a Hasher keyed with the deployment hash key. The key must
// be non-empty and at most 64 bytes (BLAKE2b key size limit).
func NewHasher(key string) (*Hasher, error) {
	k := []byte(key)
	if len(k) == 0 {
		return nil, fmt.Errorf("hash key is required")
	}
	if len(k) > blake2b.Size {
		return nil, fmt.Errorf("hash key too long: %d bytes, max %d", len(k), blake2b.Size)
	}
	// Fails only on invalid key length, checked above.
	if _, err := blake2b.New256(k); err != nil {
		return nil, fmt.Errorf("init blake2b: %w", err)
	}
	return &Hasher{key: k}, nil
}

func (h *Hasher) digest(s string) string {
	mac, _ := blake2b.New256(h.key)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashEmail returns the deterministic digest of the normalized email. This is
// the primary key of a subscription record.
func (h *Hasher) HashEmail(email string) string {
	return h.digest("email:" + NormalizeEmail(email))
}

// HashIP returns the digest of an IP address.
func (h *Hasher) HashIP(ip string) string {
	return h.digest("ip:" + strings.TrimSpace(ip))
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Idempotent: NormalizeEmail(NormalizeEmail(s)) == NormalizeEmail(s).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUnsubscribeToken issues the random credential stored on a subscription
// record. Uniqueness is probabilistic; there is no check against existing
// records.
func NewUnsubscribeToken() string {
	return uuid.NewString()
}

// ValidTokenFormat reports whether s has the canonical unsubscribe token shape.
func ValidTokenFormat(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ConstantTimeEquals compares two strings without leaking timing information.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskEmail obscures an address for display, e.g. "jane.doe@outlook.com"
// becomes "j***@o***.com". Malformed input is masked wholesale.
func MaskEmail(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]

	masked := string(local[0]) + "***"
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 {
		return masked + "@***"
	}
	return masked + "@" + string(domain[0]) + "***" + domain[dot:]
}
