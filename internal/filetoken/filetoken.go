// Package filetoken issues and checks short-lived download tokens.
//
// A token is "fileId.userId.expiryUnix.signature" where the signature is
// HMAC-SHA256 over the first three fields, base64url without padding.
// Tokens are stateless bearer credentials; there is no revocation.
package filetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is used when the signer is built with a non-positive TTL.
const DefaultTTL = 300 * time.Second

// Signer is safe for concurrent use.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes a Signer.
type Option func(*Signer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func New(secret string, ttl time.Duration, opts ...Option) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL is the default lifetime of issued tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a token for (fileID, userID) valid for the default TTL.
// The caller must already have authorized the user for the file.
func (s *Signer) Issue(fileID, userID string) (token string, expiresAt int64) {
	return s.IssueFor(fileID, userID, s.ttl)
}

// IssueFor is Issue with an explicit lifetime, truncated to whole seconds.
func (s *Signer) IssueFor(fileID, userID string, ttl time.Duration) (token string, expiresAt int64) {
	expiresAt = s.now().Unix() + int64(ttl/time.Second)
	payload := fileID + "." + userID + "." + strconv.FormatInt(expiresAt, 10)
	return payload + "." + s.sign(payload), expiresAt
}

// Validate reports whether token was issued by this signer for exactly
// (fileID, userID) and has not expired. Expiry is inclusive of its second.
func (s *Signer) Validate(token, fileID, userID string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return false
	}
	if parts[0] != fileID || parts[1] != userID {
		return false
	}

	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || exp <= 0 {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}

	want := s.sign(parts[0] + "." + parts[1] + "." + parts[2])
	return hmac.Equal([]byte(want), []byte(parts[3]))
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Subject returns the unverified user field of token, or "" when the token
// does not have four fields. Pass the result to Validate.
func Subject(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return ""
	}
	return parts[1]
}
