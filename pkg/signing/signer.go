package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrSignature = errors.New("invalid token signature")
	ErrExpired   = errors.New("token expired")
)

// Claims is the payload carried by a signed token.
type Claims struct {
	Subject   string
	Resource  string
	ExpiresAt time.Time
}

// Signer creates and validates short-lived HMAC tokens binding a subject to a
// resource.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for subject and resource and the moment it expires.
func (s *Signer) Sign(subject, resource string) (string, time.Time, error) {
	if subject == "" || resource == "" {
		return "", time.Time{}, fmt.Errorf("subject and resource required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	parts := []string{
		encode(subject),
		strconv.FormatInt(expiresAt.Unix(), 10),
		encode(resource),
	}
	parts = append(parts, s.mac(parts))
	return strings.Join(parts, "."), expiresAt, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (s *Signer) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrMalformed
	}
	if !hmac.Equal([]byte(s.mac(parts[:3])), []byte(parts[3])) {
		return nil, ErrSignature
	}

	subject, err := decode(parts[0])
	if err != nil {
		return nil, err
	}
	resource, err := decode(parts[2])
	if err != nil {
		return nil, err
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrMalformed
	}
	expiresAt := time.Unix(exp, 0)
	if s.now().After(expiresAt) {
		return nil, ErrExpired
	}
	return &Claims{Subject: subject, Resource: resource, ExpiresAt: expiresAt}, nil
}

func (s *Signer) mac(parts []string) string {
	m := hmac.New(sha256.New, s.secret)
	_, _ = m.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(m.Sum(nil))
}

func encode(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decode(v string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return "", ErrMalformed
	}
	return string(raw), nil
}
