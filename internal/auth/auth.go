package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "assetdesk"
	DefaultTokenTTL = 24 * time.Hour

	minSecretLength = 16
)

// ErrInvalidToken indicates the token failed validation for any reason.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload issued at login.
type Claims struct {
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 identity tokens.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec) error

// WithIssuer overrides the iss claim written and required by the codec.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("auth: issuer must not be empty")
		}
		c.issuer = issuer
		return nil
	}
}

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl <= 0 {
			return errors.New("auth: token ttl must be positive")
		}
		c.ttl = ttl
		return nil
	}
}

// WithClock sets the time source, mainly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) error {
		if now == nil {
			return errors.New("auth: clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// NewCodec returns a codec signing with secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", minSecretLength)
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Issue signs a token for id. The token expires after the codec TTL.
func (c *Codec) Issue(id Identity) (string, time.Time, error) {
	id = id.normalized()
	if id.ID == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if _, err := ParseRole(id.Role); err != nil {
		return "", time.Time{}, err
	}

	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Role:       id.Role,
		Department: id.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, issuer and expiry. Every failure is
// reported as ErrInvalidToken.
func (c *Codec) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{ID: claims.Subject, Role: claims.Role, Department: claims.Department}.normalized()
	if id.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	if _, err := ParseRole(id.Role); err != nil {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// TTL reports the lifetime applied to issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }
