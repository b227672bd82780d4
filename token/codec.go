package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind defines a public type used by identity APIs.
//
// Kind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Kind string

const (
	// KindAccess is an exported constant or variable used by the identity engine.
	KindAccess Kind = "access"
	// KindRefresh is an exported constant or variable used by the identity engine.
	KindRefresh Kind = "refresh"
)

var (
	// ErrExpired is an exported constant or variable used by the identity engine.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is an exported constant or variable used by the identity engine.
	ErrMalformed = errors.New("token malformed")
	// ErrSignatureInvalid is an exported constant or variable used by the identity engine.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrKindMismatch is an exported constant or variable used by the identity engine.
	ErrKindMismatch = errors.New("token kind mismatch")
)

// Config defines a public type used by identity APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Claims defines a public type used by identity APIs.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// Authorities is a single space-joined string on the wire; use
// [Claims.AuthorityList] to recover the individual entries.
type Claims struct {
	Authorities string `json:"authorities,omitempty"`
	Role        string `json:"role,omitempty"`
	TokenKind   Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// AuthorityList splits the authorities claim. Both space- and comma-joined
// encodings are accepted.
func (c *Claims) AuthorityList() []string {
	return strings.FieldsFunc(c.Authorities, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

// Codec defines a public type used by identity APIs.
//
// Codec instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Codec struct {
	config Config
}

// NewCodec describes the newcodec operation and its observable behavior.
//
// NewCodec may return an error when input validation, dependency calls, or security checks fail.
// NewCodec does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Codec{config: cfg}, nil
}

// Mint describes the mint operation and its observable behavior.
//
// Mint may return an error when input validation, dependency calls, or security checks fail.
// Mint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Codec) Mint(subject string, authorities []string, role string, kind Kind, id string) (string, error) {
	if subject == "" {
		return "", errors.New("empty subject")
	}

	ttl := c.config.AccessTTL
	if kind == KindRefresh {
		ttl = c.config.RefreshTTL
	}

	now := time.Now()
	claims := Claims{
		Authorities: strings.Join(authorities, " "),
		Role:        role,
		TokenKind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
}

// Parse describes the parse operation and its observable behavior.
//
// Parse may return an error when input validation, dependency calls, or security checks fail.
// Parse does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Codec) Parse(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenKind != kind {
		return nil, ErrKindMismatch
	}

	return claims, nil
}

// mapParseError collapses golang-jwt's error tree into the three externally
// observable failure kinds. Expiry wins over other validation failures so a
// stale but well-formed token is always reported as expired.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrSignatureInvalid
	}
}
