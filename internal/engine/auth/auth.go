// Package auth turns bearer tokens into principals and principals into store
// capabilities. Holding a store.Writer is what permits a phase change.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"phasegate/internal/store"
)

// Scopes carried in the token's scopes claim.
const (
	ScopeRead         = "phase:read"
	ScopePhaseWrite   = "phase:write"
	ScopeRecordsWrite = "records:write"
)

// ForbiddenError indicates a missing scope.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is an authenticated caller.
type Principal struct {
	ActorID string
	Scopes  []string
	Source  string
}

func (p Principal) Has(scope string) bool { return slices.Contains(p.Scopes, scope) }

// Require returns a ForbiddenError unless p holds scope.
func (p Principal) Require(scope string) error {
	if p.Has(scope) {
		return nil
	}
	return ForbiddenError{Permission: scope}
}

// PhaseWriter hands out w only to principals holding phase:write.
func PhaseWriter(p Principal, w store.Writer) (store.Writer, error) {
	if err := p.Require(ScopePhaseWrite); err != nil {
		return nil, err
	}
	return w, nil
}

type claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// Mint signs a token for actorID with the given scopes.
func (i Issuer) Mint(actorID string, scopes []string) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", errors.New("actor id required")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := i.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes: scopes,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.Secret)
}

// Verify parses token and returns its principal.
func (i Issuer) Verify(token string) (Principal, error) {
	if len(i.Secret) == 0 {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return i.Secret, nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if c.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{ActorID: c.Subject, Scopes: c.Scopes, Source: "jwt"}, nil
}
