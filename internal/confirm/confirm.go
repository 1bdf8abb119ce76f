// Package confirm implements the policy that gates run_sql_query: a query may
// only run with a confirmation key issued when that exact SQL passed review.
package confirm

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/takashabe/bigquery-mcp/internal/errs"
)

const issuer = "bigquery-mcp"

// Policy issues confirmation keys for reviewed SQL and verifies them before execution.
type Policy interface {
	Issue(sql string) (string, error)
	Verify(key, sql string) error
}

// TokenPolicy issues HS256 tokens bound to the SHA-256 of the SQL text.
type TokenPolicy struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenPolicy creates a token policy. An empty secret is replaced with 32
// random bytes, so keys do not survive a restart.
func NewTokenPolicy(secret string, ttl time.Duration) (*TokenPolicy, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate confirmation secret: %w", err)
		}
	}
	return &TokenPolicy{secret: key, ttl: ttl, now: time.Now}, nil
}

func (p *TokenPolicy) Issue(sql string) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   Fingerprint(sql),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		ID:        uuid.New().String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign confirmation key: %w", err)
	}
	return signed, nil
}

func (p *TokenPolicy) Verify(key, sql string) error {
	if strings.TrimSpace(key) == "" {
		return errs.New(errs.ConfirmationRejected, "confirmation_key is required; review the query with create_custom_sql_query_to_review first")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(key, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return errs.New(errs.ConfirmationRejected, "confirmation_key has expired; review the query again")
		}
		return errs.Wrap(errs.ConfirmationRejected, "confirmation_key is not valid", err)
	}

	if claims.Subject != Fingerprint(sql) {
		return errs.New(errs.ConfirmationRejected, "confirmation_key was issued for a different query; run the reviewed SQL without modifications")
	}
	return nil
}

// AdvisoryPolicy accepts any non-empty key. Keys it issues carry no meaning.
type AdvisoryPolicy struct{}

func (AdvisoryPolicy) Issue(sql string) (string, error) {
	return uuid.New().String(), nil
}

func (AdvisoryPolicy) Verify(key, sql string) error {
	if strings.TrimSpace(key) == "" {
		return errs.New(errs.ConfirmationRejected, "confirmation_key is required")
	}
	return nil
}

// Fingerprint is the hex SHA-256 of the SQL with surrounding whitespace removed.
func Fingerprint(sql string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sql)))
	return hex.EncodeToString(sum[:])
}
