package token

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Amchik/archk/internal/infrastructure/logging"
)

// Subject is the identity a validated bearer string resolves to.
type Subject struct {
	Kind     Kind
	ID       string // user or service account ID
	IssuedAt int64  // unix milliseconds
}

// Authority issues, validates and revokes bearer tokens.
//
// Thread Safety:
//   - Safe for concurrent use; all state lives in the store.
type Authority struct {
	tokens   Repository
	services ServiceRepository

	// maxAge bounds the accepted age of personal tokens. Zero disables the
	// policy. Service tokens are exempt: machines do not re-login.
	maxAge time.Duration

	log *logging.Logger
}

// NewAuthority creates a token authority.
func NewAuthority(tokens Repository, services ServiceRepository, maxAge time.Duration, log *logging.Logger) *Authority {
	return &Authority{
		tokens:   tokens,
		services: services,
		maxAge:   maxAge,
		log:      log.With("component", "token"),
	}
}

// IssueUser creates a personal token for the user and returns the bearer
// string. The string is shown once; only the (issued_at, nonce) pair is
// stored.
func (a *Authority) IssueUser(ctx context.Context, userID string) (string, error) {
	t, err := a.newToken(KindUser)
	if err != nil {
		return "", err
	}
	if err := a.tokens.Insert(ctx, t.IssuedAt, t.Nonce, userID); err != nil {
		return "", err
	}

	a.log.Info("token issued", "user_id", userID)
	return t.String(), nil
}

// IssueService creates a token for a service account.
func (a *Authority) IssueService(ctx context.Context, serviceID string) (string, error) {
	t, err := a.newToken(KindService)
	if err != nil {
		return "", err
	}
	if err := a.services.Insert(ctx, t.IssuedAt, t.Nonce, serviceID); err != nil {
		return "", err
	}

	a.log.Info("service token issued", "service_id", serviceID)
	return t.String(), nil
}

// Validate resolves a bearer string to its subject.
//
// The prefix routes the lookup; a missing row is ErrInvalidToken. Personal
// tokens older than the configured max age are deleted on sight and
// reported as ErrExpiredToken — expiry is checked lazily here, there is no
// background sweeper.
func (a *Authority) Validate(ctx context.Context, bearer string) (*Subject, error) {
	t, err := Parse(bearer)
	if err != nil {
		return nil, err
	}

	switch t.Kind {
	case KindUser:
		if a.maxAge > 0 {
			age := time.Since(time.UnixMilli(t.IssuedAt))
			if age > a.maxAge {
				if err := a.tokens.Delete(ctx, t.IssuedAt, t.Nonce); err != nil {
					return nil, err
				}
				return nil, ErrExpiredToken
			}
		}

		userID, err := a.tokens.Lookup(ctx, t.IssuedAt, t.Nonce)
		if err != nil {
			return nil, err
		}
		return &Subject{Kind: KindUser, ID: userID, IssuedAt: t.IssuedAt}, nil

	case KindService:
		serviceID, err := a.services.Lookup(ctx, t.IssuedAt, t.Nonce)
		if err != nil {
			return nil, err
		}
		return &Subject{Kind: KindService, ID: serviceID, IssuedAt: t.IssuedAt}, nil

	default:
		return nil, ErrInvalidToken
	}
}

// RevokeOne deletes exactly one token row; revoking an absent token is a
// no-op.
func (a *Authority) RevokeOne(ctx context.Context, kind Kind, issuedAt int64, nonce uint32) error {
	if kind == KindService {
		return a.services.Delete(ctx, issuedAt, nonce)
	}
	return a.tokens.Delete(ctx, issuedAt, nonce)
}

// RevokeBearer parses a bearer string and revokes the token it names.
// Used for logout with the presented credential.
func (a *Authority) RevokeBearer(ctx context.Context, bearer string) error {
	t, err := Parse(bearer)
	if err != nil {
		return err
	}
	return a.RevokeOne(ctx, t.Kind, t.IssuedAt, t.Nonce)
}

// RevokeAllUser deletes every personal token of a user. Used on password
// change and administrative reset.
func (a *Authority) RevokeAllUser(ctx context.Context, userID string) error {
	return a.tokens.DeleteAllForUser(ctx, userID)
}

// RevokeAllService deletes every token of a service account.
func (a *Authority) RevokeAllService(ctx context.Context, serviceID string) error {
	return a.services.DeleteAllForService(ctx, serviceID)
}

// CountForService returns the number of live tokens for a service account.
func (a *Authority) CountForService(ctx context.Context, serviceID string) (int, error) {
	return a.services.CountForService(ctx, serviceID)
}

// newToken builds a fresh token with the current time and a random nonce.
func (a *Authority) newToken(kind Kind) (Token, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return Token{}, fmt.Errorf("generating nonce: %w", err)
	}
	return Token{
		Kind:     kind,
		IssuedAt: time.Now().UnixMilli(),
		Nonce:    binary.LittleEndian.Uint32(buf[:]),
	}, nil
}
