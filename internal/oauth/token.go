// Package oauth implements Matric's own OAuth2 token lifecycle: Matric acts
// as the authorization server, never as a client of a third-party IdP.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matric/internal/matricerr"
)

// TokenType distinguishes access from refresh tokens in introspection
// responses.
type TokenType string

const (
	TokenTypeBearer  TokenType = "Bearer"
	TokenTypeRefresh TokenType = "refresh_token"
)

// Token is an issued bearer or refresh token record. Raw is only populated
// immediately after issuance; every other path only ever sees the hash.
type Token struct {
	ID        uuid.UUID
	ClientID  string
	Subject   string
	Scope     string
	TokenType TokenType
	Raw       string // only set by CreateToken's return value
	Hash      string
	Revoked   bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Clock abstracts time so the sliding-window expiry logic can be tested
// without real sleeps.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Store persists OAuth clients and tokens in the shared (non-per-archive)
// `oauth_client`/`oauth_token` tables.
type Store struct {
	pool  *pgxpool.Pool
	clock Clock
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool, clock: SystemClock{}} }

// WithClock overrides the store's clock, for tests.
func (s *Store) WithClock(c Clock) *Store {
	s.clock = c
	return s
}

// InitSchema creates the shared OAuth tables if absent.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.oauth_client (
			client_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			redirect_uris TEXT[] NOT NULL DEFAULT '{}',
			grant_types TEXT[] NOT NULL DEFAULT '{}',
			scope TEXT NOT NULL DEFAULT '',
			auth_method TEXT NOT NULL DEFAULT 'client_secret_basic',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return matricerr.Database(err, "failed to init oauth_client table")
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.oauth_token (
			id UUID PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES public.oauth_client(client_id),
			subject TEXT,
			scope TEXT NOT NULL DEFAULT '',
			token_type TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			revoked BOOLEAN NOT NULL DEFAULT false,
			issued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return matricerr.Database(err, "failed to init oauth_token table")
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS oauth_token_hash_idx ON public.oauth_token (token_hash)`)
	if err != nil {
		return matricerr.Database(err, "failed to init oauth_token index")
	}
	return nil
}

// RegisterClient upserts a client registration.
func (s *Store) RegisterClient(ctx context.Context, clientID, name string, redirectURIs, grantTypes []string, scope, authMethod string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO public.oauth_client (client_id, name, redirect_uris, grant_types, scope, auth_method)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id) DO UPDATE SET
			name = EXCLUDED.name, redirect_uris = EXCLUDED.redirect_uris,
			grant_types = EXCLUDED.grant_types, scope = EXCLUDED.scope, auth_method = EXCLUDED.auth_method
	`, clientID, name, redirectURIs, grantTypes, scope, authMethod)
	if err != nil {
		return matricerr.Database(err, "failed to register oauth client")
	}
	return nil
}

func randomTokenValue() (string, error) {
	b := make([]byte, 32) // 256 bits
	if _, err := rand.Read(b); err != nil {
		return "", matricerr.Internal("failed to generate token: %v", err)
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateToken issues a fresh access token (and, if withRefresh, a paired
// refresh token), storing only their SHA-256 hashes. Raw values are
// returned exactly once and never recoverable afterward.
func (s *Store) CreateToken(ctx context.Context, clientID, subject, scope string, withRefresh bool, lifetime time.Duration) (access Token, refresh *Token, err error) {
	rawAccess, err := randomTokenValue()
	if err != nil {
		return Token{}, nil, err
	}
	now := s.clock.Now().UTC()
	access = Token{
		ID: uuid.Must(uuid.NewV7()), ClientID: clientID, Subject: subject, Scope: scope,
		TokenType: TokenTypeBearer, Raw: rawAccess, Hash: hashToken(rawAccess),
		IssuedAt: now, ExpiresAt: now.Add(lifetime),
	}
	if err := s.insertToken(ctx, access); err != nil {
		return Token{}, nil, err
	}

	if withRefresh {
		rawRefresh, err := randomTokenValue()
		if err != nil {
			return Token{}, nil, err
		}
		r := Token{
			ID: uuid.Must(uuid.NewV7()), ClientID: clientID, Subject: subject, Scope: scope,
			TokenType: TokenTypeRefresh, Raw: rawRefresh, Hash: hashToken(rawRefresh),
			IssuedAt: now, ExpiresAt: now.Add(lifetime),
		}
		if err := s.insertToken(ctx, r); err != nil {
			return Token{}, nil, err
		}
		refresh = &r
	}
	return access, refresh, nil
}

func (s *Store) insertToken(ctx context.Context, t Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO public.oauth_token (id, client_id, subject, scope, token_type, token_hash, revoked, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
	`, t.ID, t.ClientID, t.Subject, t.Scope, string(t.TokenType), t.Hash, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return matricerr.Database(err, "failed to persist token")
	}
	return nil
}

// Validate looks up a raw token and returns its record if its hash matches,
// it is not revoked, and it has not expired.
func (s *Store) Validate(ctx context.Context, raw string) (Token, bool, error) {
	return s.lookup(ctx, hashToken(raw))
}

// ValidateAndExtend validates raw and, if valid, atomically slides its
// expiry forward to now+lifetime. Expired tokens are never extended.
func (s *Store) ValidateAndExtend(ctx context.Context, raw string, lifetime time.Duration) (Token, bool, error) {
	hash := hashToken(raw)
	now := s.clock.Now().UTC()
	newExpiry := now.Add(lifetime)

	row := s.pool.QueryRow(ctx, `
		UPDATE public.oauth_token SET expires_at = $3
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2
		RETURNING id, client_id, subject, scope, token_type, token_hash, revoked, issued_at, expires_at
	`, hash, now, newExpiry)

	t, err := scanToken(row)
	if err != nil {
		if matricerr.Is(err, matricerr.KindNotFound) {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}
	return t, true, nil
}

func (s *Store) lookup(ctx context.Context, hash string) (Token, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, client_id, subject, scope, token_type, token_hash, revoked, issued_at, expires_at
		FROM public.oauth_token WHERE token_hash = $1
	`, hash)
	t, err := scanToken(row)
	if err != nil {
		if matricerr.Is(err, matricerr.KindNotFound) {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}
	if t.Revoked || s.clock.Now().UTC().After(t.ExpiresAt) {
		return t, false, nil
	}
	return t, true, nil
}

// Revoke marks a token revoked. Idempotent: revoking an already-revoked
// token succeeds and leaves state unchanged.
func (s *Store) Revoke(ctx context.Context, raw string) error {
	_, err := s.pool.Exec(ctx, `UPDATE public.oauth_token SET revoked = true WHERE token_hash = $1`, hashToken(raw))
	if err != nil {
		return matricerr.Database(err, "failed to revoke token")
	}
	return nil
}

// IntrospectionResponse is the RFC 7662 response shape. Per the spec,
// absent optional fields are omitted entirely (hence the omitempty tags)
// and inactive tokens emit only {"active": false}.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Introspect implements RFC 7662 introspection. Garbage input always
// returns {active: false}, never an error.
func (s *Store) Introspect(ctx context.Context, raw string) (IntrospectionResponse, error) {
	t, valid, err := s.Validate(ctx, raw)
	if err != nil {
		return IntrospectionResponse{}, err
	}
	if !valid {
		return IntrospectionResponse{Active: false}, nil
	}
	return IntrospectionResponse{
		Active:    true,
		Scope:     t.Scope,
		ClientID:  t.ClientID,
		TokenType: string(t.TokenType),
		Exp:       t.ExpiresAt.Unix(),
		Iat:       t.IssuedAt.Unix(),
		Aud:       t.ClientID,
		Sub:       t.Subject,
	}, nil
}

// ExpiryInfo reports how long until a token expires and whether callers
// should warn the user (within 300 seconds of expiry).
type ExpiryInfo struct {
	SecondsUntilExpiry int64
	ShouldWarn         bool
}

func (s *Store) GetTokenExpiryInfo(ctx context.Context, raw string) (ExpiryInfo, bool, error) {
	t, valid, err := s.Validate(ctx, raw)
	if err != nil || !valid {
		return ExpiryInfo{}, false, err
	}
	remaining := int64(t.ExpiresAt.Sub(s.clock.Now()).Seconds())
	return ExpiryInfo{SecondsUntilExpiry: remaining, ShouldWarn: remaining < 300}, true, nil
}

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	var tokenType string
	err := row.Scan(&t.ID, &t.ClientID, &t.Subject, &t.Scope, &tokenType, &t.Hash, &t.Revoked, &t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Token{}, matricerr.NotFound("token not found")
		}
		return Token{}, matricerr.Database(err, "failed to scan token row")
	}
	t.TokenType = TokenType(tokenType)
	return t, nil
}
