// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package google verifies Google Sign-In ID tokens against Google's published keys.
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/internal/auth"
)

// Google's signing keys and issuers.
const (
	DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// DefaultIssuers are the iss values Google uses for ID tokens.
var DefaultIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Config configures the verifier. An empty ClientID disables Google sign-in.
type Config struct {
	ClientID string        `koanf:"client_id" yaml:"client_id" json:"client_id"`
	JWKSURL  string        `koanf:"jwks_url" yaml:"jwks_url" json:"jwks_url"`
	Issuers  []string      `koanf:"issuers" yaml:"issuers" json:"issuers"`
	CacheTTL time.Duration `koanf:"cache_ttl" yaml:"cache_ttl" json:"cache_ttl"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout" json:"timeout"`
	Leeway   time.Duration `koanf:"leeway" yaml:"leeway" json:"leeway"`
}

// DefaultConfig returns verifier defaults with Google sign-in disabled.
func DefaultConfig() Config {
	return Config{
		JWKSURL:  DefaultJWKSURL,
		Issuers:  slices.Clone(DefaultIssuers),
		CacheTTL: time.Hour,
		Timeout:  10 * time.Second,
		Leeway:   30 * time.Second,
	}
}

// Enabled reports whether a client id is configured.
func (c Config) Enabled() bool {
	return c.ClientID != ""
}

// minRefreshInterval bounds how often an unknown kid can trigger a key fetch.
const minRefreshInterval = 30 * time.Second

// Verifier implements auth.IdentityVerifier for Google ID tokens (RS256).
type Verifier struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient sets the client used to fetch keys.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithClock sets the time source used for claim validation and caching.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier. Zero config fields take the defaults.
func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, oops.Code("GOOGLE_INVALID_CONFIG").Errorf("client_id is required")
	}
	def := DefaultConfig()
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = def.JWKSURL
	}
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = def.Issuers
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	v := &Verifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		keys:   map[string]*rsa.PublicKey{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

type idClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
}

// flexBool accepts both true and "true"; Google has emitted both.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `true`, `"true"`:
		*b = true
	case `false`, `"false"`, `null`:
		*b = false
	default:
		return oops.Code("GOOGLE_TOKEN_INVALID").Errorf("email_verified is not a boolean: %s", data)
	}
	return nil
}

// Verify validates idToken and returns the identity it asserts.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*auth.Identity, error) {
	if idToken == "" {
		return nil, oops.Code("GOOGLE_TOKEN_INVALID").Errorf("id token is empty")
	}

	var claims idClaims
	_, err := jwt.ParseWithClaims(idToken, &claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, oops.Code("GOOGLE_TOKEN_INVALID").With("operation", "parse id token").Wrap(err)
	}

	if !slices.Contains(v.cfg.Issuers, claims.Issuer) {
		return nil, oops.Code("GOOGLE_TOKEN_INVALID").With("issuer", claims.Issuer).Errorf("unexpected issuer")
	}
	if claims.Email == "" {
		return nil, oops.Code("GOOGLE_TOKEN_INVALID").Errorf("token carries no email")
	}
	if !claims.EmailVerified {
		return nil, oops.Code("GOOGLE_EMAIL_UNVERIFIED").Errorf("google has not verified the email")
	}

	return &auth.Identity{
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: bool(claims.EmailVerified),
		Subject:       claims.Subject,
	}, nil
}

// key returns the public key for kid, refreshing the key set when it is
// stale or does not know kid.
func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, oops.Code("GOOGLE_TOKEN_INVALID").Errorf("token has no kid header")
	}

	v.mu.RLock()
	k, ok := v.keys[kid]
	fetched := v.fetchedAt
	v.mu.RUnlock()
	age := v.now().Sub(fetched)

	if ok && age < v.cfg.CacheTTL {
		return k, nil
	}
	if !ok && !fetched.IsZero() && age < minRefreshInterval {
		return nil, oops.Code("GOOGLE_UNKNOWN_KEY").With("kid", kid).Errorf("signing key not found")
	}

	if err := v.refresh(ctx); err != nil {
		if ok {
			return k, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, oops.Code("GOOGLE_UNKNOWN_KEY").With("kid", kid).Errorf("signing key not found")
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return oops.Code("GOOGLE_KEYS_FETCH_FAILED").Wrap(err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return oops.Code("GOOGLE_KEYS_FETCH_FAILED").With("url", v.cfg.JWKSURL).Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return oops.Code("GOOGLE_KEYS_FETCH_FAILED").
			With("url", v.cfg.JWKSURL).
			With("status", resp.StatusCode).
			Errorf("unexpected status fetching keys")
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return oops.Code("GOOGLE_KEYS_DECODE_FAILED").Wrap(err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKey(k)
		if err != nil {
			return oops.Code("GOOGLE_KEYS_DECODE_FAILED").With("kid", k.Kid).Wrap(err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return oops.Code("GOOGLE_KEYS_DECODE_FAILED").Errorf("key set contains no RSA keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = v.now()
	v.mu.Unlock()
	return nil
}

func rsaKey(k jwk) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("invalid rsa key parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

var _ auth.IdentityVerifier = (*Verifier)(nil)
