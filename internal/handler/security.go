package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/engage-orders/internal/domain/auth"
)

// APIKeyHeader carries server-to-server API keys.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// Claims is the bearer token payload. Subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves the request principal from a bearer token or an
// API key.
type Authenticator struct {
	apikeys   auth.Repository
	pepper    []byte
	jwtSecret []byte
	now       func() time.Time
}

// NewAuthenticator creates an Authenticator. API keys are looked up by their
// HMAC-SHA256 under pepper; bearer tokens are HS256 signed with jwtSecret.
func NewAuthenticator(apikeys auth.Repository, pepper, jwtSecret []byte) *Authenticator {
	return &Authenticator{
		apikeys:   apikeys,
		pepper:    pepper,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// IssueToken signs a bearer token for p valid for ttl.
func (a *Authenticator) IssueToken(p auth.Principal, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Authenticate returns the principal of r.
func (a *Authenticator) Authenticate(r *http.Request) (auth.Principal, error) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return a.fromToken(strings.TrimSpace(token))
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return a.fromAPIKey(r, key)
	}
	return auth.Principal{}, errUnauthorized
}

func (a *Authenticator) fromToken(raw string) (auth.Principal, error) {
	if len(a.jwtSecret) == 0 || raw == "" {
		return auth.Principal{}, errUnauthorized
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return auth.Principal{}, errUnauthorized
	}

	p := auth.Principal{UserID: claims.Subject, Role: auth.Role(claims.Role)}
	if p.UserID == "" || !p.Role.IsValid() {
		return auth.Principal{}, errUnauthorized
	}
	return p, nil
}

func (a *Authenticator) fromAPIKey(r *http.Request, key string) (auth.Principal, error) {
	hexHash := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		if !errors.Is(err, auth.ErrKeyNotFound) {
			zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
		}
		return auth.Principal{}, errUnauthorized
	}

	// The repository matched on the hash; compare anyway in constant time.
	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Principal{}, errUnauthorized
	}
	return info.Principal(), nil
}

// Require rejects unauthenticated requests and stores the principal in the
// request context.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator admits only operators. It must run after Require.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if !p.IsOperator() {
			writeFailure(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
