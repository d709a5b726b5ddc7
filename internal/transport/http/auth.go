package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trivia-live-service/internal/domain"
)

var errUnauthenticated = errors.New("unauthenticated")

// Claims are the token fields the identity provider issues.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator turns HS256 bearer tokens into domain identities.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for id. Used by tests and the dev token command.
func (a *Authenticator) Issue(who domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  who.DisplayName,
		Email: who.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   who.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates raw and returns the identity it carries.
func (a *Authenticator) Parse(raw string) (domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Identity{}, errUnauthenticated
	}
	if claims.Subject == "" {
		return domain.Identity{}, errUnauthenticated
	}
	name := claims.Name
	if name == "" && claims.Email != "" {
		name = strings.SplitN(claims.Email, "@", 2)[0]
	}
	return domain.Identity{ID: claims.Subject, DisplayName: name, Email: claims.Email}, nil
}

// Middleware rejects requests without a valid token. Browsers cannot set
// headers on WebSocket upgrades, so a token query parameter is accepted too.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "authorization required"})
			return
		}
		who, err := a.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), who)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type identityKey struct{}

func withIdentity(ctx context.Context, who domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, who)
}

// IdentityFrom returns the caller identity set by Middleware.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(domain.Identity)
	return who, ok
}
