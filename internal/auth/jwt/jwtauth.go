// Package jwt issues and verifies the bearer tokens of ticket buyers and
// admins. The subject claim is the user id.
package jwt

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

const (
	RoleAdmin = "admin"
	roleClaim = "role"
)

type Config struct {
	Secret   string        `mapstructure:"jwt_secret"`
	TokenTTL time.Duration `mapstructure:"jwt_ttl"`
}

// Identity is the verified caller of a request.
type Identity struct {
	UserId string
	Admin  bool
}

type ctxKey struct{}

func New(c *Config) (*jwtauth.JWTAuth, error) {
	if c.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return jwtauth.New("HS256", []byte(c.Secret), nil), nil
}

// VerifyToken checks the signature and expiry of token and returns its caller.
func VerifyToken(jwtAuth *jwtauth.JWTAuth, token string) (Identity, error) {
	t, err := jwtauth.VerifyToken(jwtAuth, token)
	if err != nil {
		return Identity{}, err
	}
	if t.Subject() == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	role, _ := t.PrivateClaims()[roleClaim].(string)
	return Identity{
		UserId: t.Subject(),
		Admin:  role == RoleAdmin,
	}, nil
}

// NewToken creates a JWT for userId that expires after ttl.
func NewToken(jwtAuth *jwtauth.JWTAuth, ttl time.Duration, userId string, admin bool) (string, error) {
	if userId == "" {
		return "", fmt.Errorf("user id is required")
	}
	claims := map[string]interface{}{
		"sub": userId,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if admin {
		claims[roleClaim] = RoleAdmin
	}
	_, ts, err := jwtAuth.Encode(claims)
	if err != nil {
		return "", err
	}
	return ts, nil
}

// Authenticate verifies the bearer token of every request and stores the
// caller in the request context. Requests without a valid token go to fail.
func Authenticate(jwtAuth *jwtauth.JWTAuth, fail func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwtauth.TokenFromHeader(r)
			if token == "" {
				fail(w, r, fmt.Errorf("no token found"))
				return
			}
			id, err := VerifyToken(jwtAuth, token)
			if err != nil {
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
