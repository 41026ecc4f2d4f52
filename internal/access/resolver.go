package access

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt"
)

// Resolver turns a bearer credential into an access context.
type Resolver interface {
	Resolve(ctx context.Context, bearer string) (Context, error)
}

type claims struct {
	Roles []string `json:"roles"`
	jwt.StandardClaims
}

// JWTResolver validates HS256 tokens whose subject is the user id.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(_ context.Context, bearer string) (Context, error) {
	raw := strings.TrimSpace(bearer)
	if raw == "" || len(r.secret) == 0 {
		return Context{}, ErrUnauthenticated
	}

	var parsed claims
	token, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return Context{}, ErrUnauthenticated
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return Context{}, ErrUnauthenticated
	}

	roles := make([]string, 0, len(parsed.Roles))
	for _, role := range parsed.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = append(roles, RoleMember)
	}
	return Context{UserID: subject, Roles: roles}, nil
}

// IssueToken signs a token for subject, used by tooling and tests.
func (r *JWTResolver) IssueToken(subject string, roles []string, expiresAt int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		Roles: roles,
		StandardClaims: jwt.StandardClaims{
			Subject:   subject,
			ExpiresAt: expiresAt,
		},
	})
	return token.SignedString(r.secret)
}
