// Package identity resolves bearer tokens to users. The booking engine never
// parses credentials itself; it only consumes the resolved User.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/barber-booking/internal/apperrors"
)

// Role is what a user may do in the shop.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProvider, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is an authenticated caller.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// ErrUnauthenticated is returned for missing, malformed or expired tokens.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Resolver maps a bearer token to a user.
type Resolver interface {
	ResolveUser(ctx context.Context, token string) (User, error)
}

// Claims carried by booking tokens; the subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HMAC-signed tokens issued by the auth service.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) ResolveUser(ctx context.Context, token string) (User, error) {
	if len(r.secret) == 0 {
		return User{}, ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return User{}, ErrUnauthenticated
	}
	role := Role(strings.ToLower(claims.Role))
	if role == "" {
		role = RoleClient
	}
	if claims.Subject == "" || !role.Valid() {
		return User{}, ErrUnauthenticated
	}
	return User{ID: claims.Subject, Role: role}, nil
}

// Sign issues a token for user. Used by tooling and tests.
func (r *JWTResolver) Sign(user User, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = user.ID
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: string(user.Role), RegisteredClaims: claims})
	return token.SignedString(r.secret)
}

// StaticResolver maps fixed tokens to users for local development and tests.
type StaticResolver struct {
	mu     sync.RWMutex
	tokens map[string]User
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{tokens: make(map[string]User)}
}

func (r *StaticResolver) Add(token string, user User) *StaticResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = user
	return r
}

func (r *StaticResolver) ResolveUser(ctx context.Context, token string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.tokens[strings.TrimSpace(token)]
	if !ok {
		return User{}, ErrUnauthenticated
	}
	return user, nil
}

// CanActOn reports whether actor may manage an appointment owned by clientID
// with providerID: the owning client, the assigned provider, or an admin.
func CanActOn(actor User, clientID, providerID string) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleProvider:
		return actor.ID != "" && actor.ID == providerID
	case RoleClient:
		return actor.ID != "" && actor.ID == clientID
	default:
		return false
	}
}

// RequireActor rejects an empty or role-less actor.
func RequireActor(op string, actor User) error {
	if strings.TrimSpace(actor.ID) == "" || !actor.Role.Valid() {
		return apperrors.PermissionDenied(op, "an authenticated caller is required")
	}
	return nil
}

type contextKey string

const userKey contextKey = "identityUser"

// WithUser stores the resolved user on ctx.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey).(User)
	return user, ok
}
