// Package auth is the session provider: it trades a name/password for
// a signed bearer token and resolves tokens back to a user id and
// role. The sync core treats it as opaque; everything else about
// identity lives here.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ldi/boardsync/internal/db"
	"github.com/ldi/boardsync/pkg/models"
)

// Session identifies an authenticated caller.
type Session struct {
	UserID string
	Name   string
	Role   models.Role
}

type sessionKey struct{}

// FromContext returns the session attached by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// WithSession attaches a session to a context. Exported for handler
// tests that bypass the middleware.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

const tokenTTL = 12 * time.Hour

// Provider issues and verifies session tokens against the user table.
type Provider struct {
	db     *db.DB
	secret []byte
}

func NewProvider(database *db.DB, secret string) *Provider {
	return &Provider{db: database, secret: []byte(secret)}
}

// Login verifies the credentials and returns a signed token plus the
// user it belongs to.
func (p *Provider) Login(ctx context.Context, name, password string) (string, *models.User, error) {
	u, err := p.db.GetUserByName(ctx, name)
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, fmt.Errorf("unknown user: %s", name)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["user_id"] = u.ID
	claims["name"] = u.Name
	claims["role"] = string(u.Role)
	claims["exp"] = time.Now().Add(tokenTTL).Unix()

	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, &u.User, nil
}

// Verify resolves a bearer token to a session.
func (p *Provider) Verify(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return nil, fmt.Errorf("token missing user id")
	}
	return &Session{UserID: userID, Name: name, Role: models.Role(role)}, nil
}

// Middleware attaches a session to the request context when a valid
// bearer token is present. It never rejects; handlers decide whether
// an absent session is a 401.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if s, err := p.Verify(token); err == nil {
				r = r.WithContext(WithSession(r.Context(), s))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// EventSource cannot set headers, so the stream endpoint accepts
	// the token as a query parameter.
	return r.URL.Query().Get("token")
}

// HashPassword produces a bcrypt hash for seeding users.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
