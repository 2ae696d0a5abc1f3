package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"CallCoordinator/internal/entity/user"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var ErrAuthentication = errors.New("authentication failed")

const cookieName = "session-token"

// Claims carried by a coordinator credential. Subject is the user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NameResolver looks up the display name for a user id.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type JWTAuthenticator struct {
	secret []byte
	names  NameResolver
	logger zerolog.Logger
}

func NewJWTAuthenticator(secret string, names NameResolver, logger zerolog.Logger) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		names:  names,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Authenticate resolves an HMAC-signed token to an identity. Every failure wraps ErrAuthentication.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, credential string) (user.Identity, error) {
	if credential == "" {
		return user.Identity{}, fmt.Errorf("%w: missing credential", ErrAuthentication)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	if claims.Subject == "" {
		return user.Identity{}, fmt.Errorf("%w: token has no subject", ErrAuthentication)
	}
	role, err := user.ParseRole(claims.Role)
	if err != nil {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	id := user.Identity{UserID: claims.Subject, Name: claims.Name, Role: role}
	if id.Name == "" && a.names != nil {
		name, err := a.names.DisplayName(ctx, id.UserID)
		if err != nil {
			a.logger.Debug().Err(err).Str("user_id", id.UserID).Msg("display name lookup failed")
		}
		id.Name = name
	}
	if id.Name == "" {
		id.Name = id.UserID
	}
	return id, nil
}

// CredentialFromRequest reads the bearer token from the Authorization header,
// the token query parameter or the session cookie, in that order.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
