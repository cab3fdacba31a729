// Package auth issues and verifies bearer tokens and carries the
// authenticated identity through the request context. Tokens are read from
// the Authorization header ("Bearer <token>") or, as a fallback, from the
// auth cookie.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)
}

// Auth verifies tokens and attaches identities to requests.
type Auth struct {
	// db is used to confirm that the token subject still exists.
	db userKeeper

	// authCookieName is the name of the cookie that may carry the JWT.
	authCookieName string

	// signingSecretKey is the HMAC key used to sign and verify JWTs.
	signingSecretKey []byte

	tokenTTL time.Duration
}

// Claims represents the JWT claims used by the system.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"id"`
	Username string `json:"username"`
}

// Identity is the authenticated actor of a single request.
type Identity struct {
	UserID   string
	Username string
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// IdentityKey is the context key of the authenticated Identity.
const IdentityKey ContextKey = "identity"

// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens.
var ErrInvalidToken = errors.New("token invalid")

// New creates a new Auth with the given user lookup, cookie name, signing
// secret and token lifetime. A non-positive ttl issues tokens without
// expiry.
func New(
	db userKeeper,
	authCookieName string,
	signingSecretKey []byte,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		db:               db,
		authCookieName:   authCookieName,
		signingSecretKey: signingSecretKey,
		tokenTTL:         tokenTTL,
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext returns the identity attached by AuthenticateUser.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}

	return identity, true
}

// BuildToken issues a signed token for usr.
func (a *Auth) BuildToken(usr *user.User) (string, error) {
	claims := &Claims{
		UserID:   usr.ID,
		Username: usr.Username,
	}
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	if a.tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(a.tokenTTL))
	}

	return a.BuildJWTString(claims)
}

// BuildJWTString signs claims with HS256.
func (a *Auth) BuildJWTString(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, *claims)

	tokenString, err := token.SignedString(a.signingSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetIdentityFromToken verifies tokenString and returns the identity it
// carries. The optional "Bearer " prefix is stripped.
func (a *Auth) GetIdentityFromToken(tokenString string) (Identity, error) {
	tokenString = stripBearer(tokenString)
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingSecretKey, nil
		},
	)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// identify resolves the request token into an Identity. A request without
// a token yields the zero Identity. ErrInvalidToken covers bad tokens and
// tokens whose user no longer exists.
func (a *Auth) identify(request *http.Request) (Identity, error) {
	tokenString := a.getTokenStringFromAuthorizationHeaderOrCookie(request)
	if tokenString == "" {
		return Identity{}, nil
	}

	identity, err := a.GetIdentityFromToken(tokenString)
	if err != nil {
		return Identity{}, err
	}

	usr, err := a.db.GetUserByID(request.Context(), identity.UserID, nil)
	if errors.Is(err, models.ErrRecordNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("in internal/auth/auth.go/identify(): error while `a.db.GetUserByID()` calling: %w", err)
	}
	identity.Username = usr.Username

	return identity, nil
}

// AuthenticateUser is an HTTP middleware that resolves the bearer token, if
// any, into an Identity stored in the request context. Requests without a
// token pass through anonymously; requests with an invalid token, or a token
// whose user no longer exists, are rejected with 401.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		identity, err := a.identify(request)
		if errors.Is(err, ErrInvalidToken) {
			logger.Log.Debugln("Error calling the `a.identify()`: ", zap.Error(err))
			writeError(response, http.StatusUnauthorized, "token invalid")
			return
		}
		if err != nil {
			logger.Log.Debugln("Error calling the `a.identify()`: ", zap.Error(err))
			writeError(response, http.StatusInternalServerError, "internal server error")
			return
		}
		if identity.UserID == "" {
			h.ServeHTTP(response, request)
			return
		}

		h.ServeHTTP(response, request.WithContext(WithIdentity(request.Context(), identity)))
	}

	return http.HandlerFunc(middleware)
}

// IdentifyUserIfValid attaches the identity of a valid token and lets every
// other request through anonymously, including requests whose token is
// invalid.
func (a *Auth) IdentifyUserIfValid(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		identity, err := a.identify(request)
		if err != nil || identity.UserID == "" {
			if err != nil {
				logger.Log.Debugln("Ignoring the token, `a.identify()` failed: ", zap.Error(err))
			}
			h.ServeHTTP(response, request)
			return
		}

		h.ServeHTTP(response, request.WithContext(WithIdentity(request.Context(), identity)))
	}

	return http.HandlerFunc(middleware)
}

// RequireIdentity rejects requests that AuthenticateUser left anonymous.
func (a *Auth) RequireIdentity(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if _, ok := IdentityFromContext(request.Context()); !ok {
			writeError(response, http.StatusUnauthorized, "token missing")
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

func (a *Auth) getTokenStringFromAuthorizationHeaderOrCookie(request *http.Request) string {
	tokenString := request.Header.Get("Authorization")
	if tokenString != "" {
		return tokenString
	}
	if a.authCookieName == "" {
		return ""
	}
	cookie, err := request.Cookie(a.authCookieName)
	if err == nil {
		tokenString = cookie.Value
	}

	return tokenString
}

func stripBearer(tokenString string) string {
	tokenString = strings.TrimSpace(tokenString)
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "bearer ") {
		return strings.TrimSpace(tokenString[7:])
	}

	return tokenString
}

func writeError(response http.ResponseWriter, status int, message string) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(models.ErrorResponse{Error: message}); err != nil {
		logger.Log.Debugln("Error encoding the error response: ", zap.Error(err))
	}
}
