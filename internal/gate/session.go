package gate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"alertdesk/internal/clock"
	"alertdesk/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "alertdesk"

// ErrInvalidCredentials is returned for unknown users or wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// SessionClaims identifies an authenticated operator.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// Authenticator checks request credentials and issues sessions.
// Without a secret any truthy cookie value authenticates; with a secret the
// cookie (or a Bearer header on API paths) must be a signed HS256 token.
type Authenticator struct {
	cookieName string
	secret     []byte
	ttl        time.Duration
	secure     bool
	users      map[string]string
	clock      clock.Clock
}

// NewAuthenticator builds an authenticator from gate settings.
// Params: gate config and clock for token timestamps (nil uses system time).
// Returns: authenticator.
func NewAuthenticator(cfg config.GateConfig, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	users := make(map[string]string, len(cfg.Admin))
	for _, user := range cfg.Admin {
		users[user.Username] = user.PasswordHash
	}
	return &Authenticator{
		cookieName: cfg.CookieName,
		secret:     []byte(cfg.SessionSecret),
		ttl:        time.Duration(cfg.SessionTTLSec) * time.Second,
		secure:     cfg.SecureCookie,
		users:      users,
		clock:      clk,
	}
}

// Signed reports whether sessions are signed tokens.
func (a *Authenticator) Signed() bool {
	return len(a.secret) > 0
}

// Authenticated reports whether the request carries a valid credential for the class.
func (a *Authenticator) Authenticated(request *http.Request, class Class) bool {
	if cookie, err := request.Cookie(a.cookieName); err == nil && a.validValue(cookie.Value) {
		return true
	}
	if class != ClassProtectedAPI || !a.Signed() {
		return false
	}
	header := request.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	_, err := a.Verify(strings.TrimSpace(token))
	return err == nil
}

func (a *Authenticator) validValue(value string) bool {
	if !a.Signed() {
		return truthy(value)
	}
	_, err := a.Verify(value)
	return err == nil
}

// truthy matches the unsigned cookie semantics: set and not an explicit false.
func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}

// Login checks a username/password pair against configured bcrypt hashes.
// Returns: ErrInvalidCredentials on mismatch.
func (a *Authenticator) Login(username, password string) error {
	hash, ok := a.users[username]
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Issue creates a session cookie value for the user.
// Returns: signed token with expiry when a secret is set, otherwise "true".
func (a *Authenticator) Issue(username string) (string, time.Time, error) {
	now := a.clock.Now()
	expires := now.Add(a.ttl)
	if !a.Signed() {
		return "true", expires, nil
	}
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a session token.
// Returns: claims or a parse/validation error.
func (a *Authenticator) Verify(token string) (*SessionClaims, error) {
	if !a.Signed() {
		return nil, errors.New("session signing disabled")
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// SessionCookie builds the cookie carrying a session value.
func (a *Authenticator) SessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds an expired cookie that removes the session.
func (a *Authenticator) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
