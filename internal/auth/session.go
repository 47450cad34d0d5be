package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionTTL = 30 * 24 * time.Hour

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Manager issues HS256 session tokens for accounts held in an accountStore.
// Logged-out token ids are remembered until their expiry.
type Manager struct {
	secret     []byte
	sessionTTL time.Duration
	accounts   accountStore
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

func newManager(secret string, accounts accountStore) *Manager {
	if secret == "" {
		secret = uuid.NewString()
		log.Printf("[Auth] no auth secret configured, tokens will not survive a restart")
	}
	return &Manager{
		secret:     []byte(secret),
		sessionTTL: defaultSessionTTL,
		accounts:   accounts,
		now:        time.Now,
		revoked:    make(map[string]time.Time),
	}
}

// NewManager returns an in-memory Manager.
func NewManager(secret string) *Manager {
	return newManager(secret, newMemoryAccounts())
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	trimmed := strings.TrimSpace(username)
	if !usernamePattern.MatchString(trimmed) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func (m *Manager) issueToken(accountID uint64, username string) (string, error) {
	now := m.now()
	claims := gojwt.MapClaims{
		"sub": username,
		"uid": accountID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(m.sessionTTL).Unix(),
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) parseToken(raw string) (gojwt.MapClaims, bool) {
	if raw == "" {
		return nil, false
	}
	token, err := gojwt.Parse(raw, func(token *gojwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, gojwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return nil, false
	}
	claims, ok := token.Claims.(gojwt.MapClaims)
	return claims, ok
}

// Register creates a new account and returns an authenticated session token.
func (m *Manager) Register(username, password string) (accountID uint64, sessionToken string, err error) {
	if err = validateUsername(username); err != nil {
		return 0, "", err
	}
	if err = validatePassword(password); err != nil {
		return 0, "", err
	}

	normalized := normalizeUsername(username)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accountID, err = m.accounts.create(ctx, normalized, passwordHash)
	if err != nil {
		return 0, "", err
	}

	sessionToken, err = m.issueToken(accountID, normalized)
	if err != nil {
		return 0, "", err
	}
	return accountID, sessionToken, nil
}

// Login validates account credentials and returns a fresh authenticated session.
func (m *Manager) Login(username, password string) (accountID uint64, sessionToken string, err error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return 0, "", ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	profile, ok, err := m.accounts.byUsername(ctx, normalized)
	if err != nil {
		return 0, "", err
	}
	if !ok || len(profile.PasswordHash) == 0 {
		return 0, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(profile.PasswordHash, []byte(password)) != nil {
		return 0, "", ErrInvalidCredentials
	}
	if err := m.accounts.touchLogin(ctx, profile.AccountID); err != nil {
		log.Printf("[Auth] update last login failed: account=%d err=%v", profile.AccountID, err)
	}

	sessionToken, err = m.issueToken(profile.AccountID, profile.Username)
	if err != nil {
		return 0, "", err
	}
	return profile.AccountID, sessionToken, nil
}

// ResolveSession validates a session token and returns its account.
func (m *Manager) ResolveSession(token string) (accountID uint64, username string, ok bool) {
	claims, ok := m.parseToken(token)
	if !ok {
		return 0, "", false
	}
	jti, _ := claims["jti"].(string)
	username, _ = claims["sub"].(string)
	if jti == "" || username == "" {
		return 0, "", false
	}

	m.mu.Lock()
	_, revoked := m.revoked[jti]
	m.mu.Unlock()
	if revoked {
		return 0, "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	profile, exists, err := m.accounts.byUsername(ctx, username)
	if err != nil || !exists {
		return 0, "", false
	}
	return profile.AccountID, profile.Username, true
}

// Logout invalidates a session token.
func (m *Manager) Logout(token string) {
	claims, ok := m.parseToken(token)
	if !ok {
		return
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return
	}
	expiry := m.now().Add(m.sessionTTL)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, id)
		}
	}
	m.revoked[jti] = expiry
}

func (m *Manager) Close() error {
	return m.accounts.close()
}
