package httpapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
)

const (
	RoleOwner    = "owner"
	ownerSubject = "owner"
	tokenIssuer  = "rozanahisab"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager guards the ledger behind a single owner passphrase.
type AuthManager struct {
	secret         []byte
	tokenTTL       time.Duration
	passphraseHash string
	now            func() time.Time
}

type ownerClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, passphrase string) (*AuthManager, error) {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		return nil, errors.New("owner passphrase is required")
	}
	hashed, err := hashPassword(passphrase)
	if err != nil {
		return nil, err
	}
	return &AuthManager{
		secret:         []byte(secret),
		tokenTTL:       tokenTTL,
		passphraseHash: hashed,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	if !verifyPassword(a.passphraseHash, req.Passphrase) {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(ownerSubject, RoleOwner, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        RoleOwner,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ownerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Subject: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(subject, role string, expiresAt time.Time) (string, error) {
	claims := ownerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(strings.TrimSpace(input))) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

// loginLimiter hands each client its own token bucket.
type loginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	entryTTL time.Duration
	entries  map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(perMinute int) *loginLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &loginLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		entryTTL: 10 * time.Minute,
		entries:  make(map[string]*limiterEntry),
	}
}

func (l *loginLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop clients idle longer than entryTTL.
	for k, entry := range l.entries {
		if now.Sub(entry.lastSeen) > l.entryTTL {
			delete(l.entries, k)
		}
	}

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
