package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
)

const (
	testSecret     = "0123456789abcdef0123456789abcdef"
	testPassphrase = "sabzi-mandi-2024"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	auth, err := NewAuthManager(testSecret, time.Hour, testPassphrase)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	return auth
}

func TestNewAuthManagerRequiresPassphrase(t *testing.T) {
	if _, err := NewAuthManager(testSecret, time.Hour, "  "); err == nil {
		t.Fatalf("expected empty passphrase to be rejected")
	}
}

func TestAuthManagerStoresPassphraseHash(t *testing.T) {
	auth := newTestAuth(t)
	if !isPasswordHash(auth.passphraseHash) || auth.passphraseHash == testPassphrase {
		t.Fatalf("expected passphrase to be stored as a bcrypt hash")
	}
}

func TestLoginIssuesOwnerToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Passphrase: testPassphrase})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != RoleOwner || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Subject != "owner" || actor.Role != RoleOwner {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPassphrase(t *testing.T) {
	auth := newTestAuth(t)
	if _, err := auth.Login(domain.LoginRequest{Passphrase: "wrong-pass"}); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{}); err == nil {
		t.Fatalf("expected empty passphrase to fail")
	}
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	auth := newTestAuth(t)

	other, err := NewAuthManager("ffffffffffffffffffffffffffffffff", time.Hour, testPassphrase)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	foreign, _ := other.Login(domain.LoginRequest{Passphrase: testPassphrase})
	if _, err := auth.ParseToken(foreign.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}

	expired, err := auth.sign("owner", RoleOwner, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "owner", Issuer: tokenIssuer})
	unsigned, _ := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if _, err := auth.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to fail")
	}
}

func TestLoginLimiterPerClient(t *testing.T) {
	limiter := newLoginLimiter(2)
	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected burst of 2 to be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected third attempt to be throttled")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected another client to have its own budget")
	}
}
