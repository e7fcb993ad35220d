package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(test *testing.T, expiresAt time.Time) string {
	test.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		test.Fatalf("sign token: %v", err)
	}
	return token
}

func TestStaticServesLiveToken(test *testing.T) {
	test.Parallel()

	provider := NewStatic(signedToken(test, time.Now().Add(time.Hour)))
	token, ok := provider.CurrentToken(context.Background())
	if !ok || token == "" {
		test.Fatalf("live token reported absent")
	}
}

func TestStaticHidesExpiredToken(test *testing.T) {
	test.Parallel()

	provider := NewStatic(signedToken(test, time.Now().Add(-time.Hour)))
	if _, ok := provider.CurrentToken(context.Background()); ok {
		test.Fatalf("expired token reported present")
	}
}

func TestStaticTreatsOpaqueTokenAsLive(test *testing.T) {
	test.Parallel()

	provider := NewStatic("opaque-credential")
	if _, ok := provider.CurrentToken(context.Background()); !ok {
		test.Fatalf("opaque token reported absent")
	}
}

func TestStaticInvalidateDropsToken(test *testing.T) {
	test.Parallel()

	provider := NewStatic(signedToken(test, time.Now().Add(time.Hour)))
	if err := provider.Invalidate(context.Background()); err != nil {
		test.Fatalf("Invalidate: %v", err)
	}
	if _, ok := provider.CurrentToken(context.Background()); ok {
		test.Fatalf("token survived invalidation")
	}
	provider.Replace(signedToken(test, time.Now().Add(time.Hour)))
	if _, ok := provider.CurrentToken(context.Background()); !ok {
		test.Fatalf("replaced token reported absent")
	}
}

func TestFileRoundTrip(test *testing.T) {
	test.Parallel()

	path := filepath.Join(test.TempDir(), "credential")
	provider, err := NewFile(path)
	if err != nil {
		test.Fatalf("NewFile: %v", err)
	}
	if _, ok := provider.CurrentToken(context.Background()); ok {
		test.Fatalf("missing file reported a token")
	}

	live := signedToken(test, time.Now().Add(time.Hour))
	if err := provider.Store(live); err != nil {
		test.Fatalf("Store: %v", err)
	}
	token, ok := provider.CurrentToken(context.Background())
	if !ok || token != live {
		test.Fatalf("stored token not served back: %q", token)
	}

	if err := provider.Invalidate(context.Background()); err != nil {
		test.Fatalf("Invalidate: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		test.Fatalf("credential file survived invalidation: %v", err)
	}
	if err := provider.Invalidate(context.Background()); err != nil {
		test.Fatalf("second Invalidate: %v", err)
	}
}

func TestFileHidesExpiredToken(test *testing.T) {
	test.Parallel()

	path := filepath.Join(test.TempDir(), "credential")
	provider, err := NewFile(path)
	if err != nil {
		test.Fatalf("NewFile: %v", err)
	}
	if err := provider.Store(signedToken(test, time.Now().Add(-time.Hour))); err != nil {
		test.Fatalf("Store: %v", err)
	}
	if _, ok := provider.CurrentToken(context.Background()); ok {
		test.Fatalf("expired token reported present")
	}
}
