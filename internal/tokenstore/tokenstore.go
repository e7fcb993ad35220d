// Package tokenstore supplies bearer credentials to the cart sync engine.
// Both providers check the token's exp claim locally so an expired
// credential reads as absent instead of burning a remote round trip on a
// guaranteed 401.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Static holds one token in memory. Invalidate drops it for the rest of the
// process lifetime.
type Static struct {
	mu    sync.Mutex
	token string
}

// NewStatic returns a provider seeded with token.
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

func (static *Static) CurrentToken(context.Context) (string, bool) {
	static.mu.Lock()
	defer static.mu.Unlock()
	if static.token == "" || tokenExpired(static.token) {
		return "", false
	}
	return static.token, true
}

func (static *Static) Invalidate(context.Context) error {
	static.mu.Lock()
	defer static.mu.Unlock()
	static.token = ""
	return nil
}

// Replace installs a fresh token, e.g. after a new login.
func (static *Static) Replace(token string) {
	static.mu.Lock()
	defer static.mu.Unlock()
	static.token = strings.TrimSpace(token)
}

// File reads the token from disk on every call so a login performed by
// another process becomes visible without restarting. Invalidate removes the
// file.
type File struct {
	path string
}

// NewFile returns a provider backed by the file at path.
func NewFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("tokenstore: path is required")
	}
	return &File{path: path}, nil
}

func (file *File) CurrentToken(context.Context) (string, bool) {
	raw, err := os.ReadFile(file.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(raw))
	if token == "" || tokenExpired(token) {
		return "", false
	}
	return token, true
}

func (file *File) Invalidate(context.Context) error {
	if err := os.Remove(file.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tokenstore: remove credential: %w", err)
	}
	return nil
}

// Store writes a fresh token to disk with owner-only permissions.
func (file *File) Store(token string) error {
	if err := os.WriteFile(file.path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("tokenstore: write credential: %w", err)
	}
	return nil
}

// tokenExpired inspects the exp claim without verifying the signature; the
// server remains the authority and still rejects forged tokens. Opaque
// tokens carry no claim and are assumed live.
func tokenExpired(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
