package cartserver

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const authUserKey = "auth_user_id"

// otpRegistry keeps in-flight login codes in memory. A code is bound to one
// phone number and expires after the configured TTL.
type otpRegistry struct {
	mu    sync.Mutex
	ttl   time.Duration
	codes map[string]issuedCode
}

type issuedCode struct {
	code      string
	expiresAt time.Time
}

func newOTPRegistry(ttl time.Duration) *otpRegistry {
	return &otpRegistry{
		ttl:   ttl,
		codes: make(map[string]issuedCode),
	}
}

func (registry *otpRegistry) issue(phone string) (string, error) {
	upper := big.NewInt(1000000)
	drawn, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("draw otp: %w", err)
	}
	code := fmt.Sprintf("%06d", drawn.Int64())

	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.codes[phone] = issuedCode{
		code:      code,
		expiresAt: time.Now().UTC().Add(registry.ttl),
	}
	return code, nil
}

// redeem consumes the code for phone. A code redeems at most once.
func (registry *otpRegistry) redeem(phone string, code string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	issued, ok := registry.codes[phone]
	if !ok {
		return false
	}
	if time.Now().UTC().After(issued.expiresAt) {
		delete(registry.codes, phone)
		return false
	}
	if issued.code != code {
		return false
	}
	delete(registry.codes, phone)
	return true
}

// tokenIssuer mints and verifies the HS256 bearer tokens the cart endpoints
// require.
type tokenIssuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func newTokenIssuer(cfg Config) *tokenIssuer {
	return &tokenIssuer{
		signingKey: []byte(cfg.TokenSigningKey),
		issuer:     cfg.TokenIssuer,
		ttl:        cfg.TokenTTL,
	}
}

func (issuer *tokenIssuer) mint(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(issuer.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(issuer.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (issuer *tokenIssuer) verify(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return issuer.signingKey, nil
	}, jwt.WithIssuer(issuer.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("token carries no subject")
	}
	return claims.Subject, nil
}

// bearerMiddleware rejects requests without a valid bearer token and stashes
// the authenticated user id on the gin context.
func bearerMiddleware(issuer *tokenIssuer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, failureResponse("missing bearer token"))
			return
		}
		userID, err := issuer.verify(strings.TrimSpace(token))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, failureResponse("invalid bearer token"))
			return
		}
		ctx.Set(authUserKey, userID)
		ctx.Next()
	}
}

func authenticatedUser(ctx *gin.Context) string {
	value, ok := ctx.Get(authUserKey)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
