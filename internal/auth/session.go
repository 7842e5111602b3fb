// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// privateKey and publicKey sign and verify session tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenTTL is how long issued tokens stay valid. Overridable with the
	// TOKEN_EXPIRE_TIME env var (a Go duration, or "never" for no expiry).
	TokenTTL = 30 * 24 * time.Hour
)

func parseTokenTTL() error {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	switch duration {
	case "":
		return nil
	case "never", "0":
		TokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		return fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
	}
	TokenTTL = d
	return nil
}

// Init generates a fresh ed25519 key pair at runtime. Tokens do not survive a
// restart, matching the ephemeral-session model of the rest of the server.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	if err := parseTokenTTL(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// InitFromPath reads ed25519 private/public keys from files so tokens stay
// valid across restarts.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return parseTokenTTL()
}

// CreateToken mints a signed session token with "sub" = userID and a fresh
// "jti". The jti is returned so the account store can track (and revoke) the
// session server-side.
func CreateToken(userID string) (token string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": jti,
	}
	if TokenTTL > 0 {
		expiresAt = time.Now().Add(TokenTTL)
		claims["exp"] = expiresAt.Unix()
	}

	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token, err = t.SignedString(privateKey)
	return token, jti, expiresAt, err
}

// AuthenticateToken verifies a token string and returns its subject and jti.
func AuthenticateToken(tokenString string) (userID string, jti string, err error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid jwt claims")
	}
	userID, ok = claims["sub"].(string)
	if !ok {
		return "", "", fmt.Errorf("missing sub in jwt")
	}
	jti, ok = claims["jti"].(string)
	if !ok {
		return "", "", fmt.Errorf("missing jti in jwt")
	}
	return userID, jti, nil
}
