// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// signingKey and verifyKey hold the ed25519 pair used for JWTs. Keys are
// generated fresh at startup unless InitFromPath loads a persisted pair, so
// by default tokens do not survive a restart.
var (
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey

	// TokenTTL is how long issued tokens stay valid. Zero means no
	// expiry claim.
	TokenTTL time.Duration
)

// parseTokenTTL reads TOKEN_EXPIRE_TIME ("never", "0", "" disable expiry).
func parseTokenTTL() {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "0" || raw == "never" {
		TokenTTL = 0
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("failed to parse TOKEN_EXPIRE_TIME: %v", err)
	}
	TokenTTL = d
}

// Init generates a fresh ed25519 key pair at runtime and reads the token
// expiry from the environment.
func Init() {
	var err error
	verifyKey, signingKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		log.Fatalf("failed to generate ed25519 key pair: %v", err)
	}
	parseTokenTTL()
}

// InitFromPath loads a persisted ed25519 key pair instead of generating
// one, so tokens stay valid across restarts.
func InitFromPath(privatePath, publicPath string) error {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	signingKey = ed25519.PrivateKey(priv)
	verifyKey = ed25519.PublicKey(pub)
	parseTokenTTL()
	return nil
}

// CreateJWT issues a signed token whose subject is the user id.
func CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{"sub": userID}
	if TokenTTL > 0 {
		claims["exp"] = time.Now().Add(TokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(signingKey)
}

// AuthenticateJWT verifies a token string and returns its subject, the user
// id it was issued for.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return verifyKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
