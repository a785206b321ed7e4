// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const issuer = "murlan"

var (
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey

	// tokenTTL of zero means tokens never expire.
	tokenTTL time.Duration
)

func parseTokenTTL() {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	switch raw {
	case "", "0", "never":
		tokenTTL = 0
	default:
		d, err := time.ParseDuration(raw)
		if err != nil {
			logrus.Fatalf("failed to parse TOKEN_EXPIRE_TIME: %v", err)
		}
		tokenTTL = d
	}
}

// Init generates a fresh ed25519 key pair at runtime. Sessions do not
// survive a restart; clients re-authenticate.
func Init() {
	var err error
	verifyKey, signingKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		logrus.Fatalf("failed to generate ed25519 key pair: %v", err)
	}
	parseTokenTTL()
}

// InitFromPath loads a persistent ed25519 key pair so tokens stay valid
// across restarts.
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
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(tokenTTL))
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(signingKey)
}

// AuthenticateJWT verifies a token and returns its subject (the user id).
func AuthenticateJWT(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (interface{}, error) { return verifyKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return claims.Subject, nil
}
