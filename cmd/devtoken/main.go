// Command devtoken mints session tokens accepted by the guard, for local development only.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/security"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	keyPath := flag.String("key", "", "PEM private key; its file name is used as kid")
	userID := flag.String("user", "", "principal id")
	role := flag.String("role", "user", "role claim (user or admin)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *keyPath == "" || strings.TrimSpace(*userID) == "" {
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatalf("read key: %v", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
	if err != nil {
		log.Fatalf("parse key: %v", err)
	}

	now := time.Now().UTC()
	claims := &security.SessionClaims{
		UserID:    strings.TrimSpace(*userID),
		Role:      *role,
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWT.Issuer,
			Audience:  jwt.ClaimStrings{cfg.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	}

	kid := strings.TrimSuffix(filepath.Base(*keyPath), filepath.Ext(*keyPath))
	token, err := security.SignSessionClaims(key, kid, claims)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(token)
}
