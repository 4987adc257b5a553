// gen-jwt prints an HS256 token the server accepts. Usage:
//
//	go run ./scripts/gen-jwt [sub] [name]
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"todo-sync/internal/config"
	"todo-sync/internal/models"
)

func main() {
	config.LoadEnvFile(".env")
	secret := config.Get().JWTSecret
	if secret == "" {
		secret = "change-me"
	}

	sub, name := "ann@example.com", "Ann"
	if len(os.Args) > 1 {
		sub = os.Args[1]
	}
	if len(os.Args) > 2 {
		name = os.Args[2]
	}

	now := time.Now()
	claims := models.Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
