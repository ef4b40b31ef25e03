package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/andika/product-import/internal/config"
	"github.com/andika/product-import/internal/domain"
	"github.com/andika/product-import/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		email    = flag.String("email", "", "User email (required)")
		name     = flag.String("name", "User", "User name")
		password = flag.String("password", "", "Password (random when omitted)")
	)
	flag.Parse()

	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	exists, err := users.ExistsByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("Failed to check existing user: %v", err)
	}
	if exists {
		log.Fatalf("A user with email %s already exists", *email)
	}

	plain := *password
	if plain == "" {
		plain, err = randomPassword(12)
		if err != nil {
			log.Fatalf("Failed to generate password: %v", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         *name,
		Email:        *email,
		PasswordHash: string(hash),
		APIToken:     uuid.New().String(),
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Println("User created successfully")
	fmt.Println("-----------------------------------")
	fmt.Printf("Email    : %s\n", user.Email)
	fmt.Printf("Password : %s\n", plain)
	fmt.Printf("Token    : %s\n", user.APIToken)
	fmt.Println("-----------------------------------")
	fmt.Println("Save this token securely. It will not be shown again.")
}

// randomPassword returns a URL-safe random string of roughly n characters.
func randomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}
