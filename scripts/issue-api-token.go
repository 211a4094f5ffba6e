package main

import (
	"fmt"
	"os"

	"github.com/openclaw/deviceauth-go/internal/util"
)

// Prints a fresh API token with the hash and encrypted columns for accounts.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: ENCRYPTION_KEY=<hex> go run scripts/issue-api-token.go <account-id>\n")
		os.Exit(1)
	}

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		fmt.Fprintf(os.Stderr, "Error: ENCRYPTION_KEY is not set\n")
		os.Exit(1)
	}

	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	encrypted, err := util.Encrypt(key, token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token: %s\n\n", token)
	fmt.Printf("UPDATE accounts SET api_token_hash = '%s', api_token_encrypted = '%s', updated_at = NOW() WHERE id = '%s';\n",
		util.HashToken(token), encrypted, os.Args[1])
}
