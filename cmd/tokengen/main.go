// tokengen mints reader JWTs for local development and testing.
//
// Usage:
//
//	tokengen -secret dev-secret -user reader-1 [-role admin] [-ttl 24h]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/storyland-ai/storyland/internal/auth"
)

func main() {
	var (
		secret = flag.String("secret", os.Getenv("STORYLAND_SERVER_AUTH_SECRET"), "JWT signing secret")
		user   = flag.String("user", "", "reader ID to embed as the token subject")
		role   = flag.String("role", auth.RoleReader, "role claim (reader or admin)")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *secret == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "tokengen: -secret and -user are required")
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.NewJWTManager(*secret, *ttl).Generate(*user, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
