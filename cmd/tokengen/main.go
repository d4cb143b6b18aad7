// Command tokengen issues bearer tokens for local development. Identity comes
// from an upstream provider in production; this signs the same claims with the
// configured key so the API can be exercised directly.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"classattend/internal/auth"
	"classattend/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := config.Load()

	var sub auth.Subject
	flagSet := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flagSet.StringVar(&sub.ID, "id", "", "subject id (required)")
	flagSet.StringVar(&sub.Role, "role", auth.RoleStudent, "role: instructor or student")
	flagSet.StringVar(&sub.Name, "name", "", "display name")
	flagSet.StringVar(&sub.Email, "email", "", "email address")
	ttl := flagSet.Duration("ttl", cfg.AccessTTL, "access token lifetime")
	asJSON := flagSet.Bool("json", false, "print the full token pair as JSON")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if sub.ID == "" {
		return fmt.Errorf("--id is required")
	}
	if sub.Role != auth.RoleInstructor && sub.Role != auth.RoleStudent {
		return fmt.Errorf("--role must be %q or %q", auth.RoleInstructor, auth.RoleStudent)
	}

	pair, err := auth.Issue(sub, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl, cfg.RefreshTTL)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_at":    pair.AccessExp.Unix(),
		})
	}
	fmt.Println(pair.AccessToken)
	return nil
}
