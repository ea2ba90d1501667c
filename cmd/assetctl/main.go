// Command assetctl is an operator tool for password hashes and tokens.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "hash-password":
		err = runHashPassword(os.Args[2:])
	case "issue-token":
		err = runIssueToken(os.Args[2:])
	case "verify-token":
		err = runVerifyToken(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runHashPassword(args []string) error {
	if len(args) != 1 {
		usage()
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	id := fs.String("id", "", "user id (sub)")
	role := fs.String("role", string(auth.RoleUser), "ADMIN, MANAGER or USER")
	dept := fs.String("department", "", "department claim")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}
	codec, err := codecFromConfig(*ttl)
	if err != nil {
		return err
	}
	token, exp, err := codec.Issue(auth.Identity{ID: *id, Role: string(r), Department: *dept})
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}

func runVerifyToken(args []string) error {
	if len(args) != 1 {
		usage()
	}
	codec, err := codecFromConfig(0)
	if err != nil {
		return err
	}
	id, err := codec.Verify(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(id)
}

func codecFromConfig(ttl time.Duration) (*auth.Codec, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	return auth.NewCodec(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTokenTTL(ttl))
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n  %[1]s hash-password <password>\n  %[1]s issue-token -id <user> [-role R] [-department D] [-ttl 1h]\n  %[1]s verify-token <token>\n", os.Args[0])
	os.Exit(2)
}
