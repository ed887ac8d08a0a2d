package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"edutalks/internal/auth"
	"edutalks/internal/config"
	"edutalks/internal/rbac"
)

// runToken issues a local API token pair for the presentation shell:
//
//	callagent token -user <id> [-role learner|instructor|admin]
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to embed in the token")
	role := fs.String("role", rbac.RoleLearner, "role to embed in the token")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "token: -user is required")
		return 2
	}
	switch *role {
	case rbac.RoleLearner, rbac.RoleInstructor, rbac.RoleAdmin:
	default:
		fmt.Fprintf(os.Stderr, "token: unknown role %q\n", *role)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	pair, err := m.IssuePair(time.Now(), *userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pair); err != nil {
		return 1
	}
	return 0
}
