// Command issue-token mints an owner access token signed with the server's
// JWT secret, for local development and manual testing of the owner API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/config"
	"github.com/phrazzld/pagescan/internal/service/auth"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to ./config.yaml when present)")
	owner := flag.String("owner", "", "owner id to issue the token for (random when empty)")
	flag.Parse()

	if err := run(*configPath, *owner); err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, owner string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ownerID := uuid.New()
	if owner != "" {
		if ownerID, err = uuid.Parse(owner); err != nil {
			return fmt.Errorf("invalid owner id %q: %w", owner, err)
		}
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := jwtService.GenerateToken(context.Background(), ownerID)
	if err != nil {
		return err
	}

	fmt.Printf("Owner: %s\nToken: %s\n", ownerID, token)
	return nil
}
