// Command provision-site creates the internal account of a site and links
// the site host to it. A fresh RSA key pair is generated for the account.
//
// Usage:
//
//	go run ./cmd/provision-site --host blog.example.com --name "My Blog"
package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"Fedipub/internal/config"
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/result"
	"Fedipub/internal/db/migrations"
	postgresRepo "Fedipub/internal/db/postgres"
)

func main() {
	var host, name, bio string
	cmd := &cobra.Command{
		Use:          "provision-site",
		Short:        "Create the internal account of a site",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := cfg.NewLogger()

			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = db.Close() }()
			if err := migrations.Up(db); err != nil {
				return err
			}

			ctx := cmd.Context()
			repo := postgresRepo.NewAccountRepository(db, nil, logger)

			existing, err := repo.GetBySite(ctx, host)
			if err != nil {
				return err
			}
			if !result.IsError(existing) {
				acc := result.GetValue(existing)
				_, _ = fmt.Fprintf(os.Stdout, "site %s already provisioned as %s (%s)\n", host, acc.Handle(), acc.ApID())
				return nil
			}
			proceed := func() error { return nil }
			if err := accounts.MatchSiteLookupError(result.GetError(existing),
				proceed,
				proceed,
				func() error { return fmt.Errorf("site %s has more than one account", host) },
			); err != nil {
				return err
			}

			keys, err := accounts.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}
			if name == "" {
				name = host
			}
			acc, err := accounts.NewInternalForSite(host, accounts.Profile{Username: "index", Name: name, Bio: bio}, keys)
			if err != nil {
				return err
			}
			if err := repo.Save(ctx, acc); err != nil {
				return err
			}
			if err := repo.CreateSite(ctx, host, acc); err != nil {
				return err
			}

			thumbprint, err := keys.Thumbprint()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "provisioned %s\n  actor: %s\n  key thumbprint: %s\n", acc.Handle(), acc.ApID(), thumbprint)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Site host name (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the host)")
	cmd.Flags().StringVar(&bio, "bio", "", "Profile bio")
	_ = cmd.MarkFlagRequired("host")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
