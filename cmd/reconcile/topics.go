package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Fedipub/internal/activitypub"
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/topics"
	postgresRepo "Fedipub/internal/db/postgres"
)

func init() {
	var (
		catalogPath string
		sourceURL   string
		maxAccounts int
	)
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Sync topic account rankings with the curation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if catalogPath == "" {
				catalogPath = cfg.TopicCatalogPath
			}
			if sourceURL == "" {
				sourceURL = cfg.TopicSourceURL
			}
			if sourceURL == "" {
				return errors.New("--source or FEDIPUB_TOPIC_SOURCE_URL is required")
			}
			if maxAccounts <= 0 {
				maxAccounts = cfg.TopicMaxAccounts
			}

			catalog, err := topics.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}

			resolver := activitypub.NewResolver(activitypub.Config{
				UserAgent:         cfg.UserAgent,
				Timeout:           cfg.HTTPTimeout,
				CacheSize:         cfg.ActorCacheSize,
				CacheTTL:          cfg.ActorCacheTTL,
				RequestsPerSecond: cfg.ActorFetchRate,
			}, logger)
			accountRepo := postgresRepo.NewAccountRepository(db, nil, logger)
			source := topics.NewHTTPSource(topics.HTTPSourceConfig{
				BaseURL:   sourceURL,
				UserAgent: cfg.UserAgent,
				Timeout:   cfg.HTTPTimeout,
				PageSize:  cfg.TopicPageSize,
			})

			reconciler := topics.NewReconciler(
				postgresRepo.NewTopicStore(db, logger),
				source,
				accounts.NewService(accountRepo, resolver, logger),
				maxAccounts,
				logger,
			)
			stats, err := reconciler.Run(cmd.Context(), catalog)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "topics=%d failed=%d added=%d updated=%d removed=%d unchanged=%d skipped=%d\n",
				stats.Topics, stats.FailedTopics, stats.Added, stats.Updated, stats.Removed, stats.Unchanged, stats.SkippedActors)
			if stats.FailedTopics > 0 {
				return fmt.Errorf("%d of %d topics failed", stats.FailedTopics, stats.Topics)
			}
			return nil
		},
	}
	topicsCmd.Flags().StringVarP(&catalogPath, "catalog", "c", "", "Topic catalog YAML file (default FEDIPUB_TOPIC_CATALOG_PATH)")
	topicsCmd.Flags().StringVarP(&sourceURL, "source", "s", "", "Curation service base URL (default FEDIPUB_TOPIC_SOURCE_URL)")
	topicsCmd.Flags().IntVarP(&maxAccounts, "max-accounts", "m", 0, "Accounts fetched per topic (default FEDIPUB_TOPIC_MAX_ACCOUNTS)")
	rootCmd.AddCommand(topicsCmd)
}
