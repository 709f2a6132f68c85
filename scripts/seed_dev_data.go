//go:build ignore

// seed_dev_data.go fills a development database with a site, two remote
// accounts, an article and a deep reply thread under it. Everything goes
// through the repositories so notifications and feeds are projected too.
//
// Usage: go run scripts/seed_dev_data.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"Fedipub/internal/config"
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/feeds"
	"Fedipub/internal/core/notifications"
	"Fedipub/internal/core/posts"
	"Fedipub/internal/db/migrations"
	postgresRepo "Fedipub/internal/db/postgres"
)

const siteHost = "blog.localhost"

var thread = []string{
	"Great write-up, the section on backpressure was exactly what I needed.",
	"Agreed. Did you try bounding the queue instead of dropping events?",
	"We did. Bounded queues just moved the stall upstream.",
	"Then the real fix is making the consumer idempotent so you can retry.",
	"Idempotent handlers plus an outbox. It always ends with an outbox.",
	"Every distributed system eventually reinvents the outbox pattern.",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := migrations.Up(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()
	logger := cfg.NewLogger()
	bus := events.NewBus(logger)
	accountRepo := postgresRepo.NewAccountRepository(db, bus, logger)
	postRepo := postgresRepo.NewPostRepository(db, accountRepo, bus, logger)
	notifications.NewService(postgresRepo.NewNotificationRepository(db), postRepo, accountRepo, logger).Register(bus)
	feeds.NewService(postgresRepo.NewFeedRepository(db), postRepo, logger).Register(bus)

	keys, err := accounts.GenerateKeyPair()
	if err != nil {
		log.Fatalf("Failed to generate keys: %v", err)
	}
	site, err := accounts.NewInternalForSite(siteHost, accounts.Profile{Username: "index", Name: "Dev Blog"}, keys)
	if err != nil {
		log.Fatalf("Failed to build site account: %v", err)
	}
	if err := accountRepo.Save(ctx, site); err != nil {
		log.Fatalf("Failed to save site account: %v", err)
	}
	if err := accountRepo.CreateSite(ctx, siteHost, site); err != nil {
		log.Fatalf("Failed to create site: %v", err)
	}
	log.Printf("Site account: %s (id %d)", site.Handle(), site.ID())

	var remotes []*accounts.Account
	for i := 1; i <= 2; i++ {
		apID := fmt.Sprintf("https://remote.localhost/users/reader%d", i)
		acc, err := accounts.NewExternal(accounts.ExternalAccountData{
			ApID:      apID,
			Endpoints: accounts.Endpoints{Inbox: apID + "/inbox"},
			Profile:   accounts.Profile{Username: fmt.Sprintf("reader%d", i)},
		})
		if err != nil {
			log.Fatalf("Failed to build remote account: %v", err)
		}
		if err := accountRepo.Save(ctx, acc); err != nil {
			log.Fatalf("Failed to save remote account: %v", err)
		}
		if err := acc.Follow(site); err != nil {
			log.Fatalf("Failed to follow site: %v", err)
		}
		if err := accountRepo.Save(ctx, acc); err != nil {
			log.Fatalf("Failed to save follow: %v", err)
		}
		remotes = append(remotes, acc)
	}

	article, err := posts.NewArticleFromSource(site, posts.ArticleSource{
		Title:       "Backpressure in event pipelines",
		HTML:        "<p>Queues are not free. This post walks through what happens when consumers fall behind.</p>",
		URL:         "https://" + siteHost + "/backpressure/",
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Fatalf("Failed to build article: %v", err)
	}
	if err := postRepo.Save(ctx, article); err != nil {
		log.Fatalf("Failed to save article: %v", err)
	}
	log.Printf("Article: %s (id %d)", article.ApID(), article.ID())

	parent := article
	for i, content := range thread {
		content := content
		author := remotes[i%len(remotes)]
		reply, err := posts.NewRemote(posts.RemotePostData{
			Author:    author,
			ApID:      fmt.Sprintf("%s/notes/%d", author.ApID(), time.Now().UnixNano()),
			Type:      posts.TypeNote,
			Content:   &content,
			InReplyTo: parent,
		})
		if err != nil {
			log.Fatalf("Failed to build reply %d: %v", i, err)
		}
		if err := postRepo.Save(ctx, reply); err != nil {
			log.Fatalf("Failed to save reply %d: %v", i, err)
		}
		parent = reply
	}

	for _, acc := range remotes {
		if err := article.AddLike(acc); err != nil {
			log.Fatalf("Failed to like article: %v", err)
		}
	}
	if err := postRepo.Save(ctx, article); err != nil {
		log.Fatalf("Failed to save likes: %v", err)
	}

	log.Printf("✓ Seeded %d replies and %d likes (like_count=%d)", len(thread), len(remotes), article.LikeCount())
}
