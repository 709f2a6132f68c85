package postgres

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/feeds"
	"Fedipub/internal/core/notifications"
	"Fedipub/internal/core/posts"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepo(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	repo := NewNotificationRepository(f.db)
	carol := createExternal(t, f.accounts, "carol")
	article := f.article(t, "hello")
	reply, err := posts.NewReply(f.bob, article, posts.NoteContent{Content: "Nice"})
	require.NoError(t, err)
	require.NoError(t, f.posts.Save(ctx, reply))

	articleID, replyID := article.ID(), reply.ID()
	like := &notifications.Notification{RecipientID: f.alice.ID(), ActorID: carol.ID(), PostID: &articleID, Type: notifications.TypeLike}
	require.NoError(t, repo.Create(ctx, like))
	assert.NotZero(t, like.ID)
	assert.False(t, like.Read)
	assert.False(t, like.CreatedAt.IsZero())

	require.NoError(t, repo.Create(ctx, &notifications.Notification{
		RecipientID: f.alice.ID(), ActorID: f.bob.ID(), PostID: &replyID, InReplyToPostID: &articleID, Type: notifications.TypeReply,
	}))
	require.NoError(t, repo.Create(ctx, &notifications.Notification{
		RecipientID: f.alice.ID(), ActorID: carol.ID(), Type: notifications.TypeFollow,
	}))

	list, err := repo.ListForRecipient(ctx, f.alice.ID(), 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, notifications.TypeFollow, list[0].Type)
	assert.Nil(t, list[0].PostID)
	assert.Equal(t, notifications.TypeReply, list[1].Type)
	assert.Equal(t, articleID, *list[1].InReplyToPostID)

	limited, err := repo.ListForRecipient(ctx, f.alice.ID(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	unread, err := repo.CountUnread(ctx, f.alice.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	n, err := repo.MarkAllRead(ctx, f.alice.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = repo.MarkAllRead(ctx, f.alice.ID())
	require.NoError(t, err)
	assert.Zero(t, n)
	unread, err = repo.CountUnread(ctx, f.alice.ID())
	require.NoError(t, err)
	assert.Zero(t, unread)

	n, err = repo.DeleteFromActor(ctx, f.alice.ID(), carol.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteForPost(ctx, articleID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the reply notification points at the article through in_reply_to_post_id")

	list, err = repo.ListForRecipient(ctx, f.alice.ID(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFeedRepo_Fanout(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	repo := NewFeedRepository(f.db)
	carol := createExternal(t, f.accounts, "carol")
	dave := createInternal(t, f.accounts, "dave.example")

	// bob and dave follow alice, carol is external and gets no feed.
	for _, follower := range []*accounts.Account{f.bob, dave, carol} {
		_, err := f.db.Exec(`INSERT INTO follows (follower_id, following_id) VALUES ($1, $2)`, follower.ID(), f.alice.ID())
		require.NoError(t, err)
	}
	// dave blocks alice.
	_, err := f.db.Exec(`INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1, $2)`, dave.ID(), f.alice.ID())
	require.NoError(t, err)

	article := f.article(t, "hello")
	entry := feeds.Entry{
		PostID:      article.ID(),
		AuthorID:    f.alice.ID(),
		PostType:    posts.TypeArticle,
		Audience:    posts.AudiencePublic,
		PublishedAt: time.Now().UTC().Truncate(time.Second),
	}

	n, err := repo.Fanout(ctx, entry, f.alice.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "alice and bob")

	n, err = repo.Fanout(ctx, entry, f.alice.ID())
	require.NoError(t, err)
	assert.Zero(t, n, "existing entries are left alone")

	bobFeed, err := repo.List(ctx, f.bob.ID(), 10)
	require.NoError(t, err)
	require.Len(t, bobFeed, 1)
	assert.Equal(t, article.ID(), bobFeed[0].PostID)
	assert.Nil(t, bobFeed[0].RepostedByID)
	assert.Equal(t, posts.TypeArticle, bobFeed[0].PostType)
	assert.True(t, entry.PublishedAt.Equal(bobFeed[0].PublishedAt))

	daveFeed, err := repo.List(ctx, dave.ID(), 10)
	require.NoError(t, err)
	assert.Empty(t, daveFeed)

	// bob reposts the article into their own feed.
	bobID := f.bob.ID()
	repost := entry
	repost.RepostedByID = &bobID
	n, err = repo.Fanout(ctx, repost, f.bob.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.RemoveRepost(ctx, article.ID(), f.bob.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.RemoveSource(ctx, f.bob.ID(), f.alice.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.RemovePost(ctx, article.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only alice's own entry is left")
}
