package feeds

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/posts"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Fanout(ctx context.Context, entry Entry, sourceID int64) (int64, error) {
	args := m.Called(ctx, entry, sourceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) RemovePost(ctx context.Context, postID int64) (int64, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) RemoveRepost(ctx context.Context, postID, reposterID int64) (int64, error) {
	args := m.Called(ctx, postID, reposterID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) RemoveSource(ctx context.Context, ownerID, sourceID int64) (int64, error) {
	args := m.Called(ctx, ownerID, sourceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, ownerID int64, limit int) ([]Entry, error) {
	args := m.Called(ctx, ownerID, limit)
	return args.Get(0).([]Entry), args.Error(1)
}

type fakePosts map[int64]*posts.Post

func (f fakePosts) GetByID(_ context.Context, id int64) (*posts.Post, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, posts.ErrNotFound
}

func remoteAuthor(t *testing.T) *accounts.Account {
	t.Helper()
	acc, err := accounts.Rehydrate(accounts.Data{
		ID:      3,
		UUID:    uuid.New(),
		ApID:    "https://remote.example/users/carol",
		Profile: accounts.Profile{Username: "carol"},
	})
	require.NoError(t, err)
	return acc
}

func post(t *testing.T, author *accounts.Account, id int64, audience posts.Audience, inReplyTo *int64) *posts.Post {
	t.Helper()
	p, err := posts.Rehydrate(posts.Data{
		ID:          id,
		UUID:        uuid.New(),
		ApID:        "https://remote.example/n/" + uuid.NewString(),
		Author:      author,
		Type:        posts.TypeNote,
		Audience:    audience,
		InReplyTo:   inReplyTo,
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func setup(t *testing.T, ps fakePosts) (*events.Bus, *MockRepository) {
	t.Helper()
	bus := events.NewBus(nil)
	repo := new(MockRepository)
	NewService(repo, ps, nil).Register(bus)
	return bus, repo
}

func TestPostCreated_FansOutTopLevelPosts(t *testing.T) {
	author := remoteAuthor(t)
	parent := int64(1)
	ps := fakePosts{
		10: post(t, author, 10, posts.AudiencePublic, nil),
		11: post(t, author, 11, posts.AudiencePublic, &parent),
		12: post(t, author, 12, posts.AudienceDirect, nil),
	}
	bus, repo := setup(t, ps)
	repo.On("Fanout", mock.Anything, Entry{
		PostID:      10,
		AuthorID:    3,
		PostType:    posts.TypeNote,
		Audience:    posts.AudiencePublic,
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, int64(3)).Return(int64(2), nil).Once()

	ctx := context.Background()
	for _, id := range []int64{10, 11, 12, 99} {
		require.NoError(t, bus.EmitAsync(ctx, events.PostCreated{PostID: id}))
	}

	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "Fanout", 1)
}

func TestPostReposted_FansOutToReposterFollowers(t *testing.T) {
	author := remoteAuthor(t)
	bus, repo := setup(t, fakePosts{
		10: post(t, author, 10, posts.AudiencePublic, nil),
		12: post(t, author, 12, posts.AudienceFollowersOnly, nil),
	})
	repo.On("Fanout", mock.Anything, mock.MatchedBy(func(e Entry) bool {
		return e.PostID == 10 && e.RepostedByID != nil && *e.RepostedByID == 7
	}), int64(7)).Return(int64(1), nil)

	require.NoError(t, bus.EmitAsync(context.Background(), events.PostReposted{PostID: 10, AccountID: 7}))
	require.NoError(t, bus.EmitAsync(context.Background(), events.PostReposted{PostID: 12, AccountID: 7}))

	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "Fanout", 1)
}

func TestRemovals(t *testing.T) {
	bus, repo := setup(t, fakePosts{})
	repo.On("RemoveRepost", mock.Anything, int64(10), int64(7)).Return(int64(1), nil)
	repo.On("RemovePost", mock.Anything, int64(10)).Return(int64(3), nil)
	repo.On("RemoveSource", mock.Anything, int64(1), int64(3)).Return(int64(2), nil).Twice()
	ctx := context.Background()

	require.NoError(t, bus.EmitAsync(ctx, events.PostDereposted{PostID: 10, AccountID: 7}))
	require.NoError(t, bus.EmitAsync(ctx, events.PostDeleted{PostID: 10, AccountID: 3}))
	require.NoError(t, bus.EmitAsync(ctx, events.AccountUnfollowed{AccountID: 3, FollowerID: 1}))
	require.NoError(t, bus.EmitAsync(ctx, events.AccountBlocked{AccountID: 3, BlockerID: 1}))

	repo.AssertExpectations(t)
}

func TestFeed_ClampsLimit(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, fakePosts{}, nil)
	repo.On("List", mock.Anything, int64(1), 20).Return([]Entry{{PostID: 10}}, nil)

	entries, err := svc.Feed(context.Background(), 1, 0)

	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
