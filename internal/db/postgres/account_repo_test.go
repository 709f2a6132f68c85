package postgres

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/result"
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepo_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	rec := &recorder{}
	repo := NewAccountRepository(db, rec, nil)
	ctx := context.Background()

	acc, err := accounts.NewInternalForSite("alice.example", accounts.Profile{
		Username:     "index",
		Name:         "Alice",
		Bio:          "Writes things",
		CustomFields: []accounts.CustomField{{Name: "Site", Value: "https://alice.example"}},
	}, sharedKeys(t))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, acc))
	require.True(t, acc.HasID())
	assert.Equal(t, []events.Event{events.AccountCreated{AccountID: acc.ID()}}, rec.all())

	got, err := repo.GetByApID(ctx, acc.ApID())
	require.NoError(t, err)
	assert.Equal(t, acc.ID(), got.ID())
	assert.Equal(t, acc.UUID(), got.UUID())
	assert.Equal(t, "Alice", got.Name())
	assert.Equal(t, "Writes things", got.Bio())
	assert.Equal(t, "alice.example", got.Domain())
	assert.True(t, got.IsInternal())
	assert.Equal(t, acc.Endpoints(), got.Endpoints())
	assert.Equal(t, acc.CustomFields(), got.CustomFields())

	rec.reset()
	require.NoError(t, repo.Save(ctx, got))
	assert.Empty(t, rec.all(), "saving an unchanged account emits nothing")

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestAccountRepo_UpdateProfile(t *testing.T) {
	db := setupTestDB(t)
	rec := &recorder{}
	repo := NewAccountRepository(db, rec, nil)
	ctx := context.Background()
	acc := createInternal(t, repo, "alice.example")
	rec.reset()

	name := "Alice Liddell"
	require.NoError(t, acc.UpdateProfile(accounts.ProfileUpdate{Name: &name}))
	require.NoError(t, repo.Save(ctx, acc))

	assert.Equal(t, []events.Event{events.AccountUpdated{AccountID: acc.ID()}}, rec.all())
	assert.False(t, acc.IsDirty())
	got, err := repo.GetByID(ctx, acc.ID())
	require.NoError(t, err)
	assert.Equal(t, name, got.Name())
}

func TestAccountRepo_ConcurrentInsertCollapses(t *testing.T) {
	db := setupTestDB(t)
	rec := &recorder{}
	repo := NewAccountRepository(db, rec, nil)

	drafts := make([]*accounts.Account, 4)
	for i := range drafts {
		acc, err := accounts.NewExternal(accounts.ExternalAccountData{
			ApID:    "https://remote.example/users/bob",
			Profile: accounts.Profile{Username: "bob"},
		})
		require.NoError(t, err)
		drafts[i] = acc
	}

	var wg sync.WaitGroup
	errs := make([]error, len(drafts))
	for i, acc := range drafts {
		i, acc := i, acc
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = repo.Save(context.Background(), acc)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stored, err := repo.GetByApID(context.Background(), "https://remote.example/users/bob")
	require.NoError(t, err)
	for _, acc := range drafts {
		assert.Equal(t, stored.ID(), acc.ID())
		assert.Equal(t, stored.UUID(), acc.UUID(), "every draft carries the stored uuid")
	}
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM accounts WHERE ap_id = $1`, "https://remote.example/users/bob"))
	assert.Len(t, ofKind(rec.all(), events.KindAccountCreated), 1)
}

func TestAccountRepo_FollowsAndBlocks(t *testing.T) {
	db := setupTestDB(t)
	rec := &recorder{}
	repo := NewAccountRepository(db, rec, nil)
	ctx := context.Background()

	alice := createInternal(t, repo, "alice.example")
	bob := createInternal(t, repo, "bob.example")
	carol := createExternal(t, repo, "carol")
	rec.reset()

	require.NoError(t, alice.Follow(bob))
	require.NoError(t, alice.Follow(carol))
	require.NoError(t, repo.Save(ctx, alice))
	assert.Equal(t, []events.Event{
		events.AccountFollowed{AccountID: bob.ID(), FollowerID: alice.ID()},
		events.AccountFollowed{AccountID: carol.ID(), FollowerID: alice.ID()},
	}, rec.all())

	require.NoError(t, bob.Follow(alice))
	require.NoError(t, repo.Save(ctx, bob))
	rec.reset()

	// Following again writes nothing and emits nothing.
	require.NoError(t, alice.Follow(bob))
	require.NoError(t, repo.Save(ctx, alice))
	assert.Empty(t, rec.all())

	require.NoError(t, alice.Block(bob))
	require.NoError(t, repo.Save(ctx, alice))
	assert.ElementsMatch(t, []events.Event{
		events.AccountUnfollowed{AccountID: bob.ID(), FollowerID: alice.ID()},
		events.AccountBlocked{AccountID: bob.ID(), BlockerID: alice.ID()},
		events.AccountUnfollowed{AccountID: alice.ID(), FollowerID: bob.ID()},
	}, rec.all())
	assert.Equal(t, 0, countRows(t, db,
		`SELECT COUNT(*) FROM follows WHERE (follower_id = $1 AND following_id = $2) OR (follower_id = $2 AND following_id = $1)`,
		alice.ID(), bob.ID()))

	blocking, err := repo.IsBlocking(ctx, alice.ID(), bob.ID())
	require.NoError(t, err)
	assert.True(t, blocking)
	blocking, err = repo.IsBlocking(ctx, bob.ID(), alice.ID())
	require.NoError(t, err)
	assert.False(t, blocking)

	rec.reset()
	require.NoError(t, alice.Unblock(bob))
	require.NoError(t, repo.Save(ctx, alice))
	assert.Equal(t, []events.Event{events.AccountUnblocked{AccountID: bob.ID(), BlockerID: alice.ID()}}, rec.all())
}

func TestAccountRepo_DomainBlocks(t *testing.T) {
	db := setupTestDB(t)
	rec := &recorder{}
	repo := NewAccountRepository(db, rec, nil)
	ctx := context.Background()

	alice := createInternal(t, repo, "alice.example")
	carol := createExternal(t, repo, "carol")
	rec.reset()

	require.NoError(t, alice.BlockDomain("Remote.Example"))
	require.NoError(t, repo.Save(ctx, alice))
	assert.Equal(t, []events.Event{events.DomainBlocked{Domain: "remote.example", BlockerID: alice.ID()}}, rec.all())

	blocking, err := repo.IsBlocking(ctx, alice.ID(), carol.ID())
	require.NoError(t, err)
	assert.True(t, blocking)

	rec.reset()
	require.NoError(t, alice.UnblockDomain("remote.example"))
	require.NoError(t, repo.Save(ctx, alice))
	assert.Equal(t, []events.Event{events.DomainUnblocked{Domain: "remote.example", BlockerID: alice.ID()}}, rec.all())

	blocking, err = repo.IsBlocking(ctx, alice.ID(), carol.ID())
	require.NoError(t, err)
	assert.False(t, blocking)
}

func TestAccountRepo_GetBySite(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, nil)
	ctx := context.Background()

	alice := createInternal(t, repo, "alice.example")

	res, err := repo.GetBySite(ctx, "ALICE.example")
	require.NoError(t, err)
	require.False(t, result.IsError(res))
	assert.Equal(t, alice.ID(), result.GetValue(res).ID())

	res, err = repo.GetBySite(ctx, "nobody.example")
	require.NoError(t, err)
	assert.Equal(t, accounts.SiteNotFound, result.GetError(res))

	_, err = db.Exec(`INSERT INTO sites (host) VALUES ('empty.example')`)
	require.NoError(t, err)
	res, err = repo.GetBySite(ctx, "empty.example")
	require.NoError(t, err)
	assert.Equal(t, accounts.SiteAccountNotFound, result.GetError(res))

	// A second account linked to alice's site is an invariant violation.
	other, err := accounts.NewInternalForSite("other.example", accounts.Profile{Username: "index"}, sharedKeys(t))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, other))
	_, err = db.Exec(`INSERT INTO users (account_id, site_id) SELECT $1, id FROM sites WHERE host = 'alice.example'`, other.ID())
	require.NoError(t, err)
	res, err = repo.GetBySite(ctx, "alice.example")
	require.NoError(t, err)
	assert.Equal(t, accounts.MultipleAccountsForSite, result.GetError(res))
}

func TestAccountRepo_CreateSiteRejectsExternal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, nil)
	carol := createExternal(t, repo, "carol")

	err := repo.CreateSite(context.Background(), "carol.example", carol)

	var invalid *accounts.InvalidAccountError
	assert.ErrorAs(t, err, &invalid)
}

func TestAccountRepo_BackfillsMissingUUID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, nil)
	ctx := context.Background()
	carol := createExternal(t, repo, "carol")

	_, err := db.Exec(`UPDATE accounts SET uuid = NULL WHERE id = $1`, carol.ID())
	require.NoError(t, err)

	first, err := repo.GetByID(ctx, carol.ID())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.UUID())

	second, err := repo.GetByID(ctx, carol.ID())
	require.NoError(t, err)
	assert.Equal(t, first.UUID(), second.UUID())
}
