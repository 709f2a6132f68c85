package replycounts

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPost struct {
	createdAt time.Time
	stored    int
	live      int
	deleted   bool
}

type memStore struct {
	posts    map[int64]*memPost
	writes   int
	beforeUp func(postID int64)
}

func (s *memStore) ids() []int64 {
	ids := make([]int64, 0, len(s.posts))
	for id := range s.posts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *memStore) FindBatch(_ context.Context, afterID int64, limit int, cutoff time.Time, zeroOnly bool) (Batch, error) {
	var b Batch
	for _, id := range s.ids() {
		p := s.posts[id]
		if id <= afterID || p.deleted || !p.createdAt.Before(cutoff) {
			continue
		}
		if b.Scanned == limit {
			break
		}
		b.Scanned++
		b.LastID = id
		mismatch := p.stored != p.live
		if zeroOnly {
			mismatch = p.stored == 0 && p.live > 0
		}
		if mismatch {
			b.Candidates = append(b.Candidates, Candidate{PostID: id, Stored: p.stored, Actual: p.live})
		}
	}
	return b, nil
}

func (s *memStore) UpdateReplyCount(_ context.Context, postID int64, expected, actual int) (bool, error) {
	if s.beforeUp != nil {
		s.beforeUp(postID)
	}
	p := s.posts[postID]
	if p.stored != expected {
		return false, nil
	}
	p.stored = actual
	s.writes++
	return true, nil
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seed() *memStore {
	return &memStore{posts: map[int64]*memPost{
		1: {createdAt: t0, stored: 0, live: 2},
		2: {createdAt: t0, stored: 1, live: 1},
		3: {createdAt: t0, stored: 5, live: 3},
		4: {createdAt: t0, stored: 0, live: 1, deleted: true},
		5: {createdAt: t0, stored: 0, live: 4},
		6: {createdAt: t0.Add(48 * time.Hour), stored: 0, live: 7},
	}}
}

func newTestRepairer(store Store) *Repairer {
	r := NewRepairer(store, nil)
	r.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

func TestRun_FixesMismatchesOnceThenNothing(t *testing.T) {
	store := seed()
	r := newTestRepairer(store)
	opts := Options{BatchSize: 2, Cutoff: t0.Add(time.Hour)}

	first, err := r.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Fixed)
	assert.Equal(t, 4, first.Scanned)
	assert.Equal(t, 2, first.Batches)
	assert.Equal(t, 2, store.posts[1].stored)
	assert.Equal(t, 3, store.posts[3].stored)
	assert.Equal(t, 4, store.posts[5].stored)
	assert.Equal(t, 0, store.posts[4].stored, "deleted posts are left alone")
	assert.Equal(t, 0, store.posts[6].stored, "posts after the cutoff are left alone")

	second, err := r.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fixed)
	assert.Equal(t, 0, second.Mismatched)
	assert.Equal(t, 3, store.writes)
}

func TestRun_ZeroOnly(t *testing.T) {
	store := seed()
	r := newTestRepairer(store)

	stats, err := r.Run(context.Background(), Options{BatchSize: 10, Cutoff: t0.Add(time.Hour), ZeroOnly: true})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Fixed)
	assert.Equal(t, 5, store.posts[3].stored)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	store := seed()
	r := newTestRepairer(store)

	stats, err := r.Run(context.Background(), Options{BatchSize: 10, Cutoff: t0.Add(time.Hour), DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Mismatched)
	assert.Equal(t, 0, stats.Fixed)
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, 0, store.posts[1].stored)
}

func TestRun_ConcurrentChangeIsNotOverwritten(t *testing.T) {
	store := seed()
	store.beforeUp = func(postID int64) {
		if postID == 1 {
			// a reply lands between the scan and the write
			store.posts[1].stored = 3
			store.posts[1].live = 3
		}
	}
	r := newTestRepairer(store)

	stats, err := r.Run(context.Background(), Options{BatchSize: 10, Cutoff: t0.Add(time.Hour)})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Raced)
	assert.Equal(t, 2, stats.Fixed)
	assert.Equal(t, 3, store.posts[1].stored)
}

func TestRun_CancellationBetweenBatchesKeepsProgress(t *testing.T) {
	store := seed()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRepairer(store, nil)
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	stats, err := r.Run(ctx, Options{BatchSize: 2, Cutoff: t0.Add(time.Hour), Delay: time.Second})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 1, stats.Fixed)
	assert.Equal(t, 2, store.posts[1].stored)
	assert.Equal(t, 0, store.posts[5].stored)
}

func TestRun_DefaultCutoffIsNow(t *testing.T) {
	store := seed()
	r := newTestRepairer(store)
	r.now = func() time.Time { return t0.Add(72 * time.Hour) }

	stats, err := r.Run(context.Background(), Options{BatchSize: 10})

	require.NoError(t, err)
	assert.Equal(t, 4, stats.Fixed)
	assert.Equal(t, 7, store.posts[6].stored)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
