package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/launchstate"
)

func newRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "tool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepo(db)
}

func sample(state string, exp time.Time) *repoIface.LaunchState {
	return &repoIface.LaunchState{
		State:         state,
		Nonce:         "nonce-" + state,
		Issuer:        "https://platform.example.com",
		ClientID:      "client-1",
		TargetLinkURI: "https://tool.example.com/lti/1.3/launch/?id=lb:org:lib:html:a",
		ExpiresAt:     exp,
	}
}

func TestConsume_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Create(ctx, sample("s1", time.Now().Add(time.Minute))))

	got, err := repo.Consume(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "nonce-s1", got.Nonce)
	assert.Equal(t, "client-1", got.ClientID)

	_, err = repo.Consume(ctx, "s1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = repo.Consume(ctx, "never-issued")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestConsume_Expired(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Create(ctx, sample("old", time.Now().Add(time.Minute))))
	repo.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := repo.Consume(ctx, "old")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestConsume_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Create(ctx, sample("race", time.Now().Add(time.Minute))))

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(ctx, "race"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTryUseNonce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	exp := time.Now().Add(time.Minute)

	ok, err := repo.TryUseNonce(ctx, "https://iss", "n1", exp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryUseNonce(ctx, "https://iss", "n1", exp)
	require.NoError(t, err)
	assert.False(t, ok, "replayed nonce must be rejected")

	ok, err = repo.TryUseNonce(ctx, "https://other", "n1", exp)
	require.NoError(t, err)
	assert.True(t, ok, "nonces are scoped per issuer")

	repo.now = func() time.Time { return exp.Add(time.Second) }
	ok, err = repo.TryUseNonce(ctx, "https://iss", "n1", exp.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "expired nonce record may be reused")

	_, err = repo.TryUseNonce(ctx, "https://iss", "", exp)
	assert.Error(t, err)
}
