package checkout

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	applog "github.com/your-org/storefront-checkout/internal/pkg/logger"
)

// setupTestRedis creates a miniredis server and a client pointing to it
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestSessionStore_LoadMissing(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)

	state, err := store.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, PhaseOpen, state.Phase)
	assert.NotNil(t, state.Cart)
}

func TestSessionStore_SaveLoadClear(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	state := mustReduce(t, NewState(), CartLoaded{Cart: openCart()}, PaymentSubmitted{PaymentType: "ideal"})
	require.NoError(t, store.Save(ctx, "alice", state))

	assert.True(t, mr.Exists("checkout:state:alice"))
	assert.Equal(t, time.Hour, mr.TTL("checkout:state:alice"))

	loaded, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, PhasePendingResult, loaded.Phase)
	assert.Equal(t, "ideal", loaded.PaymentType)
	assert.Equal(t, "20.00", loaded.Cart.TotalPrice.StringFixed(2))

	require.NoError(t, store.Clear(ctx, "alice"))
	assert.False(t, mr.Exists("checkout:state:alice"))
}

func TestSessionStore_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Minute)
	ctx := context.Background()

	state := mustReduce(t, NewState(), CartLoaded{Cart: openCart()}, PaymentSubmitted{PaymentType: "scheme"})
	require.NoError(t, store.Save(ctx, "bob", state))

	mr.FastForward(2 * time.Minute)

	loaded, err := store.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, PhaseOpen, loaded.Phase)
}

func TestSessionStore_CorruptState(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	require.NoError(t, mr.Set("checkout:state:carol", "{not json"))

	_, err := store.Load(context.Background(), "carol")
	assert.Error(t, err)
}

func TestInFlightGuard_SingleHolder(t *testing.T) {
	client, mr := setupTestRedis(t)
	guard := NewInFlightGuard(client, time.Minute, applog.Discard())
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "alice")
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, "alice")
	assert.ErrorIs(t, err, ErrPaymentInProgress)

	// Other shoppers are unaffected.
	releaseBob, err := guard.Acquire(ctx, "bob")
	require.NoError(t, err)
	releaseBob()

	release()
	assert.False(t, mr.Exists("checkout:inflight:alice"))

	release, err = guard.Acquire(ctx, "alice")
	require.NoError(t, err)
	release()
}

func TestInFlightGuard_StaleReleaseKeepsNewLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	var buf bytes.Buffer
	log := applog.Discard()
	log.SetOutput(&buf)
	guard := NewInFlightGuard(client, time.Minute, log)
	ctx := context.Background()

	stale, err := guard.Acquire(ctx, "alice")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	fresh, err := guard.Acquire(ctx, "alice")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("checkout:inflight:alice"), "a stale release must not drop the new holder's lock")
	assert.Contains(t, buf.String(), "Payment lock expired before release")

	fresh()
	assert.False(t, mr.Exists("checkout:inflight:alice"))
}

func TestInFlightGuard_ReleaseFailureIsLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	var buf bytes.Buffer
	log := applog.Discard()
	log.SetOutput(&buf)
	guard := NewInFlightGuard(client, time.Minute, log)

	release, err := guard.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	mr.Close()
	release()
	assert.Contains(t, buf.String(), "Failed to release payment lock")
	assert.Contains(t, buf.String(), "alice")
}

func TestInFlightGuard_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	guard := NewInFlightGuard(client, time.Minute, applog.Discard())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := guard.Acquire(context.Background(), "alice"); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}
