// Package fixture provides test suites to test implementations of the
// interfaces in the findb package.
package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/keep94/cardledger/fin/findb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	kWaitForCallback = 5 * time.Second
)

// CacheFixture tests implementations of findb.Cache. Each exported method
// is one test.
type CacheFixture struct {
}

func (f CacheFixture) GetDefault(t *testing.T, cache findb.Cache) {
	value, err := cache.Get("home/ledger", []byte("[]"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("[]"), value)
	value, err = cache.Get("home/cards", nil)
	assert.NoError(t, err)
	assert.Nil(t, value)
}

func (f CacheFixture) SetAndGet(t *testing.T, cache findb.Cache) {
	require.NoError(t, cache.Set("home/ledger", []byte(`[{"id":"a"}]`)))
	require.NoError(t, cache.Set("work/ledger", []byte(`[]`)))
	value, err := cache.Get("home/ledger", nil)
	assert.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(value))
	value, err = cache.Get("work/ledger", nil)
	assert.NoError(t, err)
	assert.Equal(t, `[]`, string(value))
}

func (f CacheFixture) Overwrite(t *testing.T, cache findb.Cache) {
	require.NoError(t, cache.Set("home/balance", []byte(`"1.00"`)))
	require.NoError(t, cache.Set("home/balance", []byte(`"2.00"`)))
	value, err := cache.Get("home/balance", nil)
	assert.NoError(t, err)
	assert.Equal(t, `"2.00"`, string(value))
}

func (f CacheFixture) ValuesAreCopies(t *testing.T, cache findb.Cache) {
	original := []byte("abc")
	require.NoError(t, cache.Set("k", original))
	original[0] = 'x'
	value, err := cache.Get("k", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(value))
	value[1] = 'y'
	value, err = cache.Get("k", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(value))
}

// KeyedCache is a findb.Cache that can enumerate and delete its keys.
type KeyedCache interface {
	findb.Cache
	Keys() ([]string, error)
	Delete(key string) error
}

func (f CacheFixture) KeysAndDelete(t *testing.T, cache KeyedCache) {
	require.NoError(t, cache.Set("work/ledger", []byte("1")))
	require.NoError(t, cache.Set("home/ledger", []byte("2")))
	require.NoError(t, cache.Set("home/cards", []byte("3")))
	keys, err := cache.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"home/cards", "home/ledger", "work/ledger"}, keys)
	require.NoError(t, cache.Delete("home/ledger"))
	require.NoError(t, cache.Delete("missing"))
	keys, err = cache.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"home/cards", "work/ledger"}, keys)
	value, err := cache.Get("home/ledger", []byte("[]"))
	assert.NoError(t, err)
	assert.Equal(t, "[]", string(value))
}

// RemoteFixture tests implementations of findb.Remote. Each exported
// method is one test.
type RemoteFixture struct {
}

func (f RemoteFixture) ReadMissing(t *testing.T, remote findb.Remote) {
	_, err := remote.Read(context.Background(), "ledgers/home/ledger")
	assert.Equal(t, findb.NoSuchPath, err)
}

func (f RemoteFixture) WriteAndRead(t *testing.T, remote findb.Remote) {
	ctx := context.Background()
	require.NoError(t, remote.Write(ctx, "ledgers/home/ledger", []byte("one")))
	require.NoError(t, remote.Write(ctx, "ledgers/home/cards", []byte("two")))
	require.NoError(t, remote.Write(ctx, "ledgers/home/ledger", []byte("three")))
	value, err := remote.Read(ctx, "ledgers/home/ledger")
	assert.NoError(t, err)
	assert.Equal(t, "three", string(value))
	value, err = remote.Read(ctx, "/ledgers/home/cards/")
	assert.NoError(t, err)
	assert.Equal(t, "two", string(value))
}

func (f RemoteFixture) BadPath(t *testing.T, remote findb.Remote) {
	err := remote.Write(context.Background(), "/", []byte("x"))
	assert.Equal(t, findb.BadPath, err)
}

func (f RemoteFixture) Subscribe(t *testing.T, remote findb.Remote) {
	ctx := context.Background()
	require.NoError(t, remote.Write(ctx, "ledgers/home/ledger", []byte("one")))
	values := make(chan string, 10)
	unsubscriber, err := remote.Subscribe(
		ctx,
		"ledgers/home/ledger",
		func(value []byte, exists bool) {
			if exists {
				values <- string(value)
			}
		})
	require.NoError(t, err)
	assert.Equal(t, "one", next(t, values))
	require.NoError(t, remote.Write(ctx, "ledgers/home/other", []byte("x")))
	require.NoError(t, remote.Write(ctx, "ledgers/home/ledger", []byte("two")))
	assert.Equal(t, "two", next(t, values))
	unsubscriber.Unsubscribe()
	require.NoError(t, remote.Write(ctx, "ledgers/home/ledger", []byte("three")))
	select {
	case v := <-values:
		t.Errorf("Unexpected callback after unsubscribe: %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f RemoteFixture) SubscribeMissing(t *testing.T, remote findb.Remote) {
	existed := make(chan bool, 1)
	unsubscriber, err := remote.Subscribe(
		context.Background(),
		"ledgers/nobody/ledger",
		func(value []byte, exists bool) {
			existed <- exists
		})
	require.NoError(t, err)
	defer unsubscriber.Unsubscribe()
	select {
	case exists := <-existed:
		assert.False(t, exists)
	case <-time.After(kWaitForCallback):
		t.Error("Expected initial callback")
	}
}

func next(t *testing.T, values chan string) string {
	t.Helper()
	select {
	case v := <-values:
		return v
	case <-time.After(kWaitForCallback):
		t.Error("Timed out waiting for callback")
		return ""
	}
}
