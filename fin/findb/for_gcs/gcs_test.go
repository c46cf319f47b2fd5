package for_gcs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keep94/cardledger/fin/findb"
	"github.com/keep94/cardledger/fin/findb/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a storage emulator. Set STORAGE_EMULATOR_HOST and
// CARDLEDGER_TEST_BUCKET to run them.

func TestRemoteReadMissing(t *testing.T) {
	remote, prefix := newRemote(t)
	defer remote.Close()
	fixture.RemoteFixture{}.ReadMissing(t, prefixed{remote, prefix})
}

func TestRemoteWriteAndRead(t *testing.T) {
	remote, prefix := newRemote(t)
	defer remote.Close()
	fixture.RemoteFixture{}.WriteAndRead(t, prefixed{remote, prefix})
}

func TestRemoteBadPath(t *testing.T) {
	remote, _ := newRemote(t)
	defer remote.Close()
	fixture.RemoteFixture{}.BadPath(t, remote)
}

func TestRemoteSubscribe(t *testing.T) {
	remote, prefix := newRemote(t)
	defer remote.Close()
	fixture.RemoteFixture{}.Subscribe(t, prefixed{remote, prefix})
}

func TestRemoteSubscribeMissing(t *testing.T) {
	remote, prefix := newRemote(t)
	defer remote.Close()
	fixture.RemoteFixture{}.SubscribeMissing(t, prefixed{remote, prefix})
}

func TestRemoteList(t *testing.T) {
	remote, prefix := newRemote(t)
	defer remote.Close()
	ctx := context.Background()
	require.NoError(t, remote.Write(ctx, prefix+"/home/ledger", []byte("[]")))
	require.NoError(t, remote.Write(ctx, prefix+"/home/cards", []byte("[]")))
	paths, err := remote.List(ctx, prefix)
	assert.NoError(t, err)
	assert.Equal(
		t, []string{prefix + "/home/cards", prefix + "/home/ledger"}, paths)
}

// prefixed isolates each test under its own prefix in the shared bucket.
type prefixed struct {
	*Remote
	prefix string
}

func (p prefixed) Read(ctx context.Context, path string) ([]byte, error) {
	return p.Remote.Read(ctx, p.prefix+"/"+path)
}

func (p prefixed) Write(ctx context.Context, path string, value []byte) error {
	return p.Remote.Write(ctx, p.prefix+"/"+path, value)
}

func (p prefixed) Subscribe(
	ctx context.Context, path string, callback findb.Callback) (
	findb.Unsubscriber, error) {
	return p.Remote.Subscribe(ctx, p.prefix+"/"+path, callback)
}

func newRemote(t *testing.T) (*Remote, string) {
	bucket := os.Getenv("CARDLEDGER_TEST_BUCKET")
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" || bucket == "" {
		t.Skip("No storage emulator configured")
	}
	remote, err := NewRemote(context.Background(), bucket)
	if err != nil {
		t.Fatalf("Error creating remote: %v", err)
	}
	remote.PollInterval = 10 * time.Millisecond
	return remote, "test-" + uuid.New().String()
}
