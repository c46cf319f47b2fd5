package findb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	mu       sync.Mutex
	snapshot Snapshot
	err      error
}

func (f *fakeSource) fetch(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

func (f *fakeSource) set(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
}

func TestPollSubscribe(t *testing.T) {
	source := &fakeSource{}
	values := make(chan string, 10)
	unsubscriber, err := PollSubscribe(
		context.Background(),
		time.Millisecond,
		source.fetch,
		func(value []byte, exists bool) {
			if !exists {
				values <- "<none>"
				return
			}
			values <- string(value)
		},
		nil)
	assert.NoError(t, err)
	assert.Equal(t, "<none>", <-values)
	source.set(Snapshot{Value: []byte("one"), Generation: 1, Exists: true})
	assert.Equal(t, "one", <-values)
	source.set(Snapshot{Value: []byte("two"), Generation: 2, Exists: true})
	assert.Equal(t, "two", <-values)
	unsubscriber.Unsubscribe()
	source.set(Snapshot{Value: []byte("three"), Generation: 3, Exists: true})
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, values)
}

func TestPollSubscribeInitialError(t *testing.T) {
	source := &fakeSource{err: errors.New("down")}
	_, err := PollSubscribe(
		context.Background(),
		time.Millisecond,
		source.fetch,
		func(value []byte, exists bool) {},
		nil)
	assert.Error(t, err)
}
