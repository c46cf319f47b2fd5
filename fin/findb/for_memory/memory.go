// Package for_memory provides in memory implementations of the findb
// interfaces for tests and for running without a remote store.
package for_memory

import (
	"context"
	"sort"
	"sync"

	"github.com/keep94/cardledger/fin/findb"
	"github.com/patrickmn/go-cache"
)

// Cache implements findb.Cache on top of go-cache. Entries never expire.
type Cache struct {
	c *cache.Cache
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{c: cache.New(cache.NoExpiration, 0)}
}

func (c *Cache) Get(key string, defaultValue []byte) ([]byte, error) {
	value, ok := c.c.Get(key)
	if !ok {
		return defaultValue, nil
	}
	return copyBytes(value.([]byte)), nil
}

func (c *Cache) Set(key string, value []byte) error {
	c.c.Set(key, copyBytes(value), cache.NoExpiration)
	return nil
}

// Keys returns every key in the cache in ascending order.
func (c *Cache) Keys() ([]string, error) {
	items := c.c.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) error {
	c.c.Delete(key)
	return nil
}

type subscription struct {
	path     string
	callback findb.Callback
}

// Remote implements findb.Remote in memory. Subscribers are called
// synchronously from Write in the order they subscribed. A Remote can be
// switched offline, making every call fail with findb.Offline.
type Remote struct {
	mu      sync.Mutex
	values  map[string][]byte
	subs    map[int]*subscription
	nextSub int
	offline bool
	writes  int
}

// NewRemote returns an empty remote.
func NewRemote() *Remote {
	return &Remote{
		values: make(map[string][]byte),
		subs:   make(map[int]*subscription),
	}
}

// SetOffline switches this remote offline or back online. Nothing is
// delivered to subscribers while offline.
func (r *Remote) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
}

// Writes returns the number of successful writes so far.
func (r *Remote) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *Remote) Read(ctx context.Context, path string) ([]byte, error) {
	path, err := findb.CleanPath(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return nil, findb.Offline
	}
	value, ok := r.values[path]
	if !ok {
		return nil, findb.NoSuchPath
	}
	return copyBytes(value), nil
}

func (r *Remote) Write(ctx context.Context, path string, value []byte) error {
	path, err := findb.CleanPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.offline {
		r.mu.Unlock()
		return findb.Offline
	}
	r.values[path] = copyBytes(value)
	r.writes++
	callbacks := r.callbacksLocked(path)
	r.mu.Unlock()
	for _, callback := range callbacks {
		callback(copyBytes(value), true)
	}
	return nil
}

// Delete removes path, notifying subscribers.
func (r *Remote) Delete(path string) error {
	path, err := findb.CleanPath(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.offline {
		r.mu.Unlock()
		return findb.Offline
	}
	delete(r.values, path)
	callbacks := r.callbacksLocked(path)
	r.mu.Unlock()
	for _, callback := range callbacks {
		callback(nil, false)
	}
	return nil
}

func (r *Remote) Subscribe(
	ctx context.Context, path string, callback findb.Callback) (
	findb.Unsubscriber, error) {
	path, err := findb.CleanPath(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.offline {
		r.mu.Unlock()
		return nil, findb.Offline
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = &subscription{path: path, callback: callback}
	value, exists := r.values[path]
	value = copyBytes(value)
	r.mu.Unlock()
	callback(value, exists)
	return findb.UnsubscriberFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}), nil
}

// Subscribers returns the number of active subscriptions.
func (r *Remote) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Remote) callbacksLocked(path string) []findb.Callback {
	var ids []int
	for id, sub := range r.subs {
		if sub.path == path {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	result := make([]findb.Callback, len(ids))
	for i, id := range ids {
		result[i] = r.subs[id].callback
	}
	return result
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	result := make([]byte, len(b))
	copy(result, b)
	return result
}
