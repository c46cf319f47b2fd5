// Package findb contains the persistence layer for the fin package: the
// local key/value cache and the shared remote store a session reads and
// writes.
package findb

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	NoSuchPath = errors.New("findb: No such path.")
	Offline    = errors.New("findb: Remote store unreachable.")
	BadPath    = errors.New("findb: Bad path.")
)

type GetRunner interface {
	// Get fetches the value stored under key. If there is no such key,
	// Get returns defaultValue.
	Get(key string, defaultValue []byte) ([]byte, error)
}

type SetRunner interface {
	// Set stores value under key.
	Set(key string, value []byte) error
}

// Cache is the persistent local key/value cache.
type Cache interface {
	GetRunner
	SetRunner
}

// Callback receives the value at a subscribed path. exists is false when
// the path holds nothing.
type Callback func(value []byte, exists bool)

// Unsubscriber cancels a subscription.
type Unsubscriber interface {
	Unsubscribe()
}

// UnsubscriberFunc adapts a function to an Unsubscriber.
type UnsubscriberFunc func()

func (u UnsubscriberFunc) Unsubscribe() {
	u()
}

type SubscribeRunner interface {
	// Subscribe calls callback with the current value at path and again
	// each time it changes until the returned Unsubscriber is used.
	Subscribe(ctx context.Context, path string, callback Callback) (
		Unsubscriber, error)
}

type WriteRunner interface {
	// Write replaces the value at path.
	Write(ctx context.Context, path string, value []byte) error
}

type ReadRunner interface {
	// Read returns the value at path or NoSuchPath.
	Read(ctx context.Context, path string) ([]byte, error)
}

// Remote is the shared remote store.
type Remote interface {
	SubscribeRunner
	WriteRunner
	ReadRunner
}

// Path returns the remote path of a collection of a profile.
func Path(prefix, profile, collection string) string {
	return path.Join(prefix, profile, collection)
}

// CacheKey returns the cache key of a collection of a profile.
func CacheKey(profile, collection string) string {
	return profile + "/" + collection
}

// CleanPath validates a remote path and returns it without leading or
// trailing slashes.
func CleanPath(p string) (string, error) {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return "", BadPath
	}
	return p, nil
}
