package findb

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the value at a remote path along with its generation.
// Generations increase with each write.
type Snapshot struct {
	Value      []byte
	Generation int64
	Exists     bool
}

// FetchFunc fetches the current snapshot at a path.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// PollSubscribe implements Subscribe for remotes without push
// notifications. It fetches once before returning, failing if that fetch
// fails, then fetches every interval and calls callback whenever the
// generation or existence changes. Polling stops when ctx is done or when
// the returned Unsubscriber is used. onError, which may be nil, receives
// failures of later fetches.
func PollSubscribe(
	ctx context.Context,
	interval time.Duration,
	fetch FetchFunc,
	callback Callback,
	onError func(error)) (Unsubscriber, error) {
	last, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	callback(last.Value, last.Exists)
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			current, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil && onError != nil {
					onError(err)
				}
				continue
			}
			if current.Exists == last.Exists && current.Generation == last.Generation {
				continue
			}
			last = current
			if ctx.Err() == nil {
				callback(current.Value, current.Exists)
			}
		}
	}()
	return UnsubscriberFunc(func() {
		cancel()
		wg.Wait()
	}), nil
}
