// Package for_gcs stores the shared ledger in a Google Cloud Storage
// bucket, one object per path.
package for_gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/keep94/cardledger/fin/findb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	kDefaultPollInterval = 5 * time.Second
	kContentType         = "application/json"
)

// Remote implements findb.Remote on a GCS bucket. Subscriptions poll the
// object generation.
type Remote struct {
	client *storage.Client
	bucket *storage.BucketHandle
	// How often subscriptions poll. Zero means 5s.
	PollInterval time.Duration
	// If non-nil, receives polling failures.
	OnError func(error)
}

// NewRemote connects to bucketName. With no options the client uses
// Application Default Credentials.
func NewRemote(
	ctx context.Context, bucketName string, opts ...option.ClientOption) (
	*Remote, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Remote{client: client, bucket: client.Bucket(bucketName)}, nil
}

// NewRemoteWithCredentials connects to bucketName using the service account
// key in credentialsFile. An empty credentialsFile means Application
// Default Credentials.
func NewRemoteWithCredentials(
	ctx context.Context, bucketName, credentialsFile string) (
	*Remote, error) {
	if credentialsFile == "" {
		return NewRemote(ctx, bucketName)
	}
	return NewRemote(
		ctx, bucketName, option.WithCredentialsFile(credentialsFile))
}

// Close releases the storage client.
func (r *Remote) Close() error {
	return r.client.Close()
}

func (r *Remote) Read(ctx context.Context, path string) ([]byte, error) {
	snapshot, err := r.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if !snapshot.Exists {
		return nil, findb.NoSuchPath
	}
	return snapshot.Value, nil
}

func (r *Remote) Write(ctx context.Context, path string, value []byte) error {
	path, err := findb.CleanPath(path)
	if err != nil {
		return err
	}
	w := r.bucket.Object(path).NewWriter(ctx)
	w.ContentType = kContentType
	if _, err := w.Write(value); err != nil {
		w.Close()
		return fmt.Errorf("write object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", path, err)
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
	interval := r.PollInterval
	if interval <= 0 {
		interval = kDefaultPollInterval
	}
	return findb.PollSubscribe(
		ctx,
		interval,
		func(ctx context.Context) (findb.Snapshot, error) {
			return r.fetch(ctx, path)
		},
		callback,
		r.OnError)
}

// List returns the paths of the objects under prefix in ascending order.
func (r *Remote) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		prefix = strings.Trim(prefix, "/") + "/"
	}
	it := r.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var result []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		result = append(result, attrs.Name)
	}
	sort.Strings(result)
	return result, nil
}

func (r *Remote) fetch(ctx context.Context, path string) (
	findb.Snapshot, error) {
	path, err := findb.CleanPath(path)
	if err != nil {
		return findb.Snapshot{}, err
	}
	rc, err := r.bucket.Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return findb.Snapshot{}, nil
	}
	if err != nil {
		return findb.Snapshot{}, fmt.Errorf("open object %s: %w", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return findb.Snapshot{}, fmt.Errorf("read object %s: %w", path, err)
	}
	return findb.Snapshot{
		Value:      data,
		Generation: rc.Attrs.Generation,
		Exists:     true,
	}, nil
}
