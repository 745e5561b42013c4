package natsclient

import (
	"context"
	stderrors "errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/catcatai/hsp/errors"
)

// KVStore wraps a JetStream key-value bucket with error normalization.
// The trust manager uses one of these when score persistence is enabled.
type KVStore struct {
	bucket jetstream.KeyValue
}

// EnsureKVStore opens the named bucket, creating it if missing.
func (c *Client) EnsureKVStore(ctx context.Context, bucket string) (*KVStore, error) {
	js := c.JetStream()
	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "EnsureKVStore", "jetstream check")
	}

	kv, err := js.KeyValue(ctx, bucket)
	if stderrors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureKVStore", "open bucket")
	}
	return &KVStore{bucket: kv}, nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get", "bucket get")
	}
	return entry.Value(), nil
}

// Put stores value under key, overwriting any previous value.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.bucket.Put(ctx, key, value); err != nil {
		return errors.WrapTransient(err, "KVStore", "Put", "bucket put")
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return errors.WrapTransient(err, "KVStore", "Delete", "bucket delete")
	}
	return nil
}

// Keys lists every key in the bucket. An empty bucket returns an empty slice.
func (s *KVStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "bucket keys")
	}
	return keys, nil
}
