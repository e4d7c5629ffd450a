// Package objectstore provides the remote archive backends for converted
// audio artifacts. Both backends implement the core.ArchiveStore interface
// with overwrite semantics: storing a key twice replaces the object.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// natsLocatorScheme prefixes the locator returned for stored objects.
const natsLocatorScheme = "nats://"

// NATSStore implements the core.ArchiveStore interface using NATS JetStream
// object storage.
type NATSStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	store            nats.ObjectStore
}

// NewNATSStore creates and initializes a NATSStore on the given bucket.
func NewNATSStore(jetstreamContext nats.JetStreamContext, bucketName string) (*NATSStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Audio artifacts for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) || errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf(
					"failed to bind to existing object store bucket '%s': %w",
					bucketName,
					err,
				)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf(
				"failed to create object store bucket '%s': %w",
				bucketName,
				err,
			)
		}
	}

	return &NATSStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		store:            store,
	}, nil
}

// Store uploads the local file under the given key and returns a
// nats://bucket/key locator for it.
func (n *NATSStore) Store(_ context.Context, localPath, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload source '%s': %w", localPath, err)
	}

	_, putErr := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, file)
	closeErr := file.Close()

	if putErr != nil {
		return "", fmt.Errorf(
			"failed to put object '%s' to bucket '%s': %w",
			key,
			n.bucket,
			putErr,
		)
	}

	if closeErr != nil {
		return "", fmt.Errorf("failed to close upload source '%s': %w", localPath, closeErr)
	}

	return natsLocatorScheme + n.bucket + "/" + key, nil
}

// Fetch retrieves a stored object from the bucket.
func (n *NATSStore) Fetch(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Validate confirms the object store bucket is reachable.
func (n *NATSStore) Validate(_ context.Context) error {
	_, err := n.store.Status()
	if err != nil {
		return fmt.Errorf("failed to query status of bucket '%s': %w", n.bucket, err)
	}

	return nil
}
