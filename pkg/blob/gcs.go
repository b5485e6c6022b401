package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore persists objects in a Google Cloud Storage bucket. Object
// generations map directly onto GCS generations.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore builds a store over the named bucket. Credentials come from
// application default credentials unless overridden via opts.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("building google storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Get returns the object's data and current generation.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, 0, mapGCSError(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, r.Attrs.Generation, nil
}

// Put writes unconditionally.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (int64, error) {
	return s.write(ctx, s.client.Bucket(s.bucket).Object(key), data)
}

// PutIfGenerationMatch writes only when the stored generation equals gen;
// gen 0 requires the object to be absent.
func (s *GCSStore) PutIfGenerationMatch(ctx context.Context, key string, data []byte, gen int64) (int64, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	if gen == 0 {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else {
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}
	return s.write(ctx, obj, data)
}

func (s *GCSStore) write(ctx context.Context, obj *storage.ObjectHandle, data []byte) (int64, error) {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return 0, mapGCSError(err)
	}
	if err := w.Close(); err != nil {
		return 0, mapGCSError(err)
	}
	return w.Attrs().Generation, nil
}

// Delete removes the object.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		return mapGCSError(err)
	}
	return nil
}

// List returns all keys with the given prefix, sorted (GCS iterates in
// lexicographic order).
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	keys := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing prefix %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Ping checks bucket reachability.
func (s *GCSStore) Ping(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	return err
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// mapGCSError converts GCS errors into store sentinels. Precondition
// failures (412) signal a lost generation race.
func mapGCSError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return ErrGenerationMismatch
	}
	return err
}
