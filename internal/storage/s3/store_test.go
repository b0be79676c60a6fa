package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tablecraft/tablecraft/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "tablecraft/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/tenant-1/shop/users/snapshot-1.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"row-count": "3"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "tenant-1/shop/users/snapshot-1.parquet" {
		t.Fatalf("returned key = %q, want key relative to the prefix", info.Key)
	}
	if fake.lastPutMetadata["row-count"] != "3" {
		t.Fatalf("metadata = %v", fake.lastPutMetadata)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "tablecraft/prod/tenant-1/shop/users/snapshot-1.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
}

func TestStatReturnsKeyRelativeToPrefix(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "/tablecraft/prod/", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	info, err := store.Stat(context.Background(), "tenant-1/x.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if fake.lastStatKey != "tablecraft/prod/tenant-1/x.parquet" {
		t.Fatalf("stat key = %q", fake.lastStatKey)
	}
	if info.Key != "tenant-1/x.parquet" || info.Size != 10 {
		t.Fatalf("info = %+v", info)
	}
}

func TestStatMapsMissingObject(t *testing.T) {
	fake := &fakeClient{statErr: fmt.Errorf("head: %w", storage.ErrObjectNotFound)}
	store, err := NewWithClient("bucket-a", "tablecraft", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Stat(context.Background(), "tenant-1/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want %v", err, storage.ErrObjectNotFound)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	fake := &fakeClient{deleteErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "missing/file.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	fake := &fakeClient{listed: []storage.ObjectInfo{
		{Key: "tablecraft/prod/tenant-1/shop/users/snapshot-1.parquet", Size: 10},
		{Key: "tablecraft/prod/tenant-1/shop/orders/snapshot-2.parquet", Size: 20},
	}}
	store, err := NewWithClient("bucket-a", "tablecraft/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	objects, err := store.List(context.Background(), "tenant-1/shop/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "tablecraft/prod/tenant-1/shop/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(objects) != 2 || objects[0].Key != "tenant-1/shop/users/snapshot-1.parquet" {
		t.Fatalf("objects = %+v", objects)
	}
}

func TestDeletePrefixRemovesListedObjects(t *testing.T) {
	fake := &fakeClient{listed: []storage.ObjectInfo{
		{Key: "tenant-1/shop/users/snapshot-1.parquet"},
		{Key: "tenant-1/shop/users/snapshot-2.parquet"},
	}}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	deleted, err := storage.DeletePrefix(context.Background(), store, "tenant-1/shop/")
	if err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if deleted != 2 || len(fake.deletedKeys) != 2 || fake.deletedKeys[1] != "tenant-1/shop/users/snapshot-2.parquet" {
		t.Fatalf("deleted = %d keys = %v", deleted, fake.deletedKeys)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastPutMetadata    map[string]string
	bucketExists       bool
	createBucketCalled bool
	deleteErr          error
	deletedKeys        []string
	listed             []storage.ObjectInfo
	lastListPrefix     string
	lastStatKey        string
	statErr            error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastPutMetadata = opts.Metadata
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	f.lastStatKey = key
	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) Delete(_ context.Context, _, key string) error {
	f.deletedKeys = append(f.deletedKeys, key)
	return f.deleteErr
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	return append([]storage.ObjectInfo(nil), f.listed...), nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
