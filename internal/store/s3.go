// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// markerObject is written into every cache prefix so that empty caches are
// still listed.
const markerObject = ".cache"

// S3API is the subset of the S3 client used by the S3 store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 keeps caches in a bucket. Cache "v1" under prefix "pwa" holds one JSON
// object per entry at pwa/v1/<md5(key)>.json plus the marker pwa/v1/.cache.
type S3 struct {
	client S3API
	bucket string
	prefix string

	// created holds the caches whose marker this store has written.
	mu      sync.Mutex
	created map[string]bool
}

type s3Envelope struct {
	URL      string              `json:"url"`
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header,omitempty"`
	Body     []byte              `json:"body"`
	StoredAt time.Time           `json:"stored_at"`
}

// NewS3 returns an S3 store. prefix may be empty.
func NewS3(client S3API, bucket, prefix string) *S3 {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, created: make(map[string]bool)}
}

func (s *S3) cachePrefix(name string) string {
	return s.prefix + url.PathEscape(name) + "/"
}

// Open writes the marker the first time this store opens name. Later opens,
// such as one per background write, cost no request.
func (s *S3) Open(ctx context.Context, name string) (Cache, error) {
	c := &s3Cache{store: s, name: name, prefix: s.cachePrefix(name)}

	s.mu.Lock()
	done := s.created[name]
	s.mu.Unlock()
	if done {
		return c, nil
	}

	if err := c.ensureMarker(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.created[name] = true
	s.mu.Unlock()
	return c, nil
}

// Get only lists the cache prefix, so lookups never write to the bucket.
func (s *S3) Get(ctx context.Context, name string) (Cache, error) {
	prefix := s.cachePrefix(name)
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	if len(out.Contents) == 0 {
		return nil, ErrNoCache
	}
	return &s3Cache{store: s, name: name, prefix: prefix}, nil
}

func (s *S3) Names(ctx context.Context) ([]string, error) {
	var names []string

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list caches in s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			escaped := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			name, err := url.PathUnescape(escaped)
			if err != nil {
				log.WithError(err).Warnf("skipping cache prefix %s", aws.ToString(cp.Prefix))
				continue
			}
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func (s *S3) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	delete(s.created, name)
	s.mu.Unlock()

	keys, err := s.listObjects(ctx, s.cachePrefix(name))
	if err != nil {
		return false, err
	}

	for _, k := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(k),
		}); err != nil {
			return false, fmt.Errorf("failed to delete s3://%s/%s: %w", s.bucket, k, err)
		}
	}
	return len(keys) > 0, nil
}

func (s *S3) Close() error { return nil }

func (s *S3) listObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

type s3Cache struct {
	store  *S3
	name   string
	prefix string
}

func (c *s3Cache) Name() string { return c.name }

func (c *s3Cache) objectKey(key Key) string {
	return c.prefix + encodeKey(key) + ".json"
}

func (c *s3Cache) ensureMarker(ctx context.Context) error {
	_, err := c.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.store.bucket),
		Key:    aws.String(c.prefix + markerObject),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", c.name, err)
	}
	return nil
}

func (c *s3Cache) Match(ctx context.Context, key Key) (*Entry, error) {
	return c.get(ctx, c.objectKey(key))
}

func (c *s3Cache) get(ctx context.Context, objectKey string) (*Entry, error) {
	out, err := c.store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.store.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	var env s3Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", objectKey, err)
	}

	return &Entry{
		URL:      env.URL,
		Status:   env.Status,
		Header:   http.Header(env.Header),
		Body:     env.Body,
		StoredAt: env.StoredAt,
	}, nil
}

func (c *s3Cache) Put(ctx context.Context, key Key, entry *Entry) error {
	data, err := json.Marshal(s3Envelope{
		URL:      string(key),
		Status:   entry.Status,
		Header:   entry.Header,
		Body:     entry.Body,
		StoredAt: entry.StoredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if _, err := c.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.store.bucket),
		Key:         aws.String(c.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("failed to put S3 object: %w", err)
	}
	return nil
}

func (c *s3Cache) Delete(ctx context.Context, key Key) (bool, error) {
	if _, err := c.Match(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if _, err := c.store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.store.bucket),
		Key:    aws.String(c.objectKey(key)),
	}); err != nil {
		return false, fmt.Errorf("failed to delete S3 object: %w", err)
	}
	return true, nil
}

func (c *s3Cache) Keys(ctx context.Context) ([]Key, error) {
	objects, err := c.store.listObjects(ctx, c.prefix)
	if err != nil {
		return nil, err
	}

	var keys []Key
	for _, o := range objects {
		if !strings.HasSuffix(o, ".json") {
			continue
		}
		e, err := c.get(ctx, o)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, Key(e.URL))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}
