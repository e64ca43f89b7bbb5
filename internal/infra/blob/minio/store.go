// Package minio stores blobs in a MinIO (or other S3-compatible) bucket
// through minio-go.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	mc "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fieldledger/internal/blob/core"
)

const defaultRegion = "us-east-1"

// Config holds connection parameters. Endpoint is host[:port] without a scheme.
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	CreateBucket    bool
}

// Store implements core.Store on one MinIO bucket.
type Store struct {
	client *mc.Client
	bucket string
}

// New connects to the endpoint and optionally creates the bucket.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	client, err := mc.New(cfg.Endpoint, &mc.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       region,
		BucketLookup: mc.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, mc.MakeBucketOptions{Region: region}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
			}
		}
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverMinIO }

// Put uploads a new object. MinIO has no create-only PUT, so existence is
// checked first; concurrent writers to one key are last-writer-wins.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := s.Head(ctx, key); err == nil {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), mc.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: core.CloneMetadata(opts.Metadata),
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return s.Head(ctx, key)
}

// Get streams the object body.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, info.Key, mc.GetObjectOptions{})
	if err != nil {
		return core.Info{}, nil, translate(info.Key, err)
	}
	return info, obj, nil
}

// Head returns object metadata.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	st, err := s.client.StatObject(ctx, s.bucket, key, mc.StatObjectOptions{})
	if err != nil {
		return core.Info{}, translate(key, err)
	}
	return objectInfo(st), nil
}

// Delete removes the object, reporting whether it existed beforehand.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, info.Key, mc.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("delete %s: %w", info.Key, err)
	}
	return true, nil
}

// List returns objects under prefix ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	for obj := range s.client.ListObjects(ctx, s.bucket, mc.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		infos = append(infos, core.Info{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, `"`),
			LastModified: obj.LastModified.UTC(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL signs a GET for the object.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	expiry, err := core.GetOnly(opts)
	if err != nil {
		return "", err
	}
	key, err = core.CleanKey(key)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func translate(key string, err error) error {
	resp := mc.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return fmt.Errorf("minio %s: %w", key, err)
}

func objectInfo(st mc.ObjectInfo) core.Info {
	md := map[string]string{}
	for k, v := range st.UserMetadata {
		md[strings.ToLower(k)] = v
	}
	return core.Info{
		Key:          st.Key,
		Size:         st.Size,
		ContentType:  st.ContentType,
		ETag:         strings.Trim(st.ETag, `"`),
		Metadata:     core.CloneMetadata(md),
		LastModified: st.LastModified.UTC(),
	}
}
