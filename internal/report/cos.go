package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/taskgraph/pkg/config"
)

// COSStore implements Store for Tencent Cloud COS.
type COSStore struct {
	client *cos.Client
	bucket string
	region string
	scheme string
}

// NewCOSStore creates a COSStore from the report configuration.
func NewCOSStore(cfg *config.ReportConfig) (*COSStore, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS report storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS report storage")
	}

	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.myqcloud.com", scheme, cfg.Bucket, cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &COSStore{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		scheme: scheme,
	}, nil
}

// Put implements Store.
func (s *COSStore) Put(ctx context.Context, key string, reader io.Reader) error {
	_, err := s.client.Object.Put(ctx, key, reader, nil)
	if err != nil {
		return fmt.Errorf("failed to upload %s to COS: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *COSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from COS: %w", key, err)
	}
	return resp.Body, nil
}

// Exists implements Store.
func (s *COSStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check %s on COS: %w", key, err)
	}
	return ok, nil
}

// Delete implements Store.
func (s *COSStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.Object.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s from COS: %w", key, err)
	}
	return nil
}

// URL implements Store.
func (s *COSStore) URL(key string) string {
	return fmt.Sprintf("%s://%s.cos.%s.myqcloud.com/%s", s.scheme, s.bucket, s.region, key)
}
