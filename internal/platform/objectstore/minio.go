package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// EnsureBuckets creates the correlation bucket and every input container
// the function catalog declares.
func EnsureBuckets(ctx context.Context, client *minio.Client, cfg Config, containers ...string) error {
	if err := ensureBucket(ctx, client, cfg.BucketCorrelation, cfg.Region); err != nil {
		return fmt.Errorf("ensure correlation bucket: %w", err)
	}
	for _, container := range containers {
		if container == "" || container == cfg.BucketCorrelation {
			continue
		}
		if err := ensureBucket(ctx, client, container, cfg.Region); err != nil {
			return fmt.Errorf("ensure container %s: %w", container, err)
		}
	}
	return nil
}

func CheckBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	exists, err := client.BucketExists(ctx, cfg.BucketCorrelation)
	if err != nil {
		return fmt.Errorf("correlation bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("correlation bucket missing: %s", cfg.BucketCorrelation)
	}
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
