package correlation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/tags"
)

// ObjectClient is the subset of *minio.Client the store uses.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObjectTagging(ctx context.Context, bucketName, objectName string, opts minio.GetObjectTaggingOptions) (*tags.Tags, error)
	PutObjectTagging(ctx context.Context, bucketName, objectName string, otags *tags.Tags, opts minio.PutObjectTaggingOptions) error
}

// MinioStore keeps one object per record in a dedicated bucket. Tags are
// written together with the object body, so a capture never leaves an
// untagged object behind.
type MinioStore struct {
	client ObjectClient
	bucket string
}

func NewMinioStore(client ObjectClient, bucket string) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("correlation bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

func (s *MinioStore) Save(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserTags:     maps.Clone(rec.Tags),
		UserMetadata: maps.Clone(rec.Metadata),
	}
	_, err := s.client.PutObject(ctx, s.bucket, rec.Location.Key(), bytes.NewReader(rec.Bytes), int64(len(rec.Bytes)), opts)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.Location.Key(), err)
	}
	return nil
}

func (s *MinioStore) FindByCorrelationID(ctx context.Context, functionName string, correlationID string) (Location, error) {
	correlationID = strings.TrimSpace(correlationID)
	prefix := ""
	if strings.TrimSpace(functionName) != "" {
		prefix = Prefix(functionName)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return Location{}, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		objTags := map[string]string(obj.UserTags)
		if len(objTags) == 0 {
			fetched, err := s.client.GetObjectTagging(ctx, s.bucket, obj.Key, minio.GetObjectTaggingOptions{})
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return Location{}, fmt.Errorf("tags %s: %w", obj.Key, err)
			}
			objTags = fetched.ToMap()
		}
		if objTags[TagCorrelationID] != correlationID {
			continue
		}
		return ParseKey(obj.Key)
	}
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	return Location{}, fmt.Errorf("%w: %s%s", ErrNotFound, prefix, correlationID)
}

func (s *MinioStore) Read(ctx context.Context, loc Location) (Record, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, loc.Key(), minio.GetObjectOptions{})
	if err != nil {
		return Record{}, s.wrap(loc, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Record{}, s.wrap(loc, err)
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", loc.Key(), err)
	}
	objTags, err := s.client.GetObjectTagging(ctx, s.bucket, loc.Key(), minio.GetObjectTaggingOptions{})
	if err != nil {
		return Record{}, s.wrap(loc, err)
	}

	return Record{
		Location:     loc,
		Bytes:        body,
		ContentType:  info.ContentType,
		Tags:         objTags.ToMap(),
		Metadata:     lowerKeys(info.UserMetadata),
		LastModified: info.LastModified,
	}, nil
}

func (s *MinioStore) Delete(ctx context.Context, loc Location) (bool, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, loc.Key(), minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", loc.Key(), err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, loc.Key(), minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("remove %s: %w", loc.Key(), err)
	}
	return true, nil
}

// UpdateTags reads the tag set, applies update, and writes it back. There
// is no conditional write, so concurrent updates can lose increments.
func (s *MinioStore) UpdateTags(ctx context.Context, loc Location, update TagUpdate) (map[string]string, error) {
	current, err := s.client.GetObjectTagging(ctx, s.bucket, loc.Key(), minio.GetObjectTaggingOptions{})
	if err != nil {
		return nil, s.wrap(loc, err)
	}
	next, err := update(current.ToMap())
	if err != nil {
		return nil, err
	}
	if err := (Record{Location: loc, Tags: next}).Validate(); err != nil {
		return nil, err
	}
	otags, err := tags.NewTags(next, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	if err := s.client.PutObjectTagging(ctx, s.bucket, loc.Key(), otags, minio.PutObjectTaggingOptions{}); err != nil {
		return nil, s.wrap(loc, err)
	}
	return maps.Clone(next), nil
}

func (s *MinioStore) List(ctx context.Context, functionName string) ([]Entry, error) {
	prefix := ""
	if strings.TrimSpace(functionName) != "" {
		prefix = Prefix(functionName)
	}

	var out []Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		loc, err := ParseKey(obj.Key)
		if err != nil {
			// Keys written outside this store are skipped.
			continue
		}
		out = append(out, Entry{Location: loc, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

func (s *MinioStore) wrap(loc Location, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, loc.Key())
	}
	return fmt.Errorf("%s: %w", loc.Key(), err)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject", "NoSuchTagSet":
		return true
	}
	return false
}

func lowerKeys(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
