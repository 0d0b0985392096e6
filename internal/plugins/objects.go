package plugins

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Object is a whole stored object with its tags and user metadata.
type Object struct {
	Bytes       []byte
	ContentType string
	Tags        map[string]string
	Metadata    map[string]string
}

// Objects reads and writes whole objects in trigger containers.
type Objects interface {
	Get(ctx context.Context, container, key string) (Object, error)
	Put(ctx context.Context, container, key string, obj Object) error
}

// MinioObjects implements Objects on a MinIO client.
type MinioObjects struct {
	Client *minio.Client
}

func (m MinioObjects) Get(ctx context.Context, container, key string) (Object, error) {
	obj, err := m.Client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("get %s/%s: %w", container, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Object{}, fmt.Errorf("stat %s/%s: %w", container, key, err)
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return Object{}, fmt.Errorf("read %s/%s: %w", container, key, err)
	}
	objTags, err := m.Client.GetObjectTagging(ctx, container, key, minio.GetObjectTaggingOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("get tags %s/%s: %w", container, key, err)
	}

	meta := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		meta[strings.ToLower(k)] = v
	}
	return Object{
		Bytes:       body,
		ContentType: info.ContentType,
		Tags:        objTags.ToMap(),
		Metadata:    meta,
	}, nil
}

func (m MinioObjects) Put(ctx context.Context, container, key string, obj Object) error {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.Client.PutObject(ctx, container, key, bytes.NewReader(obj.Bytes), int64(len(obj.Bytes)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserTags:     maps.Clone(obj.Tags),
		UserMetadata: maps.Clone(obj.Metadata),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", container, key, err)
	}
	return nil
}
