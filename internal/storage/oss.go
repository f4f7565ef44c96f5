package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type OSSConfig struct {
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY"`
	AccessKeySecret string `env:"SECRET_KEY"`
	Bucket          string `env:"BUCKET"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
}

// OSSStore хранит файлы в бакете Aliyun OSS
type OSSStore struct {
	bucket     *oss.Bucket
	publicBase string
}

func NewOSSStore(cfg OSSConfig) (*OSSStore, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("ALI_OSS_* settings are incomplete")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("oss bucket: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.%s", cfg.Bucket, strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://"))
	}
	return &OSSStore{bucket: bucket, publicBase: base}, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	err := s.bucket.PutObject(key, r,
		oss.ContentType(contentType),
		oss.CacheControl("public, max-age=31536000, immutable"),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", err
	}
	return s.publicBase + "/" + key, nil
}

func (s *OSSStore) Delete(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, s.publicBase+"/")
	if !ok || key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return s.bucket.DeleteObject(key, oss.WithContext(ctx))
}

func (s *OSSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	marker := oss.Marker("")

	for {
		res, err := s.bucket.ListObjects(oss.Prefix(prefix), marker, oss.MaxKeys(1000), oss.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, obj := range res.Objects {
			if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
				continue
			}
			objects = append(objects, Object{Key: obj.Key, Ref: s.publicBase + "/" + obj.Key, ModTime: obj.LastModified})
		}
		if !res.IsTruncated {
			return objects, nil
		}
		marker = oss.Marker(res.NextMarker)
	}
}
