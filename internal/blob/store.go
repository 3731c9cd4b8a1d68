// Package blob stores uploaded images for canvas image elements in an
// S3-compatible object store. Elements refer to them by locator,
// blob://<bucket>/<key>.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pdfpro/api/internal/util"
)

const Scheme = "blob"

const maxObjectBytes = 20 << 20

var (
	ErrInvalidLocator = errors.New("invalid blob locator")
	ErrNotFound       = errors.New("blob not found")
	ErrTooLarge       = errors.New("blob too large")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
}

func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put stores data under a fresh key in the user's prefix and returns its
// locator.
func (s *Store) Put(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	if len(data) > maxObjectBytes {
		return "", ErrTooLarge
	}
	key := ObjectKey(userID, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return Locator(s.bucket, key), nil
}

// Get reads the object behind locator. It satisfies the image fetcher
// interface of the compositor.
func (s *Store) Get(ctx context.Context, locator string) ([]byte, error) {
	bucket, key, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectBytes+1))
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	if len(data) > maxObjectBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func Locator(bucket, key string) string {
	return Scheme + "://" + bucket + "/" + key
}

func ParseLocator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, Scheme+"://")
	if !ok {
		return "", "", ErrInvalidLocator
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.Contains(key, "..") {
		return "", "", ErrInvalidLocator
	}
	return bucket, key, nil
}

// ObjectKey builds userID/<id><ext>, with the extension taken from the
// content type when it is known.
func ObjectKey(userID, contentType string) string {
	ext := ""
	switch contentType {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	default:
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return userID + "/" + util.NewID("img") + ext
}

// OwnedBy reports whether the locator sits in the user's prefix.
func OwnedBy(locator, userID string) bool {
	_, key, err := ParseLocator(locator)
	return err == nil && strings.HasPrefix(key, userID+"/")
}
