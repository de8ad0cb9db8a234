package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig locates a Tencent Cloud COS bucket.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // defaults to myqcloud.com
	Scheme    string // defaults to https
}

func (c COSConfig) validate() error {
	switch {
	case c.Bucket == "":
		return errors.New("COS bucket is required")
	case c.Region == "":
		return errors.New("COS region is required")
	case c.SecretID == "" || c.SecretKey == "":
		return errors.New("COS credentials are required")
	}
	return nil
}

func (c COSConfig) withDefaults() COSConfig {
	if c.Domain == "" {
		c.Domain = "myqcloud.com"
	}
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	return c
}

// bucketURL is also the public base URL of objects.
func (c COSConfig) bucketURL() (*url.URL, error) {
	return url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", c.Scheme, c.Bucket, c.Region, c.Domain))
}

// COSStorage stores traces and reports in a COS bucket. Objects carry a
// content type derived from the key suffix.
type COSStorage struct {
	client  *cos.Client
	baseURL *url.URL
}

// NewCOSStorage creates a client for the configured bucket.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := cfg.withDefaults()

	bucketURL, err := c.bucketURL()
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", c.Scheme, c.Region, c.Domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL, ServiceURL: serviceURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{SecretID: c.SecretID, SecretKey: c.SecretKey},
	})
	return &COSStorage{client: client, baseURL: bucketURL}, nil
}

// object cleans key and runs op against it, mapping COS not-found
// responses to ErrObjectNotFound.
func (s *COSStorage) object(verb, key string, op func(key string) error) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := op(key); err != nil {
		if cos.IsNotFoundError(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to %s %s in COS: %w", verb, key, err)
	}
	return nil
}

func putOptions(key string) *cos.ObjectPutOptions {
	return &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: ContentType(key)},
	}
}

func (s *COSStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	return s.object("upload", key, func(key string) error {
		_, err := s.client.Object.Put(ctx, key, reader, putOptions(key))
		return err
	})
}

func (s *COSStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	return s.object("upload", key, func(key string) error {
		_, err := s.client.Object.PutFromFile(ctx, key, localPath, putOptions(key))
		return err
	})
}

// Download returns the object body; the caller closes it.
func (s *COSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := s.object("download", key, func(key string) error {
		resp, err := s.client.Object.Get(ctx, key, nil)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	return body, err
}

// DownloadFile writes the object to localPath, creating parent directories.
func (s *COSStorage) DownloadFile(ctx context.Context, key string, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return s.object("download", key, func(key string) error {
		_, err := s.client.Object.GetToFile(ctx, key, localPath, nil)
		return err
	})
}

func (s *COSStorage) Delete(ctx context.Context, key string) error {
	return s.object("delete", key, func(key string) error {
		_, err := s.client.Object.Delete(ctx, key, nil)
		return err
	})
}

func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.object("stat", key, func(key string) (err error) {
		ok, err = s.client.Object.IsExist(ctx, key)
		return err
	})
	return ok, err
}

// GetURL returns the public URL of key.
func (s *COSStorage) GetURL(key string) string {
	if cleaned, err := CleanKey(key); err == nil {
		key = cleaned
	}
	return s.baseURL.JoinPath(key).String()
}
