package storage

import (
	"bytes"
	"context"
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/memdump-analysis/pkg/config"
)

// newTestCOSStorage points a COSStorage at an httptest server.
func newTestCOSStorage(t *testing.T, handler http.HandlerFunc) *COSStorage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &COSStorage{client: cos.NewClient(&cos.BaseURL{BucketURL: u}, srv.Client()), baseURL: u}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusNotFound)
	if r.Method != http.MethodHead {
		io.WriteString(w, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
	}
}

// acceptPut answers an upload the way COS does, with the CRC64 of the body
// that the SDK verifies.
func acceptPut(w http.ResponseWriter, r *http.Request) string {
	body, _ := io.ReadAll(r.Body)
	crc := crc64.Checksum(body, crc64.MakeTable(crc64.ECMA))
	w.Header().Set("x-cos-hash-crc64ecma", strconv.FormatUint(crc, 10))
	w.WriteHeader(http.StatusOK)
	return string(body)
}

func validCOSConfig() COSConfig {
	return COSConfig{Bucket: "my-bucket", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}
}

func TestNewCOSStorage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*COSConfig)
		wantErr string
	}{
		{"valid", func(*COSConfig) {}, ""},
		{"missing bucket", func(c *COSConfig) { c.Bucket = "" }, "COS bucket is required"},
		{"missing region", func(c *COSConfig) { c.Region = "" }, "COS region is required"},
		{"missing secret key", func(c *COSConfig) { c.SecretKey = "" }, "COS credentials are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCOSConfig()
			tt.mutate(&cfg)

			s, err := NewCOSStorage(&cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, s)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
			assert.Nil(t, s)
		})
	}
}

func TestCOSStorage_GetURL(t *testing.T) {
	cfg := validCOSConfig()
	s, err := NewCOSStorage(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://my-bucket.cos.ap-guangzhou.myqcloud.com/reports/task-1/memory_dump.json.gz",
		s.GetURL(ReportKey("task-1", "memory_dump.json.gz")))

	cfg.Domain, cfg.Scheme = "tencentcos.cn", "http"
	s, err = NewCOSStorage(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://my-bucket.cos.ap-guangzhou.tencentcos.cn/traces/a.json", s.GetURL("/traces/a.json"))
}

func TestCOSStorage_UploadSetsContentType(t *testing.T) {
	var gotPath, gotType, gotBody string
	s := newTestCOSStorage(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody = acceptPut(w, r)
	})

	err := s.Upload(context.Background(), "/reports/task-1/memory_dump.yaml", bytes.NewReader([]byte("dumps: []\n")))
	require.NoError(t, err)
	assert.Equal(t, "/reports/task-1/memory_dump.yaml", gotPath)
	assert.Equal(t, "application/yaml", gotType)
	assert.Equal(t, "dumps: []\n", gotBody)
}

func TestCOSStorage_DownloadFile(t *testing.T) {
	s := newTestCOSStorage(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/traces/t.json" {
			notFound(w, r)
			return
		}
		io.WriteString(w, `{"traceEvents":[]}`)
	})
	dest := filepath.Join(t.TempDir(), "nested", "t.json")

	require.NoError(t, s.DownloadFile(context.Background(), "traces/t.json", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `{"traceEvents":[]}`, string(data))

	err = s.DownloadFile(context.Background(), "traces/other.json", dest)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestCOSStorage_DownloadErrors(t *testing.T) {
	s := newTestCOSStorage(t, notFound)

	_, err := s.Download(context.Background(), "traces/missing.json.gz")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = s.Download(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCOSStorage_ExistsAndDelete(t *testing.T) {
	var deleted string
	s := newTestCOSStorage(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/traces/present.json":
			w.WriteHeader(http.StatusOK)
		default:
			notFound(w, r)
		}
	})
	ctx := context.Background()

	ok, err := s.Exists(ctx, "traces/present.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "traces/absent.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "traces/present.json"))
	assert.Equal(t, "/traces/present.json", deleted)
}

func TestNewStorage_COS(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{
		Type: "cos", Bucket: "b", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key",
	})
	require.NoError(t, err)
	assert.IsType(t, &COSStorage{}, s)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr string
	}{
		{"nil", nil, "storage config is nil"},
		{"unknown type", &config.StorageConfig{Type: "s3"}, "unsupported storage type: s3"},
		{"cos without bucket", &config.StorageConfig{Type: "cos", Region: "r", SecretID: "i", SecretKey: "k"}, "COS bucket is required"},
		{"cos without region", &config.StorageConfig{Type: "cos", Bucket: "b", SecretID: "i", SecretKey: "k"}, "COS region is required"},
		{"cos without credentials", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r"}, "COS credentials are required"},
		{"local without path", &config.StorageConfig{Type: "local"}, "local storage path is required"},
		{"empty type without path", &config.StorageConfig{}, "local storage path is required"},
		{"cos", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r", SecretID: "i", SecretKey: "k"}, ""},
		{"local", &config.StorageConfig{Type: "local", LocalPath: "/tmp/storage"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
