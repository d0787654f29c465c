package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"webshot/internal/storage"

	"github.com/google/go-cmp/cmp"
)

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        string
}

func newS3Server(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        string(body),
		})
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func setAWSEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")
}

func TestOpenS3Put(t *testing.T) {
	setAWSEnv(t)
	server, requests := newS3Server(t)
	ctx := context.Background()

	s, err := storage.Open(ctx, storage.Config{
		Location:   "s3://screenshots/daily/run",
		S3Endpoint: server.URL,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\n")
	location, err := s.Put(ctx, "example.com_1920x1080_2024-05-06T07-08-09.png", png)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if diff := cmp.Diff("s3://screenshots/daily/run/example.com_1920x1080_2024-05-06T07-08-09.png", location); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	want := []recordedRequest{
		{
			Method:      http.MethodPut,
			Path:        "/screenshots/daily/run/example.com_1920x1080_2024-05-06T07-08-09.png",
			ContentType: "image/png",
			Body:        string(png),
		},
	}
	if diff := cmp.Diff(want, requests()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestOpenS3WithoutPrefix(t *testing.T) {
	setAWSEnv(t)
	server, requests := newS3Server(t)
	ctx := context.Background()

	s, err := storage.Open(ctx, storage.Config{
		Location:   "s3://screenshots",
		S3Endpoint: server.URL,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	location, err := s.Put(ctx, "a.com_800x600_2024-05-06T07-08-09.jpeg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if diff := cmp.Diff("s3://screenshots/a.com_800x600_2024-05-06T07-08-09.jpeg", location); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if got := requests(); len(got) != 1 || got[0].Path != "/screenshots/a.com_800x600_2024-05-06T07-08-09.jpeg" {
		t.Errorf("unexpected requests: %+v", got)
	}
}

func TestOpenS3RequiresBucket(t *testing.T) {
	if _, err := storage.Open(context.Background(), storage.Config{Location: "s3://"}); err == nil {
		t.Fatal("Open succeeded without a bucket")
	}
}

func TestOpenS3ReportsUploadFailure(t *testing.T) {
	setAWSEnv(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)
	ctx := context.Background()

	s, err := storage.Open(ctx, storage.Config{
		Location:   "s3://screenshots",
		S3Endpoint: server.URL,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := s.Put(ctx, "a.png", []byte("x")); err == nil {
		t.Fatal("Put succeeded against a failing endpoint")
	}
}

func TestOpenLocalDirectory(t *testing.T) {
	directory := t.TempDir()

	s, err := storage.Open(context.Background(), storage.Config{Location: directory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	location, err := s.Put(context.Background(), "a.png", []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if diff := cmp.Diff(filepath.Join(directory, "a.png"), location); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
