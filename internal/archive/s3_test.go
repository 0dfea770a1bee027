package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type fakeObject struct {
	data    []byte
	version string
}

// fakeS3 serves the path-style subset of the S3 API used by S3Archive.
type fakeS3 struct {
	*httptest.Server
	bucket string

	mu      sync.Mutex
	objects map[string]fakeObject
}

func newFakeS3(t *testing.T) *fakeS3 {
	t.Helper()
	f := &fakeS3{bucket: "snapshots", objects: make(map[string]fakeObject)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if key == "" {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.objects[key] = fakeObject{data: data, version: r.Header.Get("X-Amz-Meta-Version")}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			}
			return
		}
		w.Header().Set("X-Amz-Meta-Version", obj.version)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(obj.data)
		}
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

// isolateAWSEnv keeps the SDK from reading the developer's AWS config.
func isolateAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
}

func newTestS3Archive(t *testing.T, f *fakeS3) *S3Archive {
	t.Helper()
	isolateAWSEnv(t)

	a, err := NewS3Archive(context.Background(), "test-s3", S3Options{
		Bucket:          f.bucket,
		Prefix:          "alertsync/",
		Region:          "us-east-1",
		Endpoint:        f.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Archive() error: %v", err)
	}
	return a
}

func TestS3Archive_ObjectKey(t *testing.T) {
	f := newFakeS3(t)
	a := newTestS3Archive(t, f)

	if err := a.PutSnapshot(context.Background(), "device-a", strings.NewReader("db"), 2, 5); err != nil {
		t.Fatalf("PutSnapshot() error: %v", err)
	}

	keys := f.keys()
	if len(keys) != 1 || keys[0] != "alertsync/device-a.db" {
		t.Errorf("stored keys = %v, want [alertsync/device-a.db]", keys)
	}
}

func TestS3Archive_ValidateSetupUnknownBucket(t *testing.T) {
	f := newFakeS3(t)
	isolateAWSEnv(t)

	a, err := NewS3Archive(context.Background(), "test-s3", S3Options{
		Bucket:          "missing",
		Region:          "us-east-1",
		Endpoint:        f.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Archive() error: %v", err)
	}

	if err := a.ValidateSetup(context.Background()); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}

func TestNewS3Archive_RequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Archive(context.Background(), "s3", S3Options{}); err == nil {
		t.Error("NewS3Archive() expected error without bucket")
	}
}
