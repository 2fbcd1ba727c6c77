package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	key := "/alpine/v3.18/main/x86_64/foo.apk"

	modTime := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), key, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
}

func TestStoreMirrorsUpstreamLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root, nil)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	if _, err := store.Put(context.Background(), "/alpine/3.18/main/x86_64/foo.apk", bytes.NewReader([]byte("DATA")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "alpine", "3.18", "main", "x86_64", "foo.apk"))
	if err != nil {
		t.Fatalf("expected mirrored file: %v", err)
	}
	if string(data) != "DATA" {
		t.Fatalf("unexpected file content: %s", data)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "/alpine/missing.apk")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Exists(context.Background(), "/alpine/missing.apk") {
		t.Fatalf("never written key should not exist")
	}
}

func TestStoreExistsAfterPut(t *testing.T) {
	store := newTestStore(t)
	key := "/alpine/edge/main/x86_64/APKINDEX.tar.gz"
	if _, err := store.Put(context.Background(), key, bytes.NewReader([]byte("index")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if !store.Exists(context.Background(), key) {
		t.Fatalf("expected key to exist after put")
	}
}

func TestStoreOverwriteReplacesContent(t *testing.T) {
	store := newTestStore(t)
	key := "/alpine/edge/main/x86_64/APKINDEX.tar.gz"
	for _, body := range []string{"first", "second"} {
		if _, err := store.Put(context.Background(), key, bytes.NewReader([]byte(body)), PutOptions{}); err != nil {
			t.Fatalf("put error: %v", err)
		}
	}
	result, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()
	body, _ := io.ReadAll(result.Reader)
	if string(body) != "second" {
		t.Fatalf("expected latest content, got %s", body)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	key := "/alpine/cache/remove.apk"
	if _, err := store.Put(context.Background(), key, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("removing a missing key should succeed, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	key := "/alpine/v3.18"

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}

	filePath, err := fs.entryPath(key)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
	if store.Exists(context.Background(), key) {
		t.Fatalf("directory should not count as cached entry")
	}
}

func TestStoreRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)
	keys := []string{"", "/", "relative/x.apk", "/alpine/../../etc/passwd", "/alpine//x.apk", "/alpine/./x.apk", "/alpine/x.apk/"}
	for _, key := range keys {
		if _, err := store.Put(context.Background(), key, bytes.NewReader([]byte("x")), PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", key, err)
		}
		if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey on get for %q, got %v", key, err)
		}
	}
}

func TestStoreWriteCleanupOnInterruptedStream(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore(tmpDir, nil)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}

	reader := &flakyReader{
		payload:   []byte("partial_data"),
		failAfter: 5,
	}

	_, err = store.Put(context.Background(), "/alpine/interrupt/blob.apk", reader, PutOptions{})
	var fsErr *FSError
	if !errors.As(err, &fsErr) {
		t.Fatalf("expected FSError from interrupted reader, got %v", err)
	}

	target := filepath.Join(tmpDir, "alpine", "interrupt", "blob.apk")
	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no final file, got err=%v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(tmpDir, "alpine", "interrupt", tempPattern))
	if len(matches) != 0 {
		t.Fatalf("temporary files should be cleaned up, found %v", matches)
	}
}

func TestStorePutHonoursCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "/alpine/cancelled.apk", bytes.NewReader([]byte("x")), PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.Exists(context.Background(), "/alpine/cancelled.apk") {
		t.Fatalf("cancelled write must not leave an entry")
	}
}

type flakyReader struct {
	payload   []byte
	failAfter int
	readBytes int
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if f.readBytes >= f.failAfter {
		return 0, io.ErrUnexpectedEOF
	}
	remaining := f.failAfter - f.readBytes
	if remaining > len(p) {
		remaining = len(p)
	}
	copy(p[:remaining], f.payload[f.readBytes:f.readBytes+remaining])
	f.readBytes += remaining
	return remaining, nil
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
