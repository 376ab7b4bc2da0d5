package blobstore

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/keeperdata/keeperdata/internal/kderrors"
)

func TestMemoryStoreUploadDownloadRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := t.Context()

	if err := m.Upload(ctx, "a/b.csv", bytes.NewReader([]byte("hello")), "text/csv", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rc, err := m.Download(ctx, "a/b.csv")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}

	meta, err := m.Head(ctx, "a/b.csv")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if meta.UserMetadata["k"] != "v" {
		t.Fatalf("UserMetadata[k] = %q, want %q", meta.UserMetadata["k"], "v")
	}
}

func TestMemoryStoreHeadMissingKeyIsNotFound(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Head(t.Context(), "missing")
	if !errors.Is(err, kderrors.ErrStorageNotFound) {
		t.Fatalf("expected ErrStorageNotFound, got %v", err)
	}
}

func TestMemoryStoreOpenWriteCommitsOnClose(t *testing.T) {
	m := NewMemoryStore()
	ctx := t.Context()

	w, err := m.OpenWrite(ctx, "streamed.bin", "application/octet-stream", nil)
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if _, err := w.Write([]byte("chunk-one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("chunk-two")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if ok, _ := m.Exists(ctx, "streamed.bin"); ok {
		t.Fatalf("object should not exist before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rc, err := m.Download(ctx, "streamed.bin")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "chunk-onechunk-two" {
		t.Fatalf("content = %q, want %q", got, "chunk-onechunk-two")
	}
}

func TestMemoryStoreListPrefixFilterAndPagination(t *testing.T) {
	m := NewMemoryStore()
	ctx := t.Context()
	for _, key := range []string{"x/1", "x/2", "x/3", "y/1"} {
		if err := m.Upload(ctx, key, bytes.NewReader(nil), "", nil); err != nil {
			t.Fatalf("Upload(%q): %v", key, err)
		}
	}

	page, err := m.List(ctx, "x/", 2, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 2 || !page.IsTruncated {
		t.Fatalf("page = %+v, want 2 truncated items", page)
	}

	next, err := m.List(ctx, "x/", 2, page.NextToken)
	if err != nil {
		t.Fatalf("List (page 2): %v", err)
	}
	if len(next.Items) != 1 || next.IsTruncated {
		t.Fatalf("page 2 = %+v, want 1 untruncated item", next)
	}
}

func TestMemoryStorePresignGetRequiresExistingObject(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.PresignGet(t.Context(), "missing", 0); !errors.Is(err, kderrors.ErrStorageNotFound) {
		t.Fatalf("expected ErrStorageNotFound, got %v", err)
	}
}
