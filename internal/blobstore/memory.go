package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keeperdata/keeperdata/internal/kderrors"
)

// MemoryStore is an in-process BlobStore backed by a map, used for tests
// and the in-memory acquisition/ingestion round-trip — grounded on the
// teacher's lode.NewMemoryFactory idiom (a real backend and a memory
// backend implementing the same contract).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
}

type memObject struct {
	data         []byte
	contentType  string
	userMetadata map[string]string
	lastModified time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject)}
}

func (m *MemoryStore) List(_ context.Context, prefix string, pageSize int, token string) (ListPage, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		if n, err := strconv.Atoi(token); err == nil {
			start = n
		}
	}
	if start > len(keys) {
		start = len(keys)
	}

	end := start + pageSize
	truncated := end < len(keys)
	if end > len(keys) {
		end = len(keys)
	}

	items := make([]ObjectInfo, 0, end-start)
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		items = append(items, ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			ETag:         etagFor(obj.data),
			LastModified: obj.lastModified,
		})
	}

	page := ListPage{Items: items, IsTruncated: truncated}
	if truncated {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Head(_ context.Context, key string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Metadata{}, kderrors.New(kderrors.ErrStorageNotFound, "head", key, fmt.Errorf("no such object"))
	}
	return Metadata{
		Size:         int64(len(obj.data)),
		ETag:         etagFor(obj.data),
		LastModified: obj.lastModified,
		ContentType:  obj.contentType,
		UserMetadata: copyMeta(obj.userMetadata),
	}, nil
}

func (m *MemoryStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, kderrors.New(kderrors.ErrStorageNotFound, "download", key, fmt.Errorf("no such object"))
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Upload(_ context.Context, key string, r io.Reader, contentType string, userMetadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return kderrors.New(kderrors.ErrStorageTransient, "upload", key, err)
	}
	m.mu.Lock()
	m.objects[key] = &memObject{data: data, contentType: contentType, userMetadata: copyMeta(userMetadata), lastModified: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

// memWriter buffers writes and commits to the store on Close, matching
// the OpenWrite/multipart contract without requiring an actual
// multipart session for the in-memory backend.
type memWriter struct {
	store        *MemoryStore
	key          string
	contentType  string
	userMetadata map[string]string
	buf          bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.objects[w.key] = &memObject{
		data:         w.buf.Bytes(),
		contentType:  w.contentType,
		userMetadata: copyMeta(w.userMetadata),
		lastModified: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) OpenWrite(_ context.Context, key string, contentType string, userMetadata map[string]string) (io.WriteCloser, error) {
	return &memWriter{store: m, key: key, contentType: contentType, userMetadata: userMetadata}, nil
}

func (m *MemoryStore) SetMetadata(_ context.Context, key string, userMetadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return kderrors.New(kderrors.ErrStorageNotFound, "set_metadata", key, fmt.Errorf("no such object"))
	}
	obj.userMetadata = copyMeta(userMetadata)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", kderrors.New(kderrors.ErrStorageNotFound, "presign", key, fmt.Errorf("no such object"))
	}
	expiry := time.Now().UTC().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s?expires=%d", key, expiry), nil
}

func etagFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func copyMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ BlobStore = (*MemoryStore)(nil)
