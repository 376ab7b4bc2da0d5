package lineage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/kderrors"
	"github.com/keeperdata/keeperdata/internal/types"
)

// Writer is the LineageWriter contract (spec.md §3, §4.4): append
// exactly one event per changed record, in source-row order.
type Writer interface {
	Append(ctx context.Context, event types.LineageEvent) (types.LineageEvent, error)
	// Read returns every event recorded for collection, in append order.
	Read(ctx context.Context, collection string) ([]types.LineageEvent, error)
}

// BlobWriter is a LineageWriter backed by a BlobStore: one append-only
// framed log object per collection, keyed "lineage/{collection}.log".
// BlobStore has no native append, so each Append does a read-modify-
// write; lineage volume is one frame per changed record (not per row),
// so this stays well within a single ingestion phase's blast radius.
type BlobWriter struct {
	store blobstore.BlobStore

	mu      sync.Mutex
	nextSeq map[string]int64
}

// NewBlobWriter creates a BlobWriter over store.
func NewBlobWriter(store blobstore.BlobStore) *BlobWriter {
	return &BlobWriter{store: store, nextSeq: make(map[string]int64)}
}

func logKey(collection string) string {
	return fmt.Sprintf("lineage/%s.log", collection)
}

// Append assigns the next EventSeq for event.Collection and appends
// the framed event to its log object.
func (w *BlobWriter) Append(ctx context.Context, event types.LineageEvent) (types.LineageEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq, err := w.seedSeqLocked(ctx, event.Collection)
	if err != nil {
		return types.LineageEvent{}, err
	}
	event.EventSeq = seq

	frame, err := EncodeEvent(event)
	if err != nil {
		return types.LineageEvent{}, kderrors.New(kderrors.ErrDomain, "lineage_append", event.Collection, err)
	}

	key := logKey(event.Collection)
	existing, err := w.downloadOrEmpty(ctx, key)
	if err != nil {
		return types.LineageEvent{}, err
	}

	combined := append(existing, frame...)
	if err := w.store.Upload(ctx, key, bytes.NewReader(combined), "application/octet-stream", nil); err != nil {
		return types.LineageEvent{}, kderrors.New(kderrors.ErrCryptoIO, "lineage_append", key, err)
	}

	w.nextSeq[event.Collection] = seq + 1
	return event, nil
}

// Read returns every event recorded for collection, in append order.
func (w *BlobWriter) Read(ctx context.Context, collection string) ([]types.LineageEvent, error) {
	data, err := w.downloadOrEmpty(ctx, logKey(collection))
	if err != nil {
		return nil, err
	}
	return ReadAll(bytes.NewReader(data))
}

// seedSeqLocked returns the next EventSeq to assign for collection,
// lazily scanning its existing log the first time the collection is
// touched in this process.
func (w *BlobWriter) seedSeqLocked(ctx context.Context, collection string) (int64, error) {
	if seq, ok := w.nextSeq[collection]; ok {
		return seq, nil
	}

	events, err := w.Read(ctx, collection)
	if err != nil {
		return 0, err
	}

	var max int64 = -1
	for _, e := range events {
		if e.EventSeq > max {
			max = e.EventSeq
		}
	}
	seq := max + 1
	w.nextSeq[collection] = seq
	return seq, nil
}

func (w *BlobWriter) downloadOrEmpty(ctx context.Context, key string) ([]byte, error) {
	r, err := w.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, kderrors.ErrStorageNotFound) {
			return nil, nil
		}
		return nil, kderrors.New(kderrors.ErrCryptoIO, "lineage_read", key, err)
	}
	defer r.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, kderrors.New(kderrors.ErrCryptoIO, "lineage_read", key, err)
	}
	return buf.Bytes(), nil
}

var _ Writer = (*BlobWriter)(nil)
