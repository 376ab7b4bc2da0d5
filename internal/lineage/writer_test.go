package lineage

import (
	"bytes"
	"testing"
	"time"

	"github.com/keeperdata/keeperdata/internal/blobstore"
	"github.com/keeperdata/keeperdata/internal/types"
)

func testEvent(recordID string, seq int64) types.LineageEvent {
	return types.LineageEvent{
		RecordID:   recordID,
		Collection: "cts_primary",
		EventSeq:   seq,
		EventType:  types.LineageCreated,
		ImportID:   "import-1",
		FileKey:    "LITP_SAMCPHHOLDING_20250101.csv.enc",
		ChangeType: types.ChangeInsert,
		NewValues:  map[string]any{"Cph": "12-34/567/8901"},
		EventDate:  time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	event := testEvent("rec-1", 0)

	frame, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	decoded, err := NewFrameReader(bytes.NewReader(frame)).ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if decoded.RecordID != event.RecordID || decoded.EventSeq != event.EventSeq || decoded.EventType != event.EventType {
		t.Fatalf("round trip mismatch: got %#v, want %#v", decoded, event)
	}
}

func TestReadAllMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := int64(0); i < 3; i++ {
		frame, err := EncodeEvent(testEvent("rec", i))
		if err != nil {
			t.Fatalf("EncodeEvent: %v", err)
		}
		buf.Write(frame)
	}

	events, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.EventSeq != int64(i) {
			t.Fatalf("events[%d].EventSeq = %d, want %d", i, e.EventSeq, i)
		}
	}
}

func TestBlobWriterAppendAssignsMonotonicSeq(t *testing.T) {
	store := blobstore.NewMemoryStore()
	w := NewBlobWriter(store)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		event := testEvent("rec", -1)
		written, err := w.Append(ctx, event)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if written.EventSeq != int64(i) {
			t.Fatalf("Append #%d assigned EventSeq=%d, want %d", i, written.EventSeq, i)
		}
	}

	events, err := w.Read(ctx, "cts_primary")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
}

func TestBlobWriterReadEmptyCollectionReturnsNil(t *testing.T) {
	store := blobstore.NewMemoryStore()
	w := NewBlobWriter(store)

	events, err := w.Read(t.Context(), "never_written")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0", len(events))
	}
}

func TestBlobWriterSeedsSeqFromExistingLog(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := t.Context()

	w1 := NewBlobWriter(store)
	if _, err := w1.Append(ctx, testEvent("rec", -1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w1.Append(ctx, testEvent("rec", -1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	w2 := NewBlobWriter(store)
	written, err := w2.Append(ctx, testEvent("rec", -1))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if written.EventSeq != 2 {
		t.Fatalf("fresh writer's first Append EventSeq = %d, want 2 (seeded from existing log)", written.EventSeq)
	}
}
