package cleanse

import (
	"context"
	"sync"
	"time"

	"github.com/keeperdata/keeperdata/internal/docstore"
	"github.com/keeperdata/keeperdata/internal/types"
)

const operationsCollection = "cleanse_operations"

// OperationStore persists CleanseOperation documents.
type OperationStore interface {
	Create(ctx context.Context, op types.CleanseOperation) error
	Get(ctx context.Context, operationID string) (types.CleanseOperation, bool, error)
	Update(ctx context.Context, operationID string, update func(*types.CleanseOperation)) (types.CleanseOperation, error)
}

// DocumentOperationStore implements OperationStore over a
// docstore.DocumentStore, mirroring importpipeline.DocumentReporter's
// single-document-update shape.
type DocumentOperationStore struct {
	store docstore.DocumentStore
	mu    sync.Mutex
}

// NewDocumentOperationStore creates a DocumentOperationStore over store.
func NewDocumentOperationStore(store docstore.DocumentStore) *DocumentOperationStore {
	return &DocumentOperationStore{store: store}
}

func (s *DocumentOperationStore) Create(ctx context.Context, op types.CleanseOperation) error {
	_, err := s.store.Upsert(ctx, operationsCollection, op.OperationID, encodeOperation(op))
	return err
}

func (s *DocumentOperationStore) Get(ctx context.Context, operationID string) (types.CleanseOperation, bool, error) {
	rec, found, err := s.store.Get(ctx, operationsCollection, operationID)
	if err != nil || !found {
		return types.CleanseOperation{}, found, err
	}
	return decodeOperation(rec), true, nil
}

func (s *DocumentOperationStore) Update(ctx context.Context, operationID string, update func(*types.CleanseOperation)) (types.CleanseOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, found, err := s.Get(ctx, operationID)
	if err != nil {
		return types.CleanseOperation{}, err
	}
	if !found {
		op = types.CleanseOperation{OperationID: operationID}
	}
	update(&op)
	if _, err := s.store.Upsert(ctx, operationsCollection, operationID, encodeOperation(op)); err != nil {
		return types.CleanseOperation{}, err
	}
	return op, nil
}

func encodeOperation(op types.CleanseOperation) types.Record {
	rec := types.Record{
		"OperationID":     op.OperationID,
		"Status":          string(op.Status),
		"Progress":        op.Progress,
		"StatusText":      op.StatusText,
		"RecordsAnalyzed": op.RecordsAnalyzed,
		"TotalRecords":    op.TotalRecords,
		"IssuesFound":     op.IssuesFound,
		"IssuesResolved":  op.IssuesResolved,
		"DurationMillis":  op.DurationMillis,
		"ReportObjectKey": op.ReportObjectKey,
		"ReportURL":       op.ReportURL,
		"StartedAt":       op.StartedAt,
		"Error":           op.Error,
	}
	if op.CompletedAt != nil {
		rec["CompletedAt"] = *op.CompletedAt
	}
	return rec
}

func decodeOperation(rec types.Record) types.CleanseOperation {
	op := types.CleanseOperation{
		OperationID:     toString(rec["OperationID"]),
		Status:          types.CleanseOperationStatus(toString(rec["Status"])),
		StatusText:      toString(rec["StatusText"]),
		ReportObjectKey: toString(rec["ReportObjectKey"]),
		ReportURL:       toString(rec["ReportURL"]),
		Error:           toString(rec["Error"]),
	}
	op.Progress = toInt(rec["Progress"])
	op.RecordsAnalyzed = toInt64(rec["RecordsAnalyzed"])
	op.TotalRecords = toInt64(rec["TotalRecords"])
	op.IssuesFound = toInt64(rec["IssuesFound"])
	op.IssuesResolved = toInt64(rec["IssuesResolved"])
	op.DurationMillis = toInt64(rec["DurationMillis"])
	if t, ok := rec["StartedAt"].(time.Time); ok {
		op.StartedAt = t
	}
	if t, ok := rec["CompletedAt"].(time.Time); ok {
		op.CompletedAt = &t
	}
	return op
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
